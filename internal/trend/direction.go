package trend

import (
	"time"

	"ConvergeWatch/internal/domain/models"
)

// DirectionChanges reports every segment whose direction differs from the
// previous segment's and is bullish or bearish. Moves into lateral are not
// events.
func DirectionChanges(segs []models.ClassifiedSegment) []models.DirectionChange {
	var out []models.DirectionChange
	for i := 1; i < len(segs); i++ {
		prev, cur := segs[i-1], segs[i]
		if cur.Direction == prev.Direction || !cur.Direction.Decisive() {
			continue
		}
		out = append(out, models.DirectionChange{
			Timestamp:     cur.StartTime,
			Previous:      prev.Direction,
			New:           cur.Direction,
			PreviousSlope: prev.Slope,
			NewSlope:      cur.Slope,
		})
	}
	return out
}

// DirectionAt returns the direction of the first segment covering ts.
func DirectionAt(segs []models.ClassifiedSegment, ts time.Time) (models.Direction, bool) {
	for _, s := range segs {
		if s.Contains(ts) {
			return s.Direction, true
		}
	}
	return "", false
}
