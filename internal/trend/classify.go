package trend

import "ConvergeWatch/internal/domain/models"

// Classify labels a segment by comparing its slope with a symmetric threshold.
func Classify(seg models.Segment, threshold float64) models.Direction {
	switch {
	case seg.Slope > threshold:
		return models.DirectionBullish
	case seg.Slope < -threshold:
		return models.DirectionBearish
	default:
		return models.DirectionLateral
	}
}

func ClassifyAll(segs []models.Segment, threshold float64) []models.ClassifiedSegment {
	out := make([]models.ClassifiedSegment, len(segs))
	for i, s := range segs {
		out[i] = models.ClassifiedSegment{Segment: s, Direction: Classify(s, threshold)}
	}
	return out
}
