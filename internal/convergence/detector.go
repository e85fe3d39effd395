package convergence

import (
	"ConvergeWatch/internal/domain/models"
	"ConvergeWatch/internal/trend"
)

// Detect emits a signal for every slow-series direction change that happens
// while the fast series already moves the same way. The slow change is the
// trigger; the fast segment covering the change timestamp only confirms it.
func Detect(fast, slow []models.ClassifiedSegment, ref ReferenceSeries) []models.ConvergenceSignal {
	var out []models.ConvergenceSignal
	for _, change := range trend.DirectionChanges(slow) {
		fastDir, ok := trend.DirectionAt(fast, change.Timestamp)
		if !ok || fastDir != change.New {
			continue
		}
		kind, ok := models.SignalKindFor(change.New)
		if !ok {
			continue
		}
		price, osc := ref.Lookup(change.Timestamp)
		out = append(out, models.ConvergenceSignal{
			Timestamp:           change.Timestamp,
			Kind:                kind,
			FastDirection:       fastDir,
			SlowChange:          change.New,
			ReferencePrice:      price,
			ReferenceOscillator: osc,
		})
	}
	return out
}
