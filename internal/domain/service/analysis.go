package service

import (
	"context"

	"ConvergeWatch/internal/domain/models"
)

// AnalysisParams tunes one analysis pass. Zero fields fall back to the
// analyzer defaults.
type AnalysisParams struct {
	FastPeriod       int
	SlowPeriod       int
	MAType           string
	FastThreshold    float64
	SlowThreshold    float64
	SlopeRadius      int
	OscillatorPeriod int
}

// Merge fills zero fields of p from def.
func (p AnalysisParams) Merge(def AnalysisParams) AnalysisParams {
	if p.FastPeriod <= 0 {
		p.FastPeriod = def.FastPeriod
	}
	if p.SlowPeriod <= 0 {
		p.SlowPeriod = def.SlowPeriod
	}
	if p.MAType == "" {
		p.MAType = def.MAType
	}
	if p.FastThreshold <= 0 {
		p.FastThreshold = def.FastThreshold
	}
	if p.SlowThreshold <= 0 {
		p.SlowThreshold = def.SlowThreshold
	}
	if p.SlopeRadius <= 0 {
		p.SlopeRadius = def.SlopeRadius
	}
	if p.OscillatorPeriod <= 0 {
		p.OscillatorPeriod = def.OscillatorPeriod
	}
	return p
}

// Analyzer turns a candle window into classified segments and raw
// convergence signals.
type Analyzer interface {
	Analyze(symbol, interval string, candles []models.Candle, p AnalysisParams) (models.Analysis, error)
	Segments(candles []models.Candle, period int, threshold float64, p AnalysisParams) ([]models.ClassifiedSegment, error)
}

// SignalRegistry exposes the deduplicated signals of live series.
type SignalRegistry interface {
	Signals(ctx context.Context, symbol, interval string) ([]models.ConvergenceSignal, error)
}
