package usecase

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"ConvergeWatch/internal/convergence"
	"ConvergeWatch/internal/domain/models"
	domsvc "ConvergeWatch/internal/domain/service"
	"ConvergeWatch/internal/indicator"
	"ConvergeWatch/internal/trend"
)

var ErrNoCandles = errors.New("no candles to analyze")

var signalNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("convergewatch/signals"))

// SignalID derives a stable id so the same signal found by two passes, or by
// two processes, is published under one id.
func SignalID(symbol, interval string, kind models.SignalKind, ts time.Time) string {
	name := fmt.Sprintf("%s|%s|%s|%d", symbol, interval, kind, ts.UnixMilli())
	return uuid.NewSHA1(signalNamespace, []byte(name)).String()
}

// Analyzer runs the moving-average segmentation and convergence detection
// over a candle window.
type Analyzer struct {
	defaults domsvc.AnalysisParams
}

func NewAnalyzer(defaults domsvc.AnalysisParams) *Analyzer {
	return &Analyzer{defaults: defaults.Merge(domsvc.AnalysisParams{
		FastPeriod:       7,
		SlowPeriod:       25,
		MAType:           string(indicator.SMA),
		FastThreshold:    0.0375,
		SlowThreshold:    0.052,
		SlopeRadius:      trend.DefaultRadius,
		OscillatorPeriod: 14,
	})}
}

func (a *Analyzer) Defaults() domsvc.AnalysisParams { return a.defaults }

func (a *Analyzer) Analyze(symbol, interval string, candles []models.Candle, p domsvc.AnalysisParams) (models.Analysis, error) {
	if len(candles) == 0 {
		return models.Analysis{}, ErrNoCandles
	}
	p = p.Merge(a.defaults)
	kind, err := indicator.ParseMAType(p.MAType)
	if err != nil {
		return models.Analysis{}, err
	}
	candles = sortedCandles(candles)
	builder := trend.NewBuilder(trend.WithRadius(p.SlopeRadius))

	fast := trend.ClassifyAll(builder.Build(indicator.MovingAverage(candles, kind, p.FastPeriod)), p.FastThreshold)
	slow := trend.ClassifyAll(builder.Build(indicator.MovingAverage(candles, kind, p.SlowPeriod)), p.SlowThreshold)

	ref := convergence.NewReferenceSeries(candles, indicator.RSI(candles, p.OscillatorPeriod))
	signals := convergence.Detect(fast, slow, ref)
	for i := range signals {
		signals[i].Symbol = symbol
		signals[i].Interval = interval
		signals[i].ID = SignalID(symbol, interval, signals[i].Kind, signals[i].Timestamp)
	}

	return models.Analysis{
		Symbol:      symbol,
		Interval:    interval,
		Timestamp:   candles[len(candles)-1].OpenTime,
		Candles:     len(candles),
		FastPeriod:  p.FastPeriod,
		SlowPeriod:  p.SlowPeriod,
		Fast:        fast,
		Slow:        slow,
		SlowChanges: trend.DirectionChanges(slow),
		Signals:     signals,
	}, nil
}

// Segments classifies a single moving average of the window.
func (a *Analyzer) Segments(candles []models.Candle, period int, threshold float64, p domsvc.AnalysisParams) ([]models.ClassifiedSegment, error) {
	if len(candles) == 0 {
		return nil, ErrNoCandles
	}
	p = p.Merge(a.defaults)
	kind, err := indicator.ParseMAType(p.MAType)
	if err != nil {
		return nil, err
	}
	if period <= 0 {
		period = p.FastPeriod
	}
	if threshold <= 0 {
		threshold = p.FastThreshold
	}
	builder := trend.NewBuilder(trend.WithRadius(p.SlopeRadius))
	points := indicator.MovingAverage(sortedCandles(candles), kind, period)
	return trend.ClassifyAll(builder.Build(points), threshold), nil
}

func sortedCandles(candles []models.Candle) []models.Candle {
	if sort.SliceIsSorted(candles, func(i, j int) bool { return candles[i].OpenTime.Before(candles[j].OpenTime) }) {
		return candles
	}
	out := make([]models.Candle, len(candles))
	copy(out, candles)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	return out
}

var _ domsvc.Analyzer = (*Analyzer)(nil)
