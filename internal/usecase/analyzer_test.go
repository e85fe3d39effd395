package usecase

import (
	"errors"
	"testing"
	"time"

	"ConvergeWatch/internal/domain/models"
	domsvc "ConvergeWatch/internal/domain/service"
)

var t0 = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func candlesFromCloses(symbol string, closes []float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		open := t0.Add(time.Duration(i) * time.Minute)
		out[i] = models.Candle{
			Symbol: symbol, Interval: "1m",
			OpenTime: open, CloseTime: open.Add(time.Minute - time.Millisecond),
			Open: c, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 1, Closed: true,
		}
	}
	return out
}

// tent rises by 1 per candle up to the middle and falls by 1.5 afterwards.
func tent(n int) []float64 {
	out := make([]float64, n)
	top := n / 2
	for i := range out {
		if i <= top {
			out[i] = 100 + float64(i)
		} else {
			out[i] = 100 + float64(top) - 1.5*float64(i-top)
		}
	}
	return out
}

func TestAnalyzeTentEmitsSellAfterPeak(t *testing.T) {
	a := NewAnalyzer(domsvc.AnalysisParams{})
	candles := candlesFromCloses("BTCUSDT", tent(200))

	res, err := a.Analyze("BTCUSDT", "1m", candles, domsvc.AnalysisParams{})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if res.FastPeriod != 7 || res.SlowPeriod != 25 || res.Candles != 200 {
		t.Fatalf("unexpected header %+v", res)
	}
	if len(res.Fast) == 0 || len(res.Slow) == 0 {
		t.Fatalf("expected segments, got fast=%d slow=%d", len(res.Fast), len(res.Slow))
	}
	if res.Slow[0].Direction != models.DirectionBullish {
		t.Fatalf("slow series should start bullish, got %s", res.Slow[0].Direction)
	}
	if len(res.Signals) == 0 {
		t.Fatalf("expected a sell convergence after the peak")
	}
	peak := candles[100].OpenTime
	for _, s := range res.Signals {
		if s.Kind != models.SignalSellConvergence {
			t.Fatalf("unexpected %s at %v", s.Kind, s.Timestamp)
		}
		if !s.Timestamp.After(peak) {
			t.Fatalf("signal %v precedes the peak", s.Timestamp)
		}
		if s.Symbol != "BTCUSDT" || s.Interval != "1m" || s.ID == "" {
			t.Fatalf("signal not stamped: %+v", s)
		}
		if s.ReferencePrice == nil {
			t.Fatalf("expected reference price at %v", s.Timestamp)
		}
	}
}

func TestAnalyzeMonotoneHasNoSignals(t *testing.T) {
	closes := make([]float64, 150)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	res, err := NewAnalyzer(domsvc.AnalysisParams{}).Analyze("ETHUSDT", "1m", candlesFromCloses("ETHUSDT", closes), domsvc.AnalysisParams{})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(res.Signals) != 0 || len(res.SlowChanges) != 0 {
		t.Fatalf("expected no changes, got %+v", res.SlowChanges)
	}
}

func TestAnalyzeAcceptsUnsortedInput(t *testing.T) {
	a := NewAnalyzer(domsvc.AnalysisParams{})
	candles := candlesFromCloses("BTCUSDT", tent(200))
	shuffled := make([]models.Candle, 0, len(candles))
	for i := len(candles) - 1; i >= 0; i-- {
		shuffled = append(shuffled, candles[i])
	}
	want, _ := a.Analyze("BTCUSDT", "1m", candles, domsvc.AnalysisParams{})
	got, err := a.Analyze("BTCUSDT", "1m", shuffled, domsvc.AnalysisParams{})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(got.Signals) != len(want.Signals) || !got.Timestamp.Equal(want.Timestamp) {
		t.Fatalf("order of input changed the result")
	}
}

func TestAnalyzeErrors(t *testing.T) {
	a := NewAnalyzer(domsvc.AnalysisParams{})
	if _, err := a.Analyze("X", "1m", nil, domsvc.AnalysisParams{}); !errors.Is(err, ErrNoCandles) {
		t.Fatalf("expected ErrNoCandles, got %v", err)
	}
	candles := candlesFromCloses("X", tent(50))
	if _, err := a.Analyze("X", "1m", candles, domsvc.AnalysisParams{MAType: "hull"}); err == nil {
		t.Fatalf("expected error for unknown MA type")
	}
}

func TestSegmentsShortWindow(t *testing.T) {
	a := NewAnalyzer(domsvc.AnalysisParams{})
	segs, err := a.Segments(candlesFromCloses("X", tent(12)), 7, 0, domsvc.AnalysisParams{})
	if err != nil {
		t.Fatalf("segments: %v", err)
	}
	if len(segs) != 0 {
		t.Fatalf("6 MA points cannot be segmented, got %d segments", len(segs))
	}
}

func TestParamsMerge(t *testing.T) {
	def := NewAnalyzer(domsvc.AnalysisParams{SlowPeriod: 30}).Defaults()
	if def.SlowPeriod != 30 || def.FastPeriod != 7 || def.SlowThreshold != 0.052 {
		t.Fatalf("unexpected defaults %+v", def)
	}
	p := domsvc.AnalysisParams{FastPeriod: 5}.Merge(def)
	if p.FastPeriod != 5 || p.SlowPeriod != 30 || p.MAType != "sma" {
		t.Fatalf("unexpected merge %+v", p)
	}
}

func TestSignalIDDeterministic(t *testing.T) {
	ts := t0.Add(40 * time.Minute)
	a := SignalID("BTCUSDT", "1m", models.SignalSellConvergence, ts)
	b := SignalID("BTCUSDT", "1m", models.SignalSellConvergence, ts)
	c := SignalID("BTCUSDT", "1m", models.SignalBuyConvergence, ts)
	if a != b {
		t.Fatalf("same inputs gave %s and %s", a, b)
	}
	if a == c {
		t.Fatalf("kind must be part of the id")
	}
}
