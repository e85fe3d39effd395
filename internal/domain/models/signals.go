package models

import "time"

type SignalKind string

const (
	SignalBuyConvergence  SignalKind = "buy_convergence"
	SignalSellConvergence SignalKind = "sell_convergence"
)

// SignalKindFor maps a decisive direction to the signal it produces.
func SignalKindFor(d Direction) (SignalKind, bool) {
	switch d {
	case DirectionBullish:
		return SignalBuyConvergence, true
	case DirectionBearish:
		return SignalSellConvergence, true
	default:
		return "", false
	}
}

// ConvergenceSignal is emitted when a slow-series direction change happens
// while the fast series already trends the same way.
type ConvergenceSignal struct {
	ID                  string     `json:"id,omitempty"`
	Symbol              string     `json:"symbol,omitempty"`
	Interval            string     `json:"interval,omitempty"`
	Timestamp           time.Time  `json:"timestamp"`
	Kind                SignalKind `json:"kind"`
	FastDirection       Direction  `json:"fast_direction"`
	SlowChange          Direction  `json:"slow_change"`
	ReferencePrice      *float64   `json:"reference_price,omitempty"`
	ReferenceOscillator *float64   `json:"reference_oscillator,omitempty"`
}

// Analysis is the result of one pipeline pass over a candle window.
type Analysis struct {
	Symbol      string              `json:"symbol"`
	Interval    string              `json:"interval"`
	Timestamp   time.Time           `json:"timestamp"`
	Candles     int                 `json:"candles"`
	FastPeriod  int                 `json:"fast_period"`
	SlowPeriod  int                 `json:"slow_period"`
	Fast        []ClassifiedSegment `json:"fast"`
	Slow        []ClassifiedSegment `json:"slow"`
	SlowChanges []DirectionChange   `json:"slow_changes"`
	Signals     []ConvergenceSignal `json:"signals"`
}

// SymbolOverview summarizes the current trend state of one symbol.
type SymbolOverview struct {
	Symbol        string             `json:"symbol"`
	FastDirection Direction          `json:"fast_direction,omitempty"`
	SlowDirection Direction          `json:"slow_direction,omitempty"`
	LastSignal    *ConvergenceSignal `json:"last_signal,omitempty"`
	LastPrice     float64            `json:"last_price"`
}

// Overview aggregates symbol summaries; per-symbol failures are reported in
// Errors instead of failing the whole request.
type Overview struct {
	Interval  string            `json:"interval"`
	Timestamp time.Time         `json:"timestamp"`
	Symbols   []SymbolOverview  `json:"symbols"`
	Errors    map[string]string `json:"errors,omitempty"`
}
