package indicator

import (
	"fmt"
	"math"
	"strings"

	"github.com/markcheno/go-talib"

	"ConvergeWatch/internal/domain/models"
)

type MAType string

const (
	SMA MAType = "sma"
	EMA MAType = "ema"
	WMA MAType = "wma"
)

func ParseMAType(s string) (MAType, error) {
	switch t := MAType(strings.ToLower(strings.TrimSpace(s))); t {
	case SMA, EMA, WMA:
		return t, nil
	case "":
		return SMA, nil
	default:
		return "", fmt.Errorf("unknown moving average type %q", s)
	}
}

func Closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// MovingAverage returns the moving average of closes as a point series keyed
// by candle open time. The warm-up samples are dropped, so the first point
// belongs to candle period-1.
func MovingAverage(candles []models.Candle, kind MAType, period int) []models.Point {
	if period <= 0 || len(candles) < period {
		return nil
	}
	closes := Closes(candles)
	var raw []float64
	switch kind {
	case EMA:
		raw = talib.Ema(closes, period)
	case WMA:
		raw = talib.Wma(closes, period)
	default:
		raw = talib.Sma(closes, period)
	}
	out := make([]models.Point, 0, len(candles)-period+1)
	for i := period - 1; i < len(raw); i++ {
		out = append(out, models.Point{Timestamp: candles[i].OpenTime, Value: raw[i]})
	}
	return out
}

// RSI is aligned with candles; the first period entries are NaN.
func RSI(candles []models.Candle, period int) []float64 {
	if period <= 0 || len(candles) <= period {
		return nil
	}
	return withLookback(talib.Rsi(Closes(candles), period), period)
}

// MACD is aligned with candles; entries before the signal line settles are NaN.
func MACD(candles []models.Candle, fast, slow, signal int) (macd, sig, hist []float64) {
	lookback := slow - 1 + signal - 1
	if fast <= 0 || slow <= fast || signal <= 0 || len(candles) <= lookback {
		return nil, nil, nil
	}
	m, s, h := talib.Macd(Closes(candles), fast, slow, signal)
	return withLookback(m, lookback), withLookback(s, lookback), withLookback(h, lookback)
}

// Last returns the newest defined value of a series.
func Last(series []float64) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) {
			return series[i], true
		}
	}
	return 0, false
}

// withLookback marks the talib warm-up zone, which talib fills with zeros.
func withLookback(series []float64, lookback int) []float64 {
	for i := 0; i < lookback && i < len(series); i++ {
		series[i] = math.NaN()
	}
	return series
}
