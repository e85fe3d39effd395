package convergence

import (
	"math"
	"sort"
	"time"

	"ConvergeWatch/internal/domain/models"
)

// ReferenceSeries resolves the candle close and oscillator value nearest to
// an arbitrary timestamp.
type ReferenceSeries struct {
	times      []time.Time
	prices     []float64
	oscillator []float64
}

// NewReferenceSeries indexes candles by open time. oscillator, when given,
// must be aligned with candles; NaN entries mean "not available".
func NewReferenceSeries(candles []models.Candle, oscillator []float64) ReferenceSeries {
	idx := make([]int, len(candles))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return candles[idx[a]].OpenTime.Before(candles[idx[b]].OpenTime)
	})

	r := ReferenceSeries{
		times:  make([]time.Time, len(candles)),
		prices: make([]float64, len(candles)),
	}
	if len(oscillator) == len(candles) {
		r.oscillator = make([]float64, len(candles))
	}
	for i, j := range idx {
		r.times[i] = candles[j].OpenTime
		r.prices[i] = candles[j].Close
		if r.oscillator != nil {
			r.oscillator[i] = oscillator[j]
		}
	}
	return r
}

func (r ReferenceSeries) Len() int { return len(r.times) }

// Lookup returns the values at ts or at the nearest sample, preferring the
// earlier sample when two are equally close. Both results are nil for an
// empty series.
func (r ReferenceSeries) Lookup(ts time.Time) (price, oscillator *float64) {
	i, ok := r.nearest(ts)
	if !ok {
		return nil, nil
	}
	if p := r.prices[i]; !math.IsNaN(p) {
		price = &p
	}
	if r.oscillator != nil {
		if o := r.oscillator[i]; !math.IsNaN(o) {
			oscillator = &o
		}
	}
	return price, oscillator
}

func (r ReferenceSeries) nearest(ts time.Time) (int, bool) {
	n := len(r.times)
	if n == 0 {
		return 0, false
	}
	i := sort.Search(n, func(k int) bool { return !r.times[k].Before(ts) })
	switch {
	case i == n:
		return n - 1, true
	case r.times[i].Equal(ts) || i == 0:
		return i, true
	}
	before := ts.Sub(r.times[i-1])
	after := r.times[i].Sub(ts)
	if after < before {
		return i, true
	}
	return i - 1, true
}
