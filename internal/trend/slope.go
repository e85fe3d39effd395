package trend

import "math"

// DefaultRadius gives a three-sample window around each index.
const DefaultRadius = 1

// LocalSlope fits a degree-1 least-squares line over
// values[center-radius .. center+radius] (clipped to the series) and returns
// its slope in value units per sample. ok is false when fewer than two
// samples fall in the window or when any of them is missing.
func LocalSlope(values []float64, center, radius int) (float64, bool) {
	if radius < 0 || center < 0 || center >= len(values) {
		return 0, false
	}
	lo := max(center-radius, 0)
	hi := min(center+radius, len(values)-1)
	if hi-lo+1 < 2 {
		return 0, false
	}
	window := values[lo : hi+1]
	for _, v := range window {
		if missing(v) {
			return 0, false
		}
	}
	return fitLine(window)
}

// fitLine returns the least-squares slope of ys against their offsets.
// Missing samples are skipped but keep their offset.
func fitLine(ys []float64) (float64, bool) {
	var n, sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		if missing(y) {
			continue
		}
		x := float64(i)
		n++
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	if n < 2 {
		return 0, false
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, false
	}
	return (n*sumXY - sumX*sumY) / denom, true
}

func missing(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// stddev is the population standard deviation.
func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var acc float64
	for _, x := range xs {
		d := x - mean
		acc += d * d
	}
	return math.Sqrt(acc / float64(len(xs)))
}
