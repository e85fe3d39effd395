package trend

import (
	"math"
	"slices"

	"ConvergeWatch/internal/domain/models"
)

const (
	defaultMinPoints     = 10
	defaultMinSlopes     = 3
	defaultMinStride     = 20
	defaultStrideDivisor = 10
	defaultChangeFactor  = 0.8
	defaultMinChange     = 0.00005
)

// Builder partitions a series into contiguous linear segments. Breakpoints
// come from fixed checkpoints plus indices where the local slope jumps or
// changes sign.
type Builder struct {
	radius        int
	minPoints     int
	minSlopes     int
	minStride     int
	strideDivisor int
	changeFactor  float64
	minChange     float64
}

type Option func(*Builder)

// WithRadius sets the half-width of the local slope window.
func WithRadius(r int) Option {
	return func(b *Builder) {
		if r > 0 {
			b.radius = r
		}
	}
}

// WithMinStride sets the smallest distance between fixed checkpoints.
func WithMinStride(s int) Option {
	return func(b *Builder) {
		if s > 0 {
			b.minStride = s
		}
	}
}

// WithChangeFactor scales the slope standard deviation into the change threshold.
func WithChangeFactor(f float64) Option {
	return func(b *Builder) {
		if f > 0 {
			b.changeFactor = f
		}
	}
}

func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		radius:        DefaultRadius,
		minPoints:     defaultMinPoints,
		minSlopes:     defaultMinSlopes,
		minStride:     defaultMinStride,
		strideDivisor: defaultStrideDivisor,
		changeFactor:  defaultChangeFactor,
		minChange:     defaultMinChange,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildSegments runs a Builder with default settings.
func BuildSegments(points []models.Point) []models.Segment {
	return NewBuilder().Build(points)
}

type localSlope struct {
	index int
	slope float64
}

// Build returns the segments of points in index order. Adjacent segments
// share their boundary sample. Too little data yields nil.
func (b *Builder) Build(points []models.Point) []models.Segment {
	n := len(points)
	values := make([]float64, n)
	usable := 0
	for i, p := range points {
		values[i] = p.Value
		if !p.Missing() {
			usable++
		}
	}
	if usable < b.minPoints {
		return nil
	}

	slopes := b.localSlopes(values)
	if len(slopes) < b.minSlopes {
		return nil
	}

	raw := make([]float64, len(slopes))
	for i, s := range slopes {
		raw[i] = s.slope
	}
	threshold := math.Max(b.changeFactor*stddev(raw), b.minChange)

	breaks := b.checkpoints(n)
	for k := 1; k < len(slopes); k++ {
		prev, cur := slopes[k-1].slope, slopes[k].slope
		if math.Abs(cur-prev) > threshold || signFlip(prev, cur) {
			breaks = append(breaks, slopes[k].index)
		}
	}
	breaks = append(breaks, n-1)
	slices.Sort(breaks)
	breaks = slices.Compact(breaks)

	segments := make([]models.Segment, 0, len(breaks)-1)
	for k := 1; k < len(breaks); k++ {
		segments = append(segments, newSegment(points, values, breaks[k-1], breaks[k]))
	}
	return segments
}

func (b *Builder) localSlopes(values []float64) []localSlope {
	out := make([]localSlope, 0, len(values))
	for i := b.radius; i < len(values)-b.radius; i++ {
		s, ok := LocalSlope(values, i, b.radius)
		if !ok {
			continue
		}
		out = append(out, localSlope{index: i, slope: s})
	}
	return out
}

func (b *Builder) checkpoints(n int) []int {
	stride := max(b.minStride, n/b.strideDivisor)
	out := make([]int, 0, n/stride+2)
	for i := 0; i < n; i += stride {
		out = append(out, i)
	}
	return out
}

func newSegment(points []models.Point, values []float64, start, end int) models.Segment {
	slope, ok := fitLine(values[start : end+1])
	if !ok {
		slope = 0
	}
	return models.Segment{
		StartIndex: start,
		EndIndex:   end,
		StartTime:  points[start].Timestamp,
		EndTime:    points[end].Timestamp,
		StartValue: boundaryValue(values, start, end),
		EndValue:   boundaryValue(values, end, start),
		Slope:      slope,
		Length:     end - start + 1,
	}
}

// boundaryValue returns values[from], or the nearest usable sample walking
// towards to when that one is missing. A segment without usable samples
// reports 0.
func boundaryValue(values []float64, from, to int) float64 {
	step := 1
	if to < from {
		step = -1
	}
	for i := from; ; i += step {
		if !missing(values[i]) {
			return values[i]
		}
		if i == to {
			return 0
		}
	}
}

func signFlip(prev, cur float64) bool {
	return (prev > 0 && cur < 0) || (prev < 0 && cur > 0)
}
