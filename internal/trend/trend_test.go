package trend

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"ConvergeWatch/internal/domain/models"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func series(values []float64) []models.Point {
	out := make([]models.Point, len(values))
	for i, v := range values {
		out[i] = models.Point{Timestamp: base.Add(time.Duration(i) * time.Minute), Value: v}
	}
	return out
}

func linear(n int, slope float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + slope*float64(i)
	}
	return out
}

// peak rises by 0.01 per sample up to index 40 and falls afterwards.
func peak() []float64 {
	out := make([]float64, 80)
	for i := range out {
		if i <= 40 {
			out[i] = float64(i) / 100
		} else {
			out[i] = float64(80-i) / 100
		}
	}
	return out
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestLocalSlope(t *testing.T) {
	values := linear(10, 0.5)

	s, ok := LocalSlope(values, 4, 1)
	if !ok || !approx(s, 0.5) {
		t.Fatalf("expected slope 0.5, got %v ok=%v", s, ok)
	}

	s, ok = LocalSlope(values, 0, 1)
	if !ok || !approx(s, 0.5) {
		t.Fatalf("clipped window should still fit two samples, got %v ok=%v", s, ok)
	}

	if _, ok := LocalSlope([]float64{1}, 0, 1); ok {
		t.Fatalf("single sample must be undefined")
	}

	values[5] = math.NaN()
	if _, ok := LocalSlope(values, 4, 1); ok {
		t.Fatalf("missing sample in window must abort the fit")
	}
	if _, ok := LocalSlope(values, 7, 1); !ok {
		t.Fatalf("missing sample outside the window must not matter")
	}
}

func TestBuildTooShort(t *testing.T) {
	if segs := BuildSegments(series(linear(9, 1))); segs != nil {
		t.Fatalf("expected no segments for 9 points, got %d", len(segs))
	}

	values := linear(12, 1)
	values[2], values[5], values[8] = math.NaN(), math.NaN(), math.NaN()
	if segs := BuildSegments(series(values)); segs != nil {
		t.Fatalf("expected no segments for 9 usable points, got %d", len(segs))
	}

	if segs := NewBuilder(WithRadius(6)).Build(series(linear(12, 1))); segs != nil {
		t.Fatalf("expected no segments when fewer than 3 local slopes exist, got %d", len(segs))
	}
}

func TestBuildCoversSeries(t *testing.T) {
	values := make([]float64, 157)
	for i := range values {
		values[i] = 50 + 3*math.Sin(float64(i)/9) + 0.02*float64(i)
	}
	segs := BuildSegments(series(values))
	if len(segs) == 0 {
		t.Fatalf("expected segments")
	}
	if segs[0].StartIndex != 0 {
		t.Errorf("first segment starts at %d", segs[0].StartIndex)
	}
	if last := segs[len(segs)-1]; last.EndIndex != len(values)-1 {
		t.Errorf("last segment ends at %d", last.EndIndex)
	}
	for i, s := range segs {
		if s.EndTime.Before(s.StartTime) {
			t.Errorf("segment %d ends before it starts", i)
		}
		if s.Length != s.EndIndex-s.StartIndex+1 {
			t.Errorf("segment %d length %d mismatch", i, s.Length)
		}
		if i > 0 {
			prev := segs[i-1]
			if prev.EndIndex != s.StartIndex {
				t.Errorf("gap between segment %d and %d", i-1, i)
			}
			if !s.StartTime.After(prev.StartTime) {
				t.Errorf("segments not ordered at %d", i)
			}
		}
	}
}

func TestBuildCheckpointStride(t *testing.T) {
	segs := BuildSegments(series(linear(300, -0.2)))
	// stride is max(20, 300/10) = 30 and a straight line adds no breakpoints
	if len(segs) != 10 {
		t.Fatalf("expected 10 segments, got %d", len(segs))
	}
	for i, s := range segs {
		if s.StartIndex != i*30 {
			t.Errorf("segment %d starts at %d", i, s.StartIndex)
		}
		if !approx(s.Slope, -0.2) {
			t.Errorf("segment %d slope %v", i, s.Slope)
		}
	}
}

func TestBuildDetectsTurn(t *testing.T) {
	segs := BuildSegments(series(peak()))
	wantStarts := []int{0, 20, 40, 41, 60}
	if len(segs) != len(wantStarts) {
		t.Fatalf("expected %d segments, got %d: %+v", len(wantStarts), len(segs), segs)
	}
	for i, s := range segs {
		if s.StartIndex != wantStarts[i] {
			t.Errorf("segment %d starts at %d, want %d", i, s.StartIndex, wantStarts[i])
		}
	}
	if !approx(segs[0].Slope, 0.01) || !approx(segs[3].Slope, -0.01) {
		t.Errorf("unexpected slopes %v / %v", segs[0].Slope, segs[3].Slope)
	}
}

func TestBuildSkipsMissingInsideSegment(t *testing.T) {
	values := linear(60, 0.3)
	values[10] = math.NaN()
	segs := BuildSegments(series(values))
	if len(segs) == 0 {
		t.Fatalf("expected segments")
	}
	if !approx(segs[0].Slope, 0.3) {
		t.Fatalf("segment fit should ignore the missing sample, got %v", segs[0].Slope)
	}
}

func TestBuildMissingBreakpointUsesNearestSample(t *testing.T) {
	values := linear(60, 0.3)
	values[0] = math.NaN()
	values[20] = math.NaN()
	segs := BuildSegments(series(values))
	if len(segs) < 2 || segs[0].EndIndex != 20 || segs[1].StartIndex != 20 {
		t.Fatalf("expected a breakpoint at 20, got %+v", segs)
	}
	if !approx(segs[0].StartValue, values[1]) || !approx(segs[0].EndValue, values[19]) {
		t.Fatalf("first segment bounds %v/%v, want %v/%v", segs[0].StartValue, segs[0].EndValue, values[1], values[19])
	}
	if !approx(segs[1].StartValue, values[21]) {
		t.Fatalf("second segment start %v, want %v", segs[1].StartValue, values[21])
	}
	if _, err := json.Marshal(segs); err != nil {
		t.Fatalf("segments must serialize: %v", err)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		slope float64
		want  models.Direction
	}{
		{0.06, models.DirectionBullish},
		{-0.06, models.DirectionBearish},
		{0.052, models.DirectionLateral},
		{-0.052, models.DirectionLateral},
		{0, models.DirectionLateral},
	}
	for _, tc := range cases {
		if got := Classify(models.Segment{Slope: tc.slope}, 0.052); got != tc.want {
			t.Errorf("Classify(%v) = %s, want %s", tc.slope, got, tc.want)
		}
	}
}

func TestClassifyThresholdMonotonic(t *testing.T) {
	slopes := []float64{-0.3, -0.05, -0.01, 0, 0.004, 0.02, 0.2}
	thresholds := []float64{0, 0.005, 0.02, 0.05, 0.5}
	for _, s := range slopes {
		seg := models.Segment{Slope: s}
		for i := 1; i < len(thresholds); i++ {
			lo := Classify(seg, thresholds[i-1])
			hi := Classify(seg, thresholds[i])
			if lo == models.DirectionLateral && hi != models.DirectionLateral {
				t.Errorf("slope %v became %s when threshold rose to %v", s, hi, thresholds[i])
			}
		}
	}
}

func classified(dirs ...models.Direction) []models.ClassifiedSegment {
	out := make([]models.ClassifiedSegment, len(dirs))
	for i, d := range dirs {
		out[i] = models.ClassifiedSegment{
			Segment: models.Segment{
				StartIndex: i * 10,
				EndIndex:   (i + 1) * 10,
				StartTime:  base.Add(time.Duration(i*10) * time.Minute),
				EndTime:    base.Add(time.Duration((i+1)*10) * time.Minute),
			},
			Direction: d,
		}
	}
	return out
}

func TestDirectionChanges(t *testing.T) {
	segs := classified(
		models.DirectionBullish,
		models.DirectionBullish,
		models.DirectionLateral,
		models.DirectionBearish,
		models.DirectionBearish,
		models.DirectionLateral,
		models.DirectionBullish,
	)
	changes := DirectionChanges(segs)
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d: %+v", len(changes), changes)
	}
	if changes[0].New != models.DirectionBearish || !changes[0].Timestamp.Equal(segs[3].StartTime) {
		t.Errorf("unexpected first change %+v", changes[0])
	}
	if changes[1].Previous != models.DirectionLateral || changes[1].New != models.DirectionBullish {
		t.Errorf("unexpected second change %+v", changes[1])
	}
	for _, c := range changes {
		if c.New == models.DirectionLateral {
			t.Errorf("lateral change emitted at %v", c.Timestamp)
		}
	}
}

func TestDirectionChangesSingleSegment(t *testing.T) {
	if changes := DirectionChanges(classified(models.DirectionBearish)); len(changes) != 0 {
		t.Fatalf("first segment must never emit, got %+v", changes)
	}
}

func TestDirectionAtFirstMatchWins(t *testing.T) {
	segs := classified(models.DirectionBullish, models.DirectionBearish)
	d, ok := DirectionAt(segs, segs[1].StartTime)
	if !ok || d != models.DirectionBullish {
		t.Fatalf("shared boundary should resolve to the earlier segment, got %s ok=%v", d, ok)
	}
	if _, ok := DirectionAt(segs, base.Add(-time.Minute)); ok {
		t.Fatalf("timestamp before the series must not match")
	}
}

func TestPeakSeriesChangesOnce(t *testing.T) {
	segs := ClassifyAll(BuildSegments(series(peak())), 0.005)
	changes := DirectionChanges(segs)
	if len(changes) != 1 {
		t.Fatalf("expected one change, got %+v", changes)
	}
	if changes[0].New != models.DirectionBearish || !changes[0].Timestamp.Equal(base.Add(40*time.Minute)) {
		t.Fatalf("unexpected change %+v", changes[0])
	}
}
