package convergence

import (
	"sync"
	"testing"
	"time"

	"ConvergeWatch/internal/domain/models"
)

func sig(kind models.SignalKind, offset time.Duration) models.ConvergenceSignal {
	return models.ConvergenceSignal{Kind: kind, Timestamp: base.Add(offset)}
}

const (
	buy  = models.SignalBuyConvergence
	sell = models.SignalSellConvergence
)

func kinds(signals []models.ConvergenceSignal) []models.SignalKind {
	out := make([]models.SignalKind, len(signals))
	for i, s := range signals {
		out[i] = s.Kind
	}
	return out
}

func equalSignals(a, b []models.ConvergenceSignal) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Kind != b[i].Kind || !a[i].Timestamp.Equal(b[i].Timestamp) {
			return false
		}
	}
	return true
}

func TestTrackerDropsNearDuplicates(t *testing.T) {
	tr := NewTracker(0, 0)
	out := tr.Ingest([]models.ConvergenceSignal{sig(buy, 0), sig(buy, 2*time.Second)}, base)
	if len(out) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(out))
	}
	if tr.Len() != 1 {
		t.Fatalf("registry should hold 1 entry, got %d", tr.Len())
	}
}

func TestTrackerDuplicateGapIsPerKind(t *testing.T) {
	tr := NewTracker(5*time.Second, 0)
	out := tr.Ingest([]models.ConvergenceSignal{sig(buy, 0), sig(sell, 2*time.Second)}, base)
	if len(out) != 2 {
		t.Fatalf("opposite kinds must not deduplicate each other, got %+v", out)
	}
}

func TestTrackerKeepsAlternatingSignals(t *testing.T) {
	tr := NewTracker(0, 0)
	in := []models.ConvergenceSignal{
		sig(buy, 0),
		sig(sell, 10*time.Second),
		sig(buy, 20*time.Second),
		sig(sell, 30*time.Second),
	}
	out := tr.Ingest(in, base)
	if !equalSignals(out, in) {
		t.Fatalf("expected all four signals in order, got %v", kinds(out))
	}
}

func TestTrackerCollapsesRuns(t *testing.T) {
	tr := NewTracker(0, 0)
	out := tr.Ingest([]models.ConvergenceSignal{
		sig(sell, 40*time.Second),
		sig(buy, 0),
		sig(buy, 20*time.Second),
		sig(sell, 60*time.Second),
	}, base)
	want := []models.ConvergenceSignal{sig(buy, 0), sig(sell, 40*time.Second)}
	if !equalSignals(out, want) {
		t.Fatalf("got %v", out)
	}
	if tr.Len() != 4 {
		t.Fatalf("registry keeps collapsed entries, got %d", tr.Len())
	}
	for i := 1; i < len(out); i++ {
		if out[i].Kind == out[i-1].Kind {
			t.Fatalf("consecutive %s at %d", out[i].Kind, i)
		}
	}
}

func TestTrackerIdempotent(t *testing.T) {
	in := []models.ConvergenceSignal{
		sig(buy, 0),
		sig(buy, 3*time.Second),
		sig(sell, 15*time.Second),
		sig(sell, 50*time.Second),
		sig(buy, 90*time.Second),
	}
	tr := NewTracker(0, 0)
	first := tr.Ingest(in, base)
	second := tr.Ingest(first, base)
	if !equalSignals(first, second) {
		t.Fatalf("re-ingest changed output: %v vs %v", first, second)
	}
}

func TestTrackerRetention(t *testing.T) {
	tr := NewTracker(0, 30*time.Minute)
	tr.Ingest([]models.ConvergenceSignal{
		sig(buy, 0),
		sig(sell, time.Second),
	}, base)

	out := tr.Ingest([]models.ConvergenceSignal{sig(buy, 30*time.Minute+time.Second)}, base)
	// the entry at 0 is 1801s old and purged, the one at 1s is exactly at the boundary
	want := []models.ConvergenceSignal{sig(sell, time.Second), sig(buy, 30*time.Minute+time.Second)}
	if !equalSignals(out, want) {
		t.Fatalf("got %+v", out)
	}

	latest := base.Add(30*time.Minute + time.Second)
	for _, s := range tr.Snapshot().Registry {
		if latest.Sub(s.Timestamp) > 30*time.Minute {
			t.Errorf("stale entry %v kept", s.Timestamp)
		}
	}
}

func TestTrackerSnapshotRestore(t *testing.T) {
	tr := NewTracker(0, 0)
	now := base.Add(time.Minute)
	tr.Ingest([]models.ConvergenceSignal{sig(buy, 0), sig(sell, 20*time.Second)}, now)

	snap := tr.Snapshot()
	if !snap.LastIngest.Equal(now) {
		t.Fatalf("last ingest not recorded")
	}

	restored := NewTracker(0, 0)
	restored.Restore(snap)
	if !equalSignals(restored.Signals(), tr.Signals()) {
		t.Fatalf("restored tracker differs")
	}

	out := restored.Ingest([]models.ConvergenceSignal{sig(sell, 22*time.Second)}, now)
	if len(out) != 2 || restored.Len() != 2 {
		t.Fatalf("restored registry must still deduplicate, got %d entries", restored.Len())
	}
}

func TestTrackerConcurrentIngest(t *testing.T) {
	tr := NewTracker(0, 0)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				kind := buy
				if i%2 == 1 {
					kind = sell
				}
				tr.Ingest([]models.ConvergenceSignal{sig(kind, time.Duration(i)*10*time.Second)}, base)
			}
		}(g)
	}
	wg.Wait()
	if tr.Len() != 50 {
		t.Fatalf("expected 50 distinct entries, got %d", tr.Len())
	}
	out := tr.Signals()
	for i := 1; i < len(out); i++ {
		if out[i].Kind == out[i-1].Kind {
			t.Fatalf("consecutive %s at %d", out[i].Kind, i)
		}
	}
}
