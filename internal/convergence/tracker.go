package convergence

import (
	"sort"
	"sync"
	"time"

	"ConvergeWatch/internal/domain/models"
)

const (
	DefaultMinGap    = 5 * time.Second
	DefaultRetention = 30 * time.Minute
)

// Tracker owns the rolling signal registry of one series. The registry never
// holds two same-kind entries closer than minGap and never keeps entries older
// than retention relative to its newest entry.
type Tracker struct {
	mu         sync.Mutex
	minGap     time.Duration
	retention  time.Duration
	registry   []models.ConvergenceSignal
	lastIngest time.Time
}

// Snapshot is the persisted form of a Tracker.
type Snapshot struct {
	Registry   []models.ConvergenceSignal `json:"registry"`
	LastIngest time.Time                  `json:"last_ingest"`
}

func NewTracker(minGap, retention time.Duration) *Tracker {
	if minGap <= 0 {
		minGap = DefaultMinGap
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Tracker{minGap: minGap, retention: retention}
}

// Ingest merges signals into the registry and returns the alternating
// buy/sell view of it. Re-ingesting the returned list changes nothing.
func (t *Tracker) Ingest(signals []models.ConvergenceSignal, now time.Time) []models.ConvergenceSignal {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range signals {
		if t.duplicate(s) {
			continue
		}
		t.registry = append(t.registry, s)
	}
	t.purge()
	t.lastIngest = now
	return alternate(t.registry)
}

// Signals returns the current filtered view without ingesting anything.
func (t *Tracker) Signals() []models.ConvergenceSignal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return alternate(t.registry)
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.registry)
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	reg := make([]models.ConvergenceSignal, len(t.registry))
	copy(reg, t.registry)
	return Snapshot{Registry: reg, LastIngest: t.lastIngest}
}

// Restore replaces the registry with a snapshot, re-applying retention.
func (t *Tracker) Restore(s Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.registry = t.registry[:0]
	for _, sig := range s.Registry {
		if !t.duplicate(sig) {
			t.registry = append(t.registry, sig)
		}
	}
	t.lastIngest = s.LastIngest
	t.purge()
}

func (t *Tracker) duplicate(s models.ConvergenceSignal) bool {
	for _, r := range t.registry {
		if r.Kind != s.Kind {
			continue
		}
		d := s.Timestamp.Sub(r.Timestamp)
		if d < 0 {
			d = -d
		}
		if d < t.minGap {
			return true
		}
	}
	return false
}

// purge drops stale entries and leaves the registry sorted by timestamp.
func (t *Tracker) purge() {
	if len(t.registry) == 0 {
		return
	}
	latest := t.registry[0].Timestamp
	for _, r := range t.registry[1:] {
		if r.Timestamp.After(latest) {
			latest = r.Timestamp
		}
	}
	kept := t.registry[:0]
	for _, r := range t.registry {
		if latest.Sub(r.Timestamp) <= t.retention {
			kept = append(kept, r)
		}
	}
	t.registry = kept
	sort.SliceStable(t.registry, func(i, j int) bool {
		return t.registry[i].Timestamp.Before(t.registry[j].Timestamp)
	})
}

// alternate keeps an entry only when its kind differs from the previously
// kept one. reg must be sorted.
func alternate(reg []models.ConvergenceSignal) []models.ConvergenceSignal {
	out := make([]models.ConvergenceSignal, 0, len(reg))
	for _, s := range reg {
		if len(out) > 0 && out[len(out)-1].Kind == s.Kind {
			continue
		}
		out = append(out, s)
	}
	return out
}
