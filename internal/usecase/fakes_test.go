package usecase

import (
	"context"
	"errors"
	"sync"

	"ConvergeWatch/internal/convergence"
	"ConvergeWatch/internal/domain/models"
)

type nopMetrics struct{}

func (nopMetrics) RecordCandle(string, string) {}
func (nopMetrics) RecordSignal(string, models.SignalKind) {}
func (nopMetrics) RecordError(string) {}
func (nopMetrics) RecordLastPrice(string, float64) {}
func (nopMetrics) RecordLatency(string, float64) {}
func (nopMetrics) RecordRegistrySize(string, int) {}

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]models.ConvergenceSignal
	err     error
}

func (p *fakePublisher) Publish(ctx context.Context, s models.ConvergenceSignal) error {
	return p.PublishBatch(ctx, []models.ConvergenceSignal{s})
}

func (p *fakePublisher) PublishBatch(_ context.Context, signals []models.ConvergenceSignal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, append([]models.ConvergenceSignal(nil), signals...))
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) published() []models.ConvergenceSignal {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.ConvergenceSignal
	for _, b := range p.batches {
		out = append(out, b...)
	}
	return out
}

type memRegistry struct {
	mu    sync.Mutex
	snaps map[string]convergence.Snapshot
	fail  bool
}

func newMemRegistry() *memRegistry {
	return &memRegistry{snaps: make(map[string]convergence.Snapshot)}
}

func (r *memRegistry) Load(_ context.Context, symbol, interval string) (convergence.Snapshot, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return convergence.Snapshot{}, false, errors.New("registry down")
	}
	s, ok := r.snaps[symbol+":"+interval]
	return s, ok, nil
}

func (r *memRegistry) Save(_ context.Context, symbol, interval string, snap convergence.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("registry down")
	}
	r.snaps[symbol+":"+interval] = snap
	return nil
}
