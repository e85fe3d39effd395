package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ConvergeWatch/internal/convergence"
	"ConvergeWatch/internal/domain/models"
	domrepo "ConvergeWatch/internal/domain/repository"
	domsvc "ConvergeWatch/internal/domain/service"
	applogger "ConvergeWatch/pkg/logger"
)

// RegistryStore persists tracker state between restarts.
type RegistryStore interface {
	Load(ctx context.Context, symbol, interval string) (convergence.Snapshot, bool, error)
	Save(ctx context.Context, symbol, interval string, snap convergence.Snapshot) error
}

type MonitorConfig struct {
	Window    int
	MinGap    time.Duration
	Retention time.Duration
	Params    domsvc.AnalysisParams
}

// SignalMonitor re-analyzes a series whenever one of its candles closes and
// publishes the signals the series' tracker accepts for the first time.
type SignalMonitor struct {
	analyzer *Analyzer
	store    domrepo.CandleStore
	pub      domrepo.SignalPublisher
	registry RegistryStore
	metrics  domrepo.Metrics
	l        *applogger.Logger
	cfg      MonitorConfig
	now      func() time.Time

	mu     sync.Mutex
	series map[string]*seriesState
}

// seriesState serializes evaluations of one series so a signal is never
// reported as fresh twice.
type seriesState struct {
	ready   chan struct{}
	mu      sync.Mutex
	tracker *convergence.Tracker
	// IDs accepted by the tracker whose publish has not succeeded yet
	pending map[string]struct{}
}

// NewSignalMonitor builds a monitor; registry may be nil to keep state in memory only.
func NewSignalMonitor(
	analyzer *Analyzer,
	store domrepo.CandleStore,
	pub domrepo.SignalPublisher,
	registry RegistryStore,
	metrics domrepo.Metrics,
	l *applogger.Logger,
	cfg MonitorConfig,
) *SignalMonitor {
	if cfg.Window <= 0 {
		cfg.Window = 500
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &SignalMonitor{
		analyzer: analyzer,
		store:    store,
		pub:      pub,
		registry: registry,
		metrics:  metrics,
		l:        l,
		cfg:      cfg,
		now:      time.Now,
		series:   make(map[string]*seriesState),
	}
}

// Evaluate analyzes the current window of a series and publishes new signals.
func (m *SignalMonitor) Evaluate(ctx context.Context, symbol, interval string) ([]models.ConvergenceSignal, error) {
	return m.run(ctx, symbol, interval, true)
}

// Prime feeds the current window into the tracker without publishing, so
// signals already present in warm-up history are not announced as new.
func (m *SignalMonitor) Prime(ctx context.Context, symbol, interval string) error {
	_, err := m.run(ctx, symbol, interval, false)
	return err
}

// Signals returns the deduplicated alternating view of a series.
func (m *SignalMonitor) Signals(ctx context.Context, symbol, interval string) ([]models.ConvergenceSignal, error) {
	st, err := m.state(ctx, symbol, interval)
	if err != nil {
		return nil, err
	}
	return st.tracker.Signals(), nil
}

func (m *SignalMonitor) run(ctx context.Context, symbol, interval string, publish bool) ([]models.ConvergenceSignal, error) {
	start := time.Now()
	candles, err := m.store.GetLatestNCandles(ctx, symbol, m.cfg.Window, domrepo.Timeframe(interval))
	if err != nil {
		m.metrics.RecordError("monitor_window")
		return nil, fmt.Errorf("load window %s %s: %w", symbol, interval, err)
	}
	if len(candles) == 0 {
		return nil, nil
	}
	res, err := m.analyzer.Analyze(symbol, interval, candles, m.cfg.Params)
	if err != nil {
		m.metrics.RecordError("monitor_analyze")
		return nil, fmt.Errorf("analyze %s %s: %w", symbol, interval, err)
	}

	st, err := m.state(ctx, symbol, interval)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	tr := st.tracker

	known := make(map[string]struct{}, tr.Len())
	for _, s := range tr.Snapshot().Registry {
		known[s.ID] = struct{}{}
	}
	view := tr.Ingest(res.Signals, m.now())
	m.metrics.RecordRegistrySize(symbol, tr.Len())

	if !publish {
		m.save(ctx, symbol, interval, tr)
		m.metrics.RecordLatency("monitor_prime", time.Since(start).Seconds())
		return nil, nil
	}

	for _, s := range view {
		if _, ok := known[s.ID]; !ok {
			st.pending[s.ID] = struct{}{}
		}
	}
	fresh := st.unpublished(view)

	if len(fresh) > 0 {
		// pending stays set and the registry unsaved until the batch is delivered
		if err := m.pub.PublishBatch(ctx, fresh); err != nil {
			m.metrics.RecordError("monitor_publish")
			return fresh, fmt.Errorf("publish signals: %w", err)
		}
		clear(st.pending)
		for _, s := range fresh {
			m.metrics.RecordSignal(symbol, s.Kind)
			m.l.Info("convergence signal",
				applogger.String("id", s.ID),
				applogger.String("symbol", symbol),
				applogger.String("interval", interval),
				applogger.String("kind", string(s.Kind)),
				applogger.Time("at", s.Timestamp),
			)
		}
	}
	m.save(ctx, symbol, interval, tr)
	m.metrics.RecordLatency("monitor_evaluate", time.Since(start).Seconds())
	return fresh, nil
}

// unpublished returns the pending signals still visible in view, in view
// order. Pending signals that left the view are forgotten.
func (st *seriesState) unpublished(view []models.ConvergenceSignal) []models.ConvergenceSignal {
	var out []models.ConvergenceSignal
	visible := make(map[string]struct{}, len(view))
	for _, s := range view {
		visible[s.ID] = struct{}{}
		if _, ok := st.pending[s.ID]; ok {
			out = append(out, s)
		}
	}
	for id := range st.pending {
		if _, ok := visible[id]; !ok {
			delete(st.pending, id)
		}
	}
	return out
}

func (m *SignalMonitor) save(ctx context.Context, symbol, interval string, tr *convergence.Tracker) {
	if m.registry == nil {
		return
	}
	if err := m.registry.Save(ctx, symbol, interval, tr.Snapshot()); err != nil {
		m.metrics.RecordError("monitor_registry_save")
		m.l.Warn("registry save failed",
			applogger.String("symbol", symbol),
			applogger.String("interval", interval),
			applogger.Error(err),
		)
	}
}

// state returns the series state. The first caller for a series restores its
// tracker from the registry store outside the map lock; concurrent callers
// for the same series wait for that restore.
func (m *SignalMonitor) state(ctx context.Context, symbol, interval string) (*seriesState, error) {
	key := symbol + ":" + interval
	m.mu.Lock()
	st, ok := m.series[key]
	if !ok {
		st = &seriesState{
			ready:   make(chan struct{}),
			tracker: convergence.NewTracker(m.cfg.MinGap, m.cfg.Retention),
			pending: make(map[string]struct{}),
		}
		m.series[key] = st
	}
	m.mu.Unlock()

	if ok {
		select {
		case <-st.ready:
			return st, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	defer close(st.ready)
	m.restore(ctx, symbol, interval, st.tracker)
	return st, nil
}

func (m *SignalMonitor) restore(ctx context.Context, symbol, interval string, tr *convergence.Tracker) {
	if m.registry == nil {
		return
	}
	snap, ok, err := m.registry.Load(ctx, symbol, interval)
	if err != nil {
		m.metrics.RecordError("monitor_registry_load")
		m.l.Warn("registry load failed, starting empty",
			applogger.String("symbol", symbol),
			applogger.String("interval", interval),
			applogger.Error(err),
		)
		return
	}
	if !ok {
		return
	}
	tr.Restore(snap)
	m.l.Info("registry restored",
		applogger.String("symbol", symbol),
		applogger.String("interval", interval),
		applogger.Int("signals", tr.Len()),
	)
}

var _ domsvc.SignalRegistry = (*SignalMonitor)(nil)
