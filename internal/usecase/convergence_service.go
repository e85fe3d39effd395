package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ConvergeWatch/internal/domain/models"
	domrepo "ConvergeWatch/internal/domain/repository"
	domsvc "ConvergeWatch/internal/domain/service"
)

// ConvergenceService answers on-demand analysis queries over the candle store.
type ConvergenceService struct {
	store    domrepo.CandleStore
	analyzer domsvc.Analyzer
	registry domsvc.SignalRegistry
	timeout  time.Duration
}

func NewConvergenceService(store domrepo.CandleStore, analyzer domsvc.Analyzer, registry domsvc.SignalRegistry) *ConvergenceService {
	return &ConvergenceService{store: store, analyzer: analyzer, registry: registry, timeout: 10 * time.Second}
}

type SegmentsParams struct {
	Symbol    string
	Timeframe domrepo.Timeframe
	N         int
	Period    int
	Threshold float64
}

type SegmentsResult struct {
	Symbol    string                     `json:"symbol"`
	Timeframe string                     `json:"tf"`
	Period    int                        `json:"period,omitempty"`
	Segments  []models.ClassifiedSegment `json:"segments"`
}

func (s *ConvergenceService) Segments(ctx context.Context, p SegmentsParams) (*SegmentsResult, error) {
	candles, err := s.window(ctx, p.Symbol, p.N, p.Timeframe)
	if err != nil {
		return nil, err
	}
	segs, err := s.analyzer.Segments(candles, p.Period, p.Threshold, domsvc.AnalysisParams{})
	if err != nil {
		return nil, err
	}
	if segs == nil {
		segs = []models.ClassifiedSegment{}
	}
	return &SegmentsResult{Symbol: p.Symbol, Timeframe: string(p.Timeframe), Period: p.Period, Segments: segs}, nil
}

type ConvergenceParams struct {
	Symbol    string
	Timeframe domrepo.Timeframe
	N         int
	Params    domsvc.AnalysisParams
}

// Convergences runs a full analysis pass. The signals are raw detector
// output; the deduplicated live view is served by Signals.
func (s *ConvergenceService) Convergences(ctx context.Context, p ConvergenceParams) (*models.Analysis, error) {
	candles, err := s.window(ctx, p.Symbol, p.N, p.Timeframe)
	if err != nil {
		return nil, err
	}
	res, err := s.analyzer.Analyze(p.Symbol, string(p.Timeframe), candles, p.Params)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *ConvergenceService) Signals(ctx context.Context, symbol string, tf domrepo.Timeframe) ([]models.ConvergenceSignal, error) {
	out, err := s.registry.Signals(ctx, symbol, string(tf))
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.ConvergenceSignal{}
	}
	return out, nil
}

// Overview analyzes several symbols concurrently.
func (s *ConvergenceService) Overview(ctx context.Context, symbols []string, tf domrepo.Timeframe, n int) (*models.Overview, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res := &models.Overview{
		Interval:  string(tf),
		Timestamp: time.Now().UTC(),
		Symbols:   make([]models.SymbolOverview, 0, len(symbols)),
		Errors:    map[string]string{},
	}

	type item struct {
		idx int
		val models.SymbolOverview
		err error
	}
	ch := make(chan item, len(symbols))
	var wg sync.WaitGroup
	for i, sym := range symbols {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.summarize(ctx, sym, tf, n)
			ch <- item{i, v, err}
		}()
	}
	go func() {
		wg.Wait()
		close(ch)
	}()

	found := make([]*models.SymbolOverview, len(symbols))
	for it := range ch {
		if it.err != nil {
			res.Errors[symbols[it.idx]] = it.err.Error()
			continue
		}
		v := it.val
		found[it.idx] = &v
	}
	for _, v := range found {
		if v != nil {
			res.Symbols = append(res.Symbols, *v)
		}
	}
	if len(res.Errors) == 0 {
		res.Errors = nil
	}
	return res, nil
}

func (s *ConvergenceService) summarize(ctx context.Context, symbol string, tf domrepo.Timeframe, n int) (models.SymbolOverview, error) {
	candles, err := s.window(ctx, symbol, n, tf)
	if err != nil {
		return models.SymbolOverview{}, err
	}
	a, err := s.analyzer.Analyze(symbol, string(tf), candles, domsvc.AnalysisParams{})
	if err != nil {
		return models.SymbolOverview{}, err
	}
	out := models.SymbolOverview{Symbol: symbol, LastPrice: candles[len(candles)-1].Close}
	if len(a.Fast) > 0 {
		out.FastDirection = a.Fast[len(a.Fast)-1].Direction
	}
	if len(a.Slow) > 0 {
		out.SlowDirection = a.Slow[len(a.Slow)-1].Direction
	}
	if live, err := s.registry.Signals(ctx, symbol, string(tf)); err == nil && len(live) > 0 {
		last := live[len(live)-1]
		out.LastSignal = &last
	}
	return out, nil
}

func (s *ConvergenceService) window(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	candles, err := s.store.GetLatestNCandles(ctx, symbol, n, tf)
	if err != nil {
		return nil, fmt.Errorf("load candles: %w", err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%s %s: %w", symbol, tf, ErrNoCandles)
	}
	return candles, nil
}
