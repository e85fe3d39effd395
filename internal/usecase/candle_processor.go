package usecase

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"ConvergeWatch/internal/domain/models"
	drepo "ConvergeWatch/internal/domain/repository"
	applogger "ConvergeWatch/pkg/logger"
)

// CandleProcessor applies one candle update: it refreshes the analysis
// window, persists closed candles and triggers signal evaluation.
type CandleProcessor struct {
	window  drepo.CandleWriter
	storage drepo.Storage
	monitor *SignalMonitor
	metrics drepo.Metrics
	l       *applogger.Logger
	source  string
}

// NewCandleProcessor creates a processor; storage may be nil when
// persistence is disabled.
func NewCandleProcessor(
	window drepo.CandleWriter,
	storage drepo.Storage,
	monitor *SignalMonitor,
	metrics drepo.Metrics,
	l *applogger.Logger,
	source string,
) *CandleProcessor {
	if l == nil {
		l = applogger.Nop()
	}
	return &CandleProcessor{
		window:  window,
		storage: storage,
		monitor: monitor,
		metrics: metrics,
		l:       l,
		source:  source,
	}
}

func (p *CandleProcessor) Process(ctx context.Context, c *models.Candle) error {
	if c == nil {
		return fmt.Errorf("candle is nil")
	}
	start := time.Now()
	if err := p.window.Upsert(ctx, *c); err != nil {
		p.metrics.RecordError("process_window")
		return fmt.Errorf("process candle: %w", err)
	}
	p.metrics.RecordLastPrice(c.Symbol, c.Close)
	if !c.Closed {
		return nil
	}

	if p.storage != nil {
		if err := p.storage.Upsert(ctx, *c); err != nil {
			// the window already holds the candle, so analysis continues
			p.metrics.RecordError("process_persist")
			p.l.Warn("persist candle failed",
				applogger.String("symbol", c.Symbol),
				applogger.Time("open_time", c.OpenTime),
				applogger.Error(err),
			)
		}
	}
	p.metrics.RecordCandle(p.source, c.Symbol)

	if _, err := p.monitor.Evaluate(ctx, c.Symbol, c.Interval); err != nil {
		return fmt.Errorf("evaluate %s: %w", c.Key(), err)
	}
	p.metrics.RecordLatency("process", time.Since(start).Seconds())
	return nil
}

// WarmUp loads recent history for every symbol, stores it and primes the
// trackers so live evaluation only reports signals found after startup.
func (p *CandleProcessor) WarmUp(ctx context.Context, history drepo.HistorySource, symbols []string, tf drepo.Timeframe, limit int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, symbol := range symbols {
		g.Go(func() error {
			candles, err := history.Klines(ctx, symbol, tf, limit)
			if err != nil {
				p.metrics.RecordError("warmup_history")
				return fmt.Errorf("warm up %s: %w", symbol, err)
			}
			if err := p.window.StoreBatch(ctx, candles); err != nil {
				return fmt.Errorf("warm up %s: %w", symbol, err)
			}
			if p.storage != nil {
				if err := p.storage.StoreBatch(ctx, candles); err != nil {
					p.metrics.RecordError("warmup_persist")
					p.l.Warn("persist history failed", applogger.String("symbol", symbol), applogger.Error(err))
				}
			}
			if err := p.monitor.Prime(ctx, symbol, string(tf)); err != nil {
				return fmt.Errorf("prime %s: %w", symbol, err)
			}
			p.l.Info("warm-up done",
				applogger.String("symbol", symbol),
				applogger.String("interval", string(tf)),
				applogger.Int("candles", len(candles)),
			)
			return nil
		})
	}
	return g.Wait()
}
