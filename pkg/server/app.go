package server

import (
	"context"
	"errors"
	"time"

	drepo "ConvergeWatch/internal/domain/repository"
	mid "ConvergeWatch/internal/middleware"
	"ConvergeWatch/internal/service/ratelimit"
	"ConvergeWatch/internal/usecase"
	"ConvergeWatch/pkg/config"
	xhttp "ConvergeWatch/pkg/http"
	pkgkafka "ConvergeWatch/pkg/kafka"
	applogger "ConvergeWatch/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Closer releases an infrastructure client on shutdown.
type Closer struct {
	Name  string
	Close func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	processor  *usecase.CandleProcessor
	history    drepo.HistorySource
	collector  *usecase.CandleCollector
	pipe       *mid.CandlePipeline
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	httpServer *xhttp.Server
	rl         *ratelimit.Limiter
	closers    []Closer
}

// Components groups what App runs. Collector and Consumer are mutually
// exclusive and follow ingest.source; History may be nil to skip warm-up.
type Components struct {
	Processor  *usecase.CandleProcessor
	History    drepo.HistorySource
	Collector  *usecase.CandleCollector
	Pipeline   *mid.CandlePipeline
	Consumer   *pkgkafka.Consumer
	Handler    pkgkafka.MessageHandler
	HTTPServer *xhttp.Server
	Limiter    *ratelimit.Limiter
	Closers    []Closer
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, log *applogger.Logger, c Components) *App {
	if log == nil {
		log = applogger.Nop()
	}
	return &App{
		cfg:        cfg,
		log:        log,
		processor:  c.Processor,
		history:    c.History,
		collector:  c.Collector,
		pipe:       c.Pipeline,
		consumer:   c.Consumer,
		kh:         c.Handler,
		httpServer: c.HTTPServer,
		rl:         c.Limiter,
		closers:    c.Closers,
	}
}

// Run warms up the candle windows, then serves until ctx is cancelled or a
// component fails.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	if err := a.warmUp(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		// live ingestion still fills the windows
		a.log.Warn("warm-up incomplete", applogger.Error(err))
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.httpServer != nil {
		g.Go(func() error { return a.httpServer.Run(ctx) })
		a.log.Info("http server started", applogger.Int("port", a.cfg.Server.Port))
	}

	switch {
	case a.collector != nil:
		g.Go(func() error { return a.collector.Run(ctx) })
		a.log.Info("collector started",
			applogger.Strings("symbols", a.cfg.Ingest.Symbols),
			applogger.String("interval", a.cfg.Ingest.Interval),
		)
	case a.consumer != nil && a.kh != nil:
		a.consumer.RegisterHandler(a.kh)
		if a.pipe != nil {
			a.pipe.Start(ctx)
			defer a.pipe.Stop()
		}
		g.Go(func() error { return a.consumer.Run(ctx) })
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	default:
		return errors.New("no candle source configured")
	}

	if a.rl != nil {
		g.Go(func() error {
			a.pruneLimiter(ctx)
			return nil
		})
	}

	err := g.Wait()
	a.log.Info("shutting down")
	return err
}

func (a *App) warmUp(ctx context.Context) error {
	if a.history == nil || a.processor == nil || a.cfg.Ingest.HistoryLimit <= 0 {
		return nil
	}
	tf := drepo.NormalizeTimeframe(a.cfg.Ingest.Interval)
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	start := time.Now()
	if err := a.processor.WarmUp(ctx, a.history, a.cfg.Ingest.Symbols, tf, a.cfg.Ingest.HistoryLimit); err != nil {
		return err
	}
	a.log.Info("warm-up complete", applogger.Duration("took", time.Since(start)))
	return nil
}

func (a *App) pruneLimiter(ctx context.Context) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := a.rl.Prune(); n > 0 {
				a.log.Debug("rate limiter pruned", applogger.Int("buckets", n))
			}
		}
	}
}

// close releases clients in reverse registration order.
func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.Close(); err != nil {
			a.log.Warn("close failed", applogger.String("component", c.Name), applogger.Error(err))
		}
	}
	a.log.Info("shutdown complete")
}
