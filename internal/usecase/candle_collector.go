package usecase

import (
	"context"
	"fmt"
	"time"

	"ConvergeWatch/internal/domain/models"
	drepo "ConvergeWatch/internal/domain/repository"
	mid "ConvergeWatch/internal/middleware"
	applogger "ConvergeWatch/pkg/logger"
)

// CandleCollector reads klines from a market stream and feeds them into the
// pipeline, reconnecting whenever the stream fails.
type CandleCollector struct {
	stream  drepo.MarketStream
	pipe    *mid.CandlePipeline
	metrics drepo.Metrics
	l       *applogger.Logger
	retry   time.Duration
}

func NewCandleCollector(stream drepo.MarketStream, pipe *mid.CandlePipeline, metrics drepo.Metrics, l *applogger.Logger, retry time.Duration) *CandleCollector {
	if l == nil {
		l = applogger.Nop()
	}
	if retry <= 0 {
		retry = 5 * time.Second
	}
	return &CandleCollector{stream: stream, pipe: pipe, metrics: metrics, l: l, retry: retry}
}

// IsConnected returns true if the market stream is connected.
func (c *CandleCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Run blocks until ctx is done.
func (c *CandleCollector) Run(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return fmt.Errorf("collector connect: %w", err)
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return fmt.Errorf("collector subscribe: %w", err)
	}
	c.pipe.Start(ctx)
	defer c.pipe.Stop()
	defer c.stream.Close()

	for {
		readCtx, cancel := context.WithCancel(ctx)
		candles, errs := c.stream.Read(readCtx)
		err := c.consume(ctx, candles, errs)
		cancel()
		if ctx.Err() != nil {
			return nil
		}
		c.metrics.RecordError("stream")
		c.l.Warn("market stream interrupted, reconnecting", applogger.Error(err))
		if err := c.reconnect(ctx); err != nil {
			return nil
		}
	}
}

// consume returns when the stream fails or ctx ends.
func (c *CandleCollector) consume(ctx context.Context, candles <-chan *models.Candle, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return err
			}
		case k, ok := <-candles:
			if !ok {
				return fmt.Errorf("stream closed")
			}
			if k == nil {
				continue
			}
			if err := c.pipe.Process(ctx, k); err != nil {
				c.l.Debug("pipeline rejected candle", applogger.String("key", k.Key()), applogger.Error(err))
			}
		}
	}
}

func (c *CandleCollector) reconnect(ctx context.Context) error {
	for {
		err := c.stream.Reconnect(ctx)
		if err == nil {
			c.l.Info("market stream reconnected")
			return nil
		}
		c.metrics.RecordError("stream_reconnect")
		c.l.Warn("reconnect failed", applogger.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retry):
		}
	}
}
