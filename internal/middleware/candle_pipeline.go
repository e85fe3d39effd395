package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"ConvergeWatch/internal/domain/models"
	domrepo "ConvergeWatch/internal/domain/repository"
)

// ErrBuffered marks a downstream failure whose candle was queued for retry
// by the pipeline; callers must not retry it themselves.
var ErrBuffered = errors.New("candle buffered for retry")

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, c *models.Candle) error
}

// CandlePipeline sits between the market stream and the processor. It
// validates klines, throttles in-progress updates per series and buffers
// closed candles the processor failed on so they are retried.
type CandlePipeline struct {
	proc     Proc
	metrics  domrepo.Metrics
	maxRPS   int
	bufSize  int
	bufCh    chan *models.Candle
	stopCh   chan struct{}
	started  bool
	mu       sync.Mutex
	lastSeen map[string]time.Time
	backoff  time.Duration
	maxWait  time.Duration
}

type PipelineOption func(*CandlePipeline)

// WithMaxRPS caps in-progress updates per series and second. Closed candles
// are never throttled.
func WithMaxRPS(n int) PipelineOption {
	return func(p *CandlePipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the retry buffer size.
func WithBufferSize(n int) PipelineOption {
	return func(p *CandlePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithRetryBackoff sets the initial and maximum wait between retries.
func WithRetryBackoff(initial, limit time.Duration) PipelineOption {
	return func(p *CandlePipeline) {
		if initial > 0 {
			p.backoff = initial
		}
		if limit >= p.backoff {
			p.maxWait = limit
		}
	}
}

func NewCandlePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *CandlePipeline {
	p := &CandlePipeline{
		proc:     proc,
		metrics:  metrics,
		maxRPS:   2,
		bufSize:  1000,
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
		backoff:  50 * time.Millisecond,
		maxWait:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.Candle, p.bufSize)
	return p
}

// Start launches background retries of buffered candles.
func (p *CandlePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	stop := p.stopCh
	p.mu.Unlock()

	go func() {
		wait := p.backoff
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case c := <-p.bufCh:
				if err := p.proc.Process(ctx, c); err != nil {
					p.metrics.RecordError("pipeline_retry")
					wait = min(wait*2, p.maxWait)
					select {
					case <-time.After(wait):
					case <-stop:
						return
					case <-ctx.Done():
						return
					}
					select {
					case p.bufCh <- c:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
					continue
				}
				wait = p.backoff
			}
		}
	}()
}

// Stop stops the background retries; buffered candles wait for the next Start.
func (p *CandlePipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	close(p.stopCh)
	p.stopCh = make(chan struct{})
}

// Process validates, throttles and forwards a candle to the processor.
func (p *CandlePipeline) Process(ctx context.Context, c *models.Candle) error {
	start := time.Now()
	if err := ValidateCandle(c); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !c.Closed && !p.allow(c.Key(), start) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, c); err != nil {
		p.metrics.RecordError("pipeline_process")
		if c.Closed {
			select {
			case p.bufCh <- c:
				p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.bufCh)))
				return fmt.Errorf("pipeline downstream: %w: %w", ErrBuffered, err)
			default:
				p.metrics.RecordError("pipeline_buffer_full")
			}
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

// Buffered reports how many candles wait for a retry.
func (p *CandlePipeline) Buffered() int { return len(p.bufCh) }

// ValidateCandle rejects klines the analysis cannot use.
func ValidateCandle(c *models.Candle) error {
	if c == nil {
		return fmt.Errorf("candle nil")
	}
	if c.Symbol == "" || c.Interval == "" {
		return fmt.Errorf("symbol and interval required")
	}
	if c.OpenTime.IsZero() {
		return fmt.Errorf("open time missing")
	}
	if !c.CloseTime.IsZero() && c.CloseTime.Before(c.OpenTime) {
		return fmt.Errorf("close time before open time")
	}
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("invalid price or volume")
		}
	}
	if c.High < c.Low {
		return fmt.Errorf("high below low")
	}
	return nil
}

func (p *CandlePipeline) allow(key string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.lastSeen[key]
	if !last.IsZero() && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[key] = now
	return true
}
