package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"ConvergeWatch/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// fetcher is the part of *kafka.Reader the consumer needs.
type fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads registered topics and fans messages out to a worker pool.
// A partition is pinned to one worker, so per-partition order is kept.
type Consumer struct {
	cfg      *ConsumerConfig
	log      *logger.Logger
	handlers map[string]MessageHandler
	hook     ConsumerHook
	dlq      *kafka.Writer

	newReader func(topic string) fetcher
	readersMu sync.RWMutex
	readers   map[string]fetcher
}

func NewConsumer(log *logger.Logger, opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "convergewatch",
		WorkerCount: 1,
		BufferSize:  64,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	c := &Consumer{
		cfg:      cfg,
		log:      log,
		handlers: make(map[string]MessageHandler),
		hook:     NoopHook{},
	}
	c.newReader = func(topic string) fetcher {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    topic,
			GroupID:  cfg.GroupID,
			MinBytes: cfg.MinBytes,
			MaxBytes: cfg.MaxBytes,
		})
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}

	initConsumerMetrics()
	return c, nil
}

// RegisterHandler registers a message handler for its topic.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("kafka consumer: handler already registered", logger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// WithHook sets the lifecycle hook.
func (c *Consumer) WithHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Run consumes until ctx is cancelled. In-flight messages finish before it
// returns.
func (c *Consumer) Run(ctx context.Context) error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("kafka consumer: no handlers registered")
	}

	queues := make([]chan kafka.Message, c.cfg.WorkerCount)
	var workers sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan kafka.Message, c.cfg.BufferSize)
		workers.Add(1)
		go func(q <-chan kafka.Message) {
			defer workers.Done()
			for km := range q {
				c.process(ctx, km)
			}
		}(queues[i])
	}

	c.readersMu.Lock()
	c.readers = make(map[string]fetcher, len(c.handlers))
	for topic := range c.handlers {
		c.readers[topic] = c.newReader(topic)
	}
	readers := c.readers
	c.readersMu.Unlock()

	var fetchers sync.WaitGroup
	for topic, r := range readers {
		fetchers.Add(1)
		go func(topic string, r fetcher) {
			defer fetchers.Done()
			c.fetch(ctx, topic, r, queues)
		}(topic, r)
		c.log.Info("kafka consumer: subscribed", logger.String("topic", topic), logger.String("group", c.cfg.GroupID))
	}

	fetchers.Wait()
	for _, q := range queues {
		close(q)
	}
	workers.Wait()

	for topic, r := range readers {
		if err := r.Close(); err != nil {
			c.log.Warn("kafka consumer: close reader", logger.String("topic", topic), logger.Error(err))
		}
	}
	if c.dlq != nil {
		_ = c.dlq.Close()
	}
	c.log.Info("kafka consumer: stopped")
	return nil
}

func (c *Consumer) fetch(ctx context.Context, topic string, r fetcher, queues []chan kafka.Message) {
	for {
		km, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			c.log.Error("kafka consumer: fetch", logger.String("topic", topic), logger.Error(err))
			select {
			case <-time.After(c.cfg.BackoffMin):
				continue
			case <-ctx.Done():
				return
			}
		}
		if km.Topic == "" {
			km.Topic = topic
		}

		q := queues[km.Partition%len(queues)]
		select {
		case q <- km:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(q)))
		case <-ctx.Done():
			return
		}
	}
}

// process handles one message with retries. Offsets are committed on success
// and after a DLQ write, never for a message that is still failing.
func (c *Consumer) process(ctx context.Context, km kafka.Message) {
	handler, ok := c.handlers[km.Topic]
	if !ok {
		return
	}
	start := time.Now()
	defer func() {
		consumerHandleLatency.WithLabelValues(km.Topic).Observe(time.Since(start).Seconds())
	}()

	var err error
	for attempt := 1; ; attempt++ {
		err = c.handleOnce(ctx, handler, km)
		if err == nil || attempt > c.cfg.RetryMax {
			break
		}
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-ctx.Done():
			return
		}
	}

	if err != nil {
		consumerFailures.WithLabelValues(km.Topic).Inc()
		safeCall(func() { c.hook.OnGiveUp(ctx, km, err) })
		c.log.Error("kafka consumer: giving up on message",
			logger.String("topic", km.Topic),
			logger.Int("partition", km.Partition),
			logger.Int64("offset", km.Offset),
			logger.Error(err),
		)
		if c.dlq == nil {
			return
		}
		if dlqErr := c.dlq.WriteMessages(context.Background(), kafka.Message{
			Topic:   c.cfg.DLQTopic,
			Key:     km.Key,
			Value:   km.Value,
			Time:    time.Now(),
			Headers: []kafka.Header{{Key: "source_topic", Value: []byte(km.Topic)}},
		}); dlqErr != nil {
			c.log.Error("kafka consumer: dlq write", logger.String("dlq", c.cfg.DLQTopic), logger.Error(dlqErr))
			return
		}
	}

	c.commit(km)
}

func (c *Consumer) handleOnce(ctx context.Context, handler MessageHandler, km kafka.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	hctx, err := c.hook.BeforeHandle(ctx, km)
	if err != nil {
		return err
	}
	err = handler.Handle(hctx, km.Value)
	safeCall(func() { c.hook.AfterHandle(hctx, km, err) })
	return err
}

func (c *Consumer) commit(km kafka.Message) {
	r := c.readerFor(km.Topic)
	if r == nil {
		return
	}
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.log.Error("kafka consumer: commit", logger.String("topic", km.Topic), logger.Error(err))
}

func (c *Consumer) readerFor(topic string) fetcher {
	c.readersMu.RLock()
	defer c.readersMu.RUnlock()
	return c.readers[topic]
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := min << uint(attempt-1)
	if exp > max || exp <= 0 {
		exp = max
	}
	half := int64(exp) / 2
	if half <= 0 {
		return exp
	}
	return exp - time.Duration(rand.Int63n(half))
}

var (
	consumerQueueDepth    *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
	consumerFailures      *prometheus.CounterVec
	consumerOnce          sync.Once
)

func initConsumerMetrics() {
	consumerOnce.Do(func() {
		consumerQueueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{Name: "convergewatch_kafka_consumer_queue_depth", Help: "Messages waiting in a worker queue"},
			[]string{"topic"},
		)
		consumerHandleLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{Name: "convergewatch_kafka_consumer_handle_seconds", Help: "Handling time per message"},
			[]string{"topic"},
		)
		consumerFailures = promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "convergewatch_kafka_consumer_failures_total", Help: "Messages that exhausted retries"},
			[]string{"topic"},
		)
	})
}
