package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ConvergeWatch/pkg/logger"

	"github.com/segmentio/kafka-go"
)

type fakeFetcher struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	next      int
	committed []int64
}

func (f *fakeFetcher) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if f.next < len(f.msgs) {
		m := f.msgs[f.next]
		f.next++
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeFetcher) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeFetcher) Close() error { return nil }

func (f *fakeFetcher) commits() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.committed...)
}

type recordingHandler struct {
	mu       sync.Mutex
	seen     []string
	failures map[string]int
}

func (h *recordingHandler) Topic() string { return "candles" }

func (h *recordingHandler) Handle(_ context.Context, b []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	v := string(b)
	if h.failures[v] > 0 {
		h.failures[v]--
		return errors.New("transient")
	}
	h.seen = append(h.seen, v)
	return nil
}

func newTestConsumer(t *testing.T, f *fakeFetcher, retries int) *Consumer {
	t.Helper()
	c, err := NewConsumer(logger.Nop(),
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(retries, time.Millisecond, 2*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	c.newReader = func(string) fetcher { return f }
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestConsumerRetriesAndCommitsInOrder(t *testing.T) {
	f := &fakeFetcher{msgs: []kafka.Message{
		{Topic: "candles", Offset: 1, Value: []byte("a")},
		{Topic: "candles", Offset: 2, Value: []byte("b")},
		{Topic: "candles", Offset: 3, Value: []byte("c")},
	}}
	h := &recordingHandler{failures: map[string]int{"b": 2}}
	c := newTestConsumer(t, f, 3)
	c.RegisterHandler(h)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	waitFor(t, func() bool { return len(f.commits()) == 3 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.seen) != 3 || h.seen[0] != "a" || h.seen[1] != "b" || h.seen[2] != "c" {
		t.Fatalf("unexpected handling order %v", h.seen)
	}
}

func TestConsumerGivesUpWithoutCommit(t *testing.T) {
	f := &fakeFetcher{msgs: []kafka.Message{{Topic: "candles", Offset: 7, Value: []byte("bad")}}}
	h := &recordingHandler{failures: map[string]int{"bad": 100}}
	c := newTestConsumer(t, f, 1)
	c.RegisterHandler(h)

	gaveUp := make(chan int64, 1)
	c.WithHook(HookFuncs{GiveUp: func(_ context.Context, km kafka.Message, _ error) {
		gaveUp <- km.Offset
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case off := <-gaveUp:
		if off != 7 {
			t.Fatalf("unexpected offset %d", off)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("hook not called")
	}
	cancel()
	<-done

	if commits := f.commits(); len(commits) != 0 {
		t.Fatalf("failed message must not be committed without a dlq, got %v", commits)
	}
}

func TestRunWithoutHandlers(t *testing.T) {
	c := newTestConsumer(t, &fakeFetcher{}, 0)
	if err := c.Run(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt < 10; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 80*time.Millisecond, attempt)
		if d <= 0 || d > 80*time.Millisecond {
			t.Fatalf("attempt %d: backoff %v out of range", attempt, d)
		}
	}
}

func TestEncodeValue(t *testing.T) {
	b, err := encodeValue(map[string]int{"n": 1})
	if err != nil || string(b) != `{"n":1}` {
		t.Fatalf("unexpected %s %v", b, err)
	}
	if b, _ := encodeValue("raw"); string(b) != "raw" {
		t.Fatalf("strings pass through")
	}
	if parseCompression("zstd") != kafka.Zstd || parseCompression("") != kafka.Snappy {
		t.Fatalf("unexpected compression mapping")
	}
}
