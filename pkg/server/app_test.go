package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"ConvergeWatch/internal/service/ratelimit"
	"ConvergeWatch/pkg/config"
	applogger "ConvergeWatch/pkg/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("ingest:\n  symbols: [BTCUSDT]\n  history_limit: 0\n"))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func TestRunWithoutSourceFailsAndCloses(t *testing.T) {
	var order []string
	app := New(testConfig(t), applogger.Nop(), Components{
		Closers: []Closer{
			{Name: "a", Close: func() error {
				order = append(order, "a")
				return nil
			}},
			{Name: "b", Close: func() error {
				order = append(order, "b")
				return errors.New("boom")
			}},
		},
	})
	err := app.Run(context.Background())
	if err == nil {
		t.Fatalf("expected error without a candle source")
	}
	if len(order) != 2 || order[0] != "b" || order[1] != "a" {
		t.Fatalf("closers ran in order %v, want [b a]", order)
	}
}

func TestPruneLimiterStopsOnCancel(t *testing.T) {
	app := New(testConfig(t), nil, Components{Limiter: ratelimit.New(1, 1)})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.pruneLimiter(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pruneLimiter did not return after cancel")
	}
}
