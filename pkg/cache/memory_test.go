package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type payload struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "k", payload{Symbol: "BNBUSDT", Price: 600}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got payload
	if err := mc.Get(ctx, "k", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Symbol != "BNBUSDT" || got.Price != 600 {
		t.Fatalf("unexpected value %+v", got)
	}

	var missing payload
	if err := mc.Get(ctx, "nope", &missing); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}
}

func TestMemoryCacheExpiryAndEviction(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	_ = mc.Set(ctx, "short", "v", time.Nanosecond)
	time.Sleep(time.Millisecond)
	if ok, _ := mc.Exists(ctx, "short"); ok {
		t.Fatalf("expired key still present")
	}

	_ = mc.Set(ctx, "a", "1", 0)
	time.Sleep(time.Millisecond)
	_ = mc.Set(ctx, "b", "2", 0)
	time.Sleep(time.Millisecond)
	var s string
	_ = mc.Get(ctx, "a", &s)
	_ = mc.Set(ctx, "c", "3", 0)

	if ok, _ := mc.Exists(ctx, "b"); ok {
		t.Fatalf("least recently used key should be evicted")
	}
	if ok, _ := mc.Exists(ctx, "a", "c"); !ok {
		t.Fatalf("recent keys must survive")
	}
	if GenerateKeyWithParams("segments", "BNBUSDT", 25) != "segments:BNBUSDT:25" {
		t.Fatalf("unexpected key format")
	}
}
