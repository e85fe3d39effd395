package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"ConvergeWatch/internal/domain/models"
	domsvc "ConvergeWatch/internal/domain/service"
	"ConvergeWatch/internal/repository"
	"ConvergeWatch/internal/service/ratelimit"
	"ConvergeWatch/internal/usecase"
	"ConvergeWatch/pkg/cache"
	xlogger "ConvergeWatch/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordCandle(string, string) {}
func (nopMetrics) RecordSignal(string, models.SignalKind) {}
func (nopMetrics) RecordError(string) {}
func (nopMetrics) RecordLastPrice(string, float64) {}
func (nopMetrics) RecordLatency(string, float64) {}
func (nopMetrics) RecordRegistrySize(string, int) {}

var t0 = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func tentCandles(symbol string, n int) []models.Candle {
	out := make([]models.Candle, n)
	top := n / 2
	for i := range out {
		v := 100 + float64(i)
		if i > top {
			v = 100 + float64(top) - 1.5*float64(i-top)
		}
		open := t0.Add(time.Duration(i) * time.Minute)
		out[i] = models.Candle{
			Symbol: symbol, Interval: "1m", OpenTime: open, CloseTime: open.Add(time.Minute - time.Millisecond),
			Open: v, High: v + 1, Low: v - 1, Close: v, Volume: 1, Closed: true,
		}
	}
	return out
}

type fixture struct {
	e       *echo.Echo
	cache   *cache.MemoryCache
	monitor *usecase.SignalMonitor
}

func newFixture(t *testing.T, capacity int, checks map[string]HealthCheck) *fixture {
	t.Helper()
	store := repository.NewMemoryCandleStore(500)
	if err := store.StoreBatch(context.Background(), tentCandles("BTCUSDT", 200)); err != nil {
		t.Fatalf("store: %v", err)
	}
	analyzer := usecase.NewAnalyzer(domsvc.AnalysisParams{})
	mon := usecase.NewSignalMonitor(analyzer, store, repository.NopSignalPublisher{}, nil, nopMetrics{}, nil, usecase.MonitorConfig{})
	svc := usecase.NewConvergenceService(store, analyzer, mon)
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })

	h := NewConvergenceEchoHandler(xlogger.Nop(), svc, usecase.NewCandlesUseCase(store), mc, time.Minute,
		ratelimit.New(capacity, 0.001), checks)
	e := echo.New()
	h.RegisterRoutes(e)
	return &fixture{e: e, cache: mc, monitor: mon}
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func (f *fixture) get(t *testing.T, target string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s: %v (%s)", target, err, rec.Body.String())
	}
	return rec.Code, env
}

func TestSegmentsEndpoint(t *testing.T) {
	f := newFixture(t, 100, nil)

	code, env := f.get(t, "/api/segments?symbol=BTCUSDT&period=25")
	if code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", code, env.Data)
	}
	var res usecase.SegmentsResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Symbol != "BTCUSDT" || res.Timeframe != "1m" || len(res.Segments) == 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	ok, _ := f.cache.Exists(context.Background(), "segments:BTCUSDT:1m:200:25:0")
	if !ok {
		t.Fatalf("expected response to be cached")
	}
	code, env2 := f.get(t, "/api/segments?symbol=BTCUSDT&period=25")
	if code != http.StatusOK || string(env2.Data) != string(env.Data) {
		t.Fatalf("cached response differs")
	}
}

func TestValidationAndNotFound(t *testing.T) {
	f := newFixture(t, 100, nil)

	if code, _ := f.get(t, "/api/segments"); code != http.StatusBadRequest {
		t.Fatalf("missing symbol: got %d", code)
	}
	if code, _ := f.get(t, "/api/convergences?symbol=BTCUSDT&tf=2m"); code != http.StatusBadRequest {
		t.Fatalf("bad timeframe: got %d", code)
	}
	if code, _ := f.get(t, "/api/convergences?symbol=BTCUSDT&n=5"); code != http.StatusBadRequest {
		t.Fatalf("small window: got %d", code)
	}
	if code, _ := f.get(t, "/api/convergences?symbol=DOGEUSDT"); code != http.StatusNotFound {
		t.Fatalf("unknown symbol: got %d", code)
	}
}

func TestConvergencesAndSignals(t *testing.T) {
	f := newFixture(t, 100, nil)

	code, env := f.get(t, "/api/convergences?symbol=BTCUSDT&fast=7&slow=25")
	if code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	var a models.Analysis
	if err := json.Unmarshal(env.Data, &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(a.Signals) == 0 || a.Signals[0].Kind != models.SignalSellConvergence {
		t.Fatalf("expected a sell convergence, got %+v", a.Signals)
	}

	if _, err := f.monitor.Evaluate(context.Background(), "BTCUSDT", "1m"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	code, env = f.get(t, "/api/signals?symbol=BTCUSDT")
	if code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	var live []models.ConvergenceSignal
	if err := json.Unmarshal(env.Data, &live); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(live) == 0 || live[0].ID == "" {
		t.Fatalf("expected registry signals, got %+v", live)
	}
}

func TestOverviewAndCandles(t *testing.T) {
	f := newFixture(t, 100, nil)

	code, env := f.get(t, "/api/overview?symbols=btcusdt,,BTCUSDT,ethusdt")
	if code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	var ov models.Overview
	if err := json.Unmarshal(env.Data, &ov); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ov.Symbols) != 1 || ov.Errors["ETHUSDT"] == "" {
		t.Fatalf("unexpected overview %+v", ov)
	}

	from := t0.Add(10 * time.Minute).Format(time.RFC3339)
	to := t0.Add(19 * time.Minute).Format(time.RFC3339)
	code, env = f.get(t, "/api/candles?symbol=BTCUSDT&from="+from+"&to="+to)
	if code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", code, env.Data)
	}
	var cs usecase.GetCandlesResult
	if err := json.Unmarshal(env.Data, &cs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cs.Count != 10 {
		t.Fatalf("expected 10 candles, got %d", cs.Count)
	}
	if code, _ := f.get(t, "/api/candles?symbol=BTCUSDT&from="+to+"&to="+from); code != http.StatusBadRequest {
		t.Fatalf("inverted range: got %d", code)
	}
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, 2, nil)
	for i := 0; i < 2; i++ {
		if code, _ := f.get(t, "/api/signals?symbol=BTCUSDT"); code != http.StatusOK {
			t.Fatalf("request %d: got %d", i, code)
		}
	}
	if code, _ := f.get(t, "/api/signals?symbol=BTCUSDT"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if code, _ := f.get(t, "/api/segments?symbol=BTCUSDT"); code != http.StatusOK {
		t.Fatalf("endpoints must have separate buckets, got %d", code)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, 100, map[string]HealthCheck{
		"stream": func(context.Context) error { return nil },
	})
	if code, _ := f.get(t, "/healthz"); code != http.StatusOK {
		t.Fatalf("expected healthy, got %d", code)
	}

	f = newFixture(t, 100, map[string]HealthCheck{
		"stream":     func(context.Context) error { return nil },
		"clickhouse": func(context.Context) error { return errors.New("connection refused") },
	})
	code, env := f.get(t, "/healthz")
	if code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
	var status map[string]string
	_ = json.Unmarshal(env.Data, &status)
	if status["clickhouse"] != "connection refused" || status["stream"] != "ok" {
		t.Fatalf("unexpected health body %v", status)
	}
}

func TestSplitSymbols(t *testing.T) {
	got := splitSymbols(" btcusdt, ETHUSDT ,btcusdt,")
	if len(got) != 2 || got[0] != "BTCUSDT" || got[1] != "ETHUSDT" {
		t.Fatalf("unexpected symbols %v", got)
	}
}

func TestLowercaseSymbolsAreNormalized(t *testing.T) {
	f := newFixture(t, 100, nil)
	if _, err := f.monitor.Evaluate(context.Background(), "BTCUSDT", "1m"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	code, env := f.get(t, "/api/signals?symbol=btcusdt")
	if code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	var live []models.ConvergenceSignal
	if err := json.Unmarshal(env.Data, &live); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(live) == 0 {
		t.Fatalf("lowercase symbol should see the BTCUSDT registry")
	}

	if code, _ := f.get(t, "/api/convergences?symbol=btcusdt"); code != http.StatusOK {
		t.Fatalf("convergences: unexpected status %d", code)
	}
	from := t0.Add(10 * time.Minute).Format(time.RFC3339)
	to := t0.Add(19 * time.Minute).Format(time.RFC3339)
	code, env = f.get(t, "/api/candles?symbol=btcusdt&from="+from+"&to="+to)
	if code != http.StatusOK {
		t.Fatalf("candles: unexpected status %d", code)
	}
	var res usecase.GetCandlesResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Symbol != "BTCUSDT" || res.Count == 0 {
		t.Fatalf("lowercase symbol missed the window: %+v", res)
	}
	if code, _ := f.get(t, "/api/segments?symbol=btcusdt&period=25"); code != http.StatusOK {
		t.Fatalf("segments: unexpected status %d", code)
	}
	if ok, _ := f.cache.Exists(context.Background(), "segments:BTCUSDT:1m:200:25:0"); !ok {
		t.Fatalf("cache key should use the normalized symbol")
	}
}
