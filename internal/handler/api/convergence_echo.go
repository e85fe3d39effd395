package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	models "ConvergeWatch/internal/domain/models"
	domrepo "ConvergeWatch/internal/domain/repository"
	domsvc "ConvergeWatch/internal/domain/service"
	"ConvergeWatch/internal/service/metrics"
	"ConvergeWatch/internal/service/ratelimit"
	"ConvergeWatch/internal/usecase"
	"ConvergeWatch/pkg/cache"
	xhttp "ConvergeWatch/pkg/http"
	xlogger "ConvergeWatch/pkg/logger"
)

// HealthCheck reports the state of one dependency; nil means healthy.
type HealthCheck func(ctx context.Context) error

// ConvergenceEchoHandler serves the analysis API.
type ConvergenceEchoHandler struct {
	logger  *xlogger.Logger
	svc     *usecase.ConvergenceService
	candles *usecase.CandlesUseCase
	cache   cache.Service
	ttl     time.Duration
	rl      *ratelimit.Limiter
	checks  map[string]HealthCheck
}

// NewConvergenceEchoHandler wires the handler; c may be nil to disable
// response caching.
func NewConvergenceEchoHandler(
	logger *xlogger.Logger,
	svc *usecase.ConvergenceService,
	candles *usecase.CandlesUseCase,
	c cache.Service,
	ttl time.Duration,
	rl *ratelimit.Limiter,
	checks map[string]HealthCheck,
) *ConvergenceEchoHandler {
	metrics.Register()
	return &ConvergenceEchoHandler{
		logger:  logger,
		svc:     svc,
		candles: candles,
		cache:   c,
		ttl:     ttl,
		rl:      rl,
		checks:  checks,
	}
}

func (h *ConvergenceEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/segments", h.Segments)
	g.GET("/convergences", h.Convergences)
	g.GET("/signals", h.Signals)
	g.GET("/candles", h.Candles)
	g.GET("/overview", h.Overview)
}

func (h *ConvergenceEchoHandler) Segments(c echo.Context) error {
	req := &models.SegmentsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	req.Symbol = normalizeSymbol(req.Symbol)
	tf := domrepo.NormalizeTimeframe(req.TF)
	key := cache.GenerateKeyWithParams("segments", req.Symbol, tf, req.N, req.Period, req.Threshold)

	return h.serve(c, "segments", key, func(ctx context.Context) (interface{}, error) {
		return h.svc.Segments(ctx, usecase.SegmentsParams{
			Symbol:    req.Symbol,
			Timeframe: tf,
			N:         req.N,
			Period:    req.Period,
			Threshold: req.Threshold,
		})
	})
}

func (h *ConvergenceEchoHandler) Convergences(c echo.Context) error {
	req := &models.ConvergenceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	req.Symbol = normalizeSymbol(req.Symbol)
	tf := domrepo.NormalizeTimeframe(req.TF)
	key := cache.GenerateKeyWithParams("convergences", req.Symbol, tf, req.N,
		req.FastPeriod, req.SlowPeriod, req.FastThreshold, req.SlowThreshold)

	return h.serve(c, "convergences", key, func(ctx context.Context) (interface{}, error) {
		return h.svc.Convergences(ctx, usecase.ConvergenceParams{
			Symbol:    req.Symbol,
			Timeframe: tf,
			N:         req.N,
			Params: domsvc.AnalysisParams{
				FastPeriod:    req.FastPeriod,
				SlowPeriod:    req.SlowPeriod,
				FastThreshold: req.FastThreshold,
				SlowThreshold: req.SlowThreshold,
			},
		})
	})
}

// Signals is never cached; the registry changes with every closed candle.
func (h *ConvergenceEchoHandler) Signals(c echo.Context) error {
	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	req.Symbol = normalizeSymbol(req.Symbol)
	tf := domrepo.NormalizeTimeframe(req.TF)
	return h.serve(c, "signals", "", func(ctx context.Context) (interface{}, error) {
		return h.svc.Signals(ctx, req.Symbol, tf)
	})
}

func (h *ConvergenceEchoHandler) Candles(c echo.Context) error {
	req := &models.CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	req.Symbol = normalizeSymbol(req.Symbol)
	tf := domrepo.NormalizeTimeframe(req.TF)
	key := ""
	if req.To != "" {
		// open-ended ranges move with the clock
		key = cache.GenerateKeyWithParams("candles", req.Symbol, tf, req.From, req.To, req.Limit)
	}
	return h.serve(c, "candles", key, func(ctx context.Context) (interface{}, error) {
		return h.candles.GetCandles(ctx, usecase.GetCandlesParams{
			Symbol:    req.Symbol,
			From:      req.From,
			To:        req.To,
			Timeframe: tf,
			Limit:     req.Limit,
		})
	})
}

func (h *ConvergenceEchoHandler) Overview(c echo.Context) error {
	req := &models.OverviewRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbols := splitSymbols(req.Symbols)
	if len(symbols) == 0 {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("symbols", "symbols is required"))
	}
	tf := domrepo.NormalizeTimeframe(req.TF)
	key := cache.GenerateKeyWithParams("overview", strings.Join(symbols, ","), tf, req.N)
	return h.serve(c, "overview", key, func(ctx context.Context) (interface{}, error) {
		return h.svc.Overview(ctx, symbols, tf, req.N)
	})
}

func (h *ConvergenceEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{}
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}
	if !healthy {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, status)
	}
	return xhttp.SuccessResponse(c, status)
}

// serve applies rate limiting, the response cache and error mapping around
// one endpoint. An empty key skips the cache.
func (h *ConvergenceEchoHandler) serve(c echo.Context, endpoint, key string, load func(ctx context.Context) (interface{}, error)) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()
	ctx := c.Request().Context()

	if h.rl != nil && !h.rl.Allow(c.RealIP()+":"+endpoint) {
		h.logger.Warn("rate limited", xlogger.String("endpoint", endpoint), xlogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many requests"))
	}

	if h.cache != nil && key != "" {
		var raw json.RawMessage
		err := h.cache.Get(ctx, key, &raw)
		switch {
		case err == nil:
			metrics.CacheResults.WithLabelValues(endpoint, "hit").Inc()
			c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
			return xhttp.SuccessResponse(c, raw)
		case errors.Is(err, cache.ErrCacheMiss):
			metrics.CacheResults.WithLabelValues(endpoint, "miss").Inc()
		default:
			h.logger.Warn("cache get failed", xlogger.String("key", key), xlogger.Error(err))
		}
	}

	res, err := load(ctx)
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		return h.errorResponse(c, endpoint, err)
	}

	if h.cache != nil && key != "" {
		if err := h.cache.Set(ctx, key, res, h.ttl); err != nil {
			h.logger.Warn("cache set failed", xlogger.String("key", key), xlogger.Error(err))
		}
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ConvergenceEchoHandler) errorResponse(c echo.Context, endpoint string, err error) error {
	switch {
	case errors.Is(err, usecase.ErrNoCandles):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no candles for %s", c.QueryParam("symbol")).WithError(err))
	case errors.Is(err, usecase.ErrInvalidRange):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from", err.Error()))
	}
	h.logger.Error("usecase error", xlogger.String("endpoint", endpoint), xlogger.Error(err))
	return xhttp.AppErrorResponse(c, err)
}

// normalizeSymbol matches the exchange's upper-case symbol keys.
func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func splitSymbols(s string) []string {
	var out []string
	seen := map[string]bool{}
	for _, part := range strings.Split(s, ",") {
		sym := normalizeSymbol(part)
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out
}
