package di

import (
	"context"
	"fmt"
	"time"

	"ConvergeWatch/internal/domain/repository"
	domsvc "ConvergeWatch/internal/domain/service"
	"ConvergeWatch/internal/handler/api"
	mid "ConvergeWatch/internal/middleware"
	internalrepo "ConvergeWatch/internal/repository"
	"ConvergeWatch/internal/service/binance"
	"ConvergeWatch/internal/service/ratelimit"
	"ConvergeWatch/internal/usecase"
	"ConvergeWatch/pkg/cache"
	pkgch "ConvergeWatch/pkg/clickhouse"
	"ConvergeWatch/pkg/config"
	xhttp "ConvergeWatch/pkg/http"
	pkgkafka "ConvergeWatch/pkg/kafka"
	applogger "ConvergeWatch/pkg/logger"
	"ConvergeWatch/pkg/metrics"
	"ConvergeWatch/pkg/server"

	"github.com/segmentio/kafka-go"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideCandleStorage creates the ClickHouse candle table when persistence
// is on. A nil Storage disables persistence in the processor.
func ProvideCandleStorage(client *pkgch.Client, cfg *config.Config, l *applogger.Logger) (repository.Storage, error) {
	if client == nil || !cfg.Ingest.Persist {
		return nil, nil
	}
	store := internalrepo.NewCHCandleStore(client, l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideCandleWindow creates the in-memory candle window analysis reads from.
func ProvideCandleWindow(cfg *config.Config) *internalrepo.MemoryCandleStore {
	return internalrepo.NewMemoryCandleStore(cfg.Ingest.WindowSize)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideSignalPublisher publishes to the signals topic, or discards when
// Kafka is disabled.
func ProvideSignalPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.SignalPublisher {
	if producer == nil {
		return internalrepo.NopSignalPublisher{}
	}
	return internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.SignalsTopic)
}

// ProvideCache connects Redis when enabled and falls back to process memory.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(), nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideRegistryStore keeps tracker registries in the cache for twice the
// retention span.
func ProvideRegistryStore(c cache.Service, cfg *config.Config) usecase.RegistryStore {
	return internalrepo.NewCacheRegistryStore(c, 2*cfg.Tracker.Retention)
}

func analysisParams(cfg *config.Config) domsvc.AnalysisParams {
	a := cfg.Analysis
	return domsvc.AnalysisParams{
		FastPeriod:       a.FastPeriod,
		SlowPeriod:       a.SlowPeriod,
		MAType:           a.MAType,
		FastThreshold:    a.FastThreshold,
		SlowThreshold:    a.SlowThreshold,
		SlopeRadius:      a.SlopeRadius,
		OscillatorPeriod: a.OscillatorPeriod,
	}
}

// ProvideAnalyzer creates the analyzer with configured defaults.
func ProvideAnalyzer(cfg *config.Config) *usecase.Analyzer {
	return usecase.NewAnalyzer(analysisParams(cfg))
}

// ProvideSignalMonitor creates the per-series signal tracker.
func ProvideSignalMonitor(
	analyzer *usecase.Analyzer,
	window *internalrepo.MemoryCandleStore,
	pub repository.SignalPublisher,
	registry usecase.RegistryStore,
	m repository.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
) *usecase.SignalMonitor {
	return usecase.NewSignalMonitor(analyzer, window, pub, registry, m, l, usecase.MonitorConfig{
		Window:    cfg.Ingest.WindowSize,
		MinGap:    cfg.Tracker.MinGap,
		Retention: cfg.Tracker.Retention,
		Params:    analysisParams(cfg),
	})
}

// ProvideCandleProcessor creates the candle processor use case.
func ProvideCandleProcessor(
	window *internalrepo.MemoryCandleStore,
	storage repository.Storage,
	monitor *usecase.SignalMonitor,
	m repository.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
) *usecase.CandleProcessor {
	return usecase.NewCandleProcessor(window, storage, monitor, m, l, cfg.Ingest.Source)
}

// ProvideCandlePipeline puts throttling and retries in front of the processor.
func ProvideCandlePipeline(processor *usecase.CandleProcessor, m repository.Metrics, cfg *config.Config) *mid.CandlePipeline {
	return mid.NewCandlePipeline(processor, m,
		mid.WithMaxRPS(2),
		mid.WithBufferSize(cfg.Ingest.BufferSize),
		mid.WithRetryBackoff(200*time.Millisecond, 5*time.Second),
	)
}

// ProvideHistory creates the REST kline source used for warm-up.
func ProvideHistory(cfg *config.Config) repository.HistorySource {
	return binance.NewHistory(cfg.Binance.APIKey, cfg.Binance.APISecret, cfg.Binance.Testnet)
}

// ProvideCandleCollector creates the websocket collector when ingesting
// from Binance.
func ProvideCandleCollector(
	cfg *config.Config,
	pipe *mid.CandlePipeline,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.CandleCollector {
	if cfg.Ingest.Source != "binance" {
		return nil
	}
	stream := binance.NewStream(
		cfg.Binance.WebSocketURL,
		cfg.Ingest.Symbols,
		cfg.Ingest.Interval,
		cfg.Binance.ReconnectDelay,
		cfg.Binance.PingInterval,
		l,
	)
	return usecase.NewCandleCollector(stream, pipe, m, l, cfg.Binance.ReconnectDelay)
}

// ProvideKafkaConsumer creates a Kafka consumer when ingesting from Kafka.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Ingest.Source != "kafka" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaCandlesHandler routes the candles topic into the pipeline.
func ProvideKafkaCandlesHandler(cfg *config.Config, pipe *mid.CandlePipeline, m repository.Metrics) *usecase.KafkaCandlesHandler {
	return usecase.NewKafkaCandlesHandler(cfg.Kafka.CandlesTopic, pipe, m)
}

// ProvideConvergenceService creates the query-side analysis service.
func ProvideConvergenceService(
	window *internalrepo.MemoryCandleStore,
	analyzer *usecase.Analyzer,
	monitor *usecase.SignalMonitor,
) *usecase.ConvergenceService {
	return usecase.NewConvergenceService(window, analyzer, monitor)
}

// ProvideCandlesUseCase serves raw candles from the window.
func ProvideCandlesUseCase(window *internalrepo.MemoryCandleStore) *usecase.CandlesUseCase {
	return usecase.NewCandlesUseCase(window)
}

// ProvideRateLimiter creates the per-client API limiter.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.Refill)
}

// ProvideHTTPHandler creates the API handler with health checks for every
// enabled dependency.
func ProvideHTTPHandler(
	cfg *config.Config,
	l *applogger.Logger,
	svc *usecase.ConvergenceService,
	candles *usecase.CandlesUseCase,
	c cache.Service,
	rl *ratelimit.Limiter,
	collector *usecase.CandleCollector,
	ch *pkgch.Client,
) *api.ConvergenceEchoHandler {
	checks := map[string]api.HealthCheck{}
	if collector != nil {
		checks["stream"] = func(context.Context) error {
			if !collector.IsConnected() {
				return fmt.Errorf("market stream disconnected")
			}
			return nil
		}
	}
	if ch != nil {
		checks["clickhouse"] = ch.Health
	}
	if cfg.Redis.Enabled {
		checks["redis"] = func(ctx context.Context) error {
			_, err := c.Exists(ctx, "healthz")
			return err
		}
	}
	return api.NewConvergenceEchoHandler(l, svc, candles, c, cfg.Server.CacheTTL, rl, checks)
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, h *api.ConvergenceEchoHandler) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(l, []xhttp.Handler{h},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	processor *usecase.CandleProcessor,
	history repository.HistorySource,
	collector *usecase.CandleCollector,
	pipe *mid.CandlePipeline,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaCandlesHandler,
	httpServer *xhttp.Server,
	rl *ratelimit.Limiter,
	pub repository.SignalPublisher,
	c cache.Service,
	ch *pkgch.Client,
	m repository.Metrics,
) *server.App {
	comps := server.Components{
		Processor:  processor,
		History:    history,
		Collector:  collector,
		Pipeline:   pipe,
		HTTPServer: httpServer,
		Limiter:    rl,
		Closers: []server.Closer{
			{Name: "cache", Close: c.Close},
			{Name: "signal_publisher", Close: pub.Close},
		},
	}
	if ch != nil {
		comps.Closers = append(comps.Closers, server.Closer{Name: "clickhouse", Close: ch.Close})
	}
	if consumer != nil {
		consumer.WithHook(pkgkafka.HookFuncs{
			GiveUp: func(context.Context, kafka.Message, error) {
				m.RecordError("kafka_give_up")
			},
		})
		comps.Consumer = consumer
		comps.Handler = kh
	}
	return server.New(cfg, l, comps)
}
