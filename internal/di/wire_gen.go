//go:build !wireinject
// +build !wireinject

package di

import (
	"ConvergeWatch/pkg/config"
	"ConvergeWatch/pkg/server"
)

// InitializeApp builds the provider graph declared in wire.go, in
// dependency order.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, err
	}
	metrics := ProvideMetrics()
	client, err := ProvideClickHouseClient(cfg)
	if err != nil {
		return nil, err
	}
	producer, err := ProvideKafkaProducer(cfg)
	if err != nil {
		return nil, err
	}
	service, err := ProvideCache(cfg)
	if err != nil {
		return nil, err
	}
	memoryCandleStore := ProvideCandleWindow(cfg)
	storage, err := ProvideCandleStorage(client, cfg, logger)
	if err != nil {
		return nil, err
	}
	signalPublisher := ProvideSignalPublisher(producer, cfg)
	registryStore := ProvideRegistryStore(service, cfg)
	historySource := ProvideHistory(cfg)
	analyzer := ProvideAnalyzer(cfg)
	signalMonitor := ProvideSignalMonitor(analyzer, memoryCandleStore, signalPublisher, registryStore, metrics, logger, cfg)
	candleProcessor := ProvideCandleProcessor(memoryCandleStore, storage, signalMonitor, metrics, logger, cfg)
	candlePipeline := ProvideCandlePipeline(candleProcessor, metrics, cfg)
	candleCollector := ProvideCandleCollector(cfg, candlePipeline, metrics, logger)
	consumer, err := ProvideKafkaConsumer(cfg, logger)
	if err != nil {
		return nil, err
	}
	kafkaCandlesHandler := ProvideKafkaCandlesHandler(cfg, candlePipeline, metrics)
	convergenceService := ProvideConvergenceService(memoryCandleStore, analyzer, signalMonitor)
	candlesUseCase := ProvideCandlesUseCase(memoryCandleStore)
	limiter := ProvideRateLimiter(cfg)
	convergenceEchoHandler := ProvideHTTPHandler(cfg, logger, convergenceService, candlesUseCase, service, limiter, candleCollector, client)
	httpServer := ProvideHTTPServer(cfg, logger, convergenceEchoHandler)
	app := ProvideApp(cfg, logger, candleProcessor, historySource, candleCollector, candlePipeline, consumer, kafkaCandlesHandler, httpServer, limiter, signalPublisher, service, client, metrics)
	return app, nil
}
