//go:build wireinject
// +build wireinject

package di

import (
	"ConvergeWatch/pkg/config"
	"ConvergeWatch/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideCache,

		// Repositories
		ProvideCandleWindow,
		ProvideCandleStorage,
		ProvideSignalPublisher,
		ProvideRegistryStore,
		ProvideHistory,

		// Use cases
		ProvideAnalyzer,
		ProvideSignalMonitor,
		ProvideCandleProcessor,
		ProvideCandlePipeline,
		ProvideCandleCollector,
		ProvideKafkaConsumer,
		ProvideKafkaCandlesHandler,
		ProvideConvergenceService,
		ProvideCandlesUseCase,

		// HTTP
		ProvideRateLimiter,
		ProvideHTTPHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return &server.App{}, nil
}
