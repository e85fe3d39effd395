package repository

import (
	"context"

	"ConvergeWatch/internal/domain/models"
)

type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Candle, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

type SignalPublisher interface {
	Publish(ctx context.Context, s models.ConvergenceSignal) error
	PublishBatch(ctx context.Context, signals []models.ConvergenceSignal) error
	Close() error
}

// Storage persists candles for replay and on-demand analysis.
type Storage interface {
	Init(ctx context.Context) error // ensure tables, health checks
	CandleWriter
	Health(ctx context.Context) error // ping
	Close() error
}

type Metrics interface {
	RecordCandle(source, symbol string)
	RecordSignal(symbol string, kind models.SignalKind)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordRegistrySize(symbol string, size int)
}
