package repository

import (
	"context"
	"time"

	"ConvergeWatch/internal/domain/models"
)

// Timeframe represents kline intervals supported by the analysis.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF3m  Timeframe = "3m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
)

// CandleStore provides read access to candle windows for analysis.
type CandleStore interface {
	GetCandles(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.Candle, error)
	GetLatestNCandles(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Candle, error)
}

// CandleWriter accepts candles from the ingest path.
type CandleWriter interface {
	Upsert(ctx context.Context, c models.Candle) error
	StoreBatch(ctx context.Context, candles []models.Candle) error
}

// HistorySource fetches the most recent closed candles from an upstream
// source, used to warm up windows before the stream delivers.
type HistorySource interface {
	Klines(ctx context.Context, symbol string, tf Timeframe, limit int) ([]models.Candle, error)
}
