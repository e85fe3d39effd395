package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ConvergeWatch/internal/domain/models"
	domrepo "ConvergeWatch/internal/domain/repository"
	pkgch "ConvergeWatch/pkg/clickhouse"
	applogger "ConvergeWatch/pkg/logger"
)

const candleColumns = "symbol, interval, open_time, close_time, open, high, low, close, volume, trades"

// CandleSchema returns the DDL for the candles table in database db.
func CandleSchema(db string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.candles (
    symbol     LowCardinality(String),
    interval   LowCardinality(String),
    open_time  DateTime64(3, 'UTC'),
    close_time DateTime64(3, 'UTC'),
    open       Float64,
    high       Float64,
    low        Float64,
    close      Float64,
    volume     Float64,
    trades     UInt64
) ENGINE = ReplacingMergeTree
ORDER BY (symbol, interval, open_time)`, db),
	}
}

// CHCandleStore persists closed candles in ClickHouse and serves analysis
// windows back from it.
type CHCandleStore struct {
	client *pkgch.Client
	db     *sql.DB
	table  string
	l      *applogger.Logger
}

func NewCHCandleStore(client *pkgch.Client, l *applogger.Logger) *CHCandleStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHCandleStore{
		client: client,
		db:     client.DB(),
		table:  client.Database() + ".candles",
		l:      l,
	}
}

func (s *CHCandleStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, CandleSchema(s.client.Database()))
}

func (s *CHCandleStore) Upsert(ctx context.Context, c models.Candle) error {
	return s.StoreBatch(ctx, []models.Candle{c})
}

// StoreBatch inserts candles in chunks. ReplacingMergeTree collapses repeated
// open times, so re-sent klines are safe.
func (s *CHCandleStore) StoreBatch(ctx context.Context, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	const chunkSize = 2000
	for start := 0; start < len(candles); start += chunkSize {
		end := min(start+chunkSize, len(candles))

		values := make([]string, 0, end-start)
		args := make([]any, 0, (end-start)*10)
		for _, c := range candles[start:end] {
			if c.Symbol == "" || c.OpenTime.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				c.Symbol, c.Interval, c.OpenTime, c.CloseTime,
				c.Open, c.High, c.Low, c.Close, c.Volume, uint64(max(c.Trades, 0)),
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, candleColumns, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse store_batch error",
				applogger.String("table", s.table),
				applogger.Int("rows", len(values)),
				applogger.Error(err),
			)
			return fmt.Errorf("store candles: %w", err)
		}
	}
	return nil
}

func (s *CHCandleStore) GetCandles(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT %s
        FROM %s FINAL
        WHERE symbol = ? AND interval = ? AND open_time >= ? AND open_time <= ?
        ORDER BY open_time ASC
    `, candleColumns, s.table)
	out, err := s.query(ctx, q, symbol, string(tf), from, to)
	if err != nil {
		s.l.Error("clickhouse get_candles error",
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get candles: %w", err)
	}
	s.l.Debug("clickhouse get_candles ok",
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// GetLatestNCandles returns the newest n candles in ascending order.
func (s *CHCandleStore) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	q := fmt.Sprintf(`
        SELECT %s
        FROM %s FINAL
        WHERE symbol = ? AND interval = ?
        ORDER BY open_time DESC
        LIMIT ?
    `, candleColumns, s.table)
	out, err := s.query(ctx, q, symbol, string(tf), n)
	if err != nil {
		s.l.Error("clickhouse latest_candles error",
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Int("limit", n),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get latest candles: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *CHCandleStore) query(ctx context.Context, q string, args ...any) ([]models.Candle, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 256)
	for rows.Next() {
		var (
			c      models.Candle
			trades uint64
		)
		if err := rows.Scan(&c.Symbol, &c.Interval, &c.OpenTime, &c.CloseTime,
			&c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &trades); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.OpenTime = c.OpenTime.UTC()
		c.CloseTime = c.CloseTime.UTC()
		c.Trades = int64(trades)
		c.Closed = true
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *CHCandleStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

// Close is a no-op; the client is owned by the caller.
func (s *CHCandleStore) Close() error { return nil }

var (
	_ domrepo.Storage     = (*CHCandleStore)(nil)
	_ domrepo.CandleStore = (*CHCandleStore)(nil)
)
