package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ConvergeWatch/internal/domain/models"
	domrepo "ConvergeWatch/internal/domain/repository"
)

// MemoryCandleStore keeps a bounded, time-ordered window per symbol and
// interval. A candle with an already stored open time replaces the stored one,
// which is how in-progress klines turn into closed ones.
type MemoryCandleStore struct {
	mu     sync.RWMutex
	limit  int
	series map[string][]models.Candle
}

func NewMemoryCandleStore(limit int) *MemoryCandleStore {
	if limit <= 0 {
		limit = 500
	}
	return &MemoryCandleStore{limit: limit, series: make(map[string][]models.Candle)}
}

func seriesKey(symbol string, tf domrepo.Timeframe) string {
	return symbol + ":" + string(tf)
}

func (s *MemoryCandleStore) Upsert(_ context.Context, c models.Candle) error {
	if c.Symbol == "" || c.OpenTime.IsZero() {
		return fmt.Errorf("upsert candle: symbol and open time are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertLocked(c)
	return nil
}

func (s *MemoryCandleStore) StoreBatch(_ context.Context, candles []models.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range candles {
		if c.Symbol == "" || c.OpenTime.IsZero() {
			continue
		}
		s.upsertLocked(c)
	}
	return nil
}

func (s *MemoryCandleStore) upsertLocked(c models.Candle) {
	key := c.Symbol + ":" + c.Interval
	win := s.series[key]

	i := sort.Search(len(win), func(i int) bool { return !win[i].OpenTime.Before(c.OpenTime) })
	switch {
	case i < len(win) && win[i].OpenTime.Equal(c.OpenTime):
		win[i] = c
	case i == len(win):
		win = append(win, c)
	default:
		win = append(win, models.Candle{})
		copy(win[i+1:], win[i:])
		win[i] = c
	}
	if len(win) > s.limit {
		win = append(win[:0:0], win[len(win)-s.limit:]...)
	}
	s.series[key] = win
}

func (s *MemoryCandleStore) GetCandles(_ context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	win := s.series[seriesKey(symbol, tf)]
	out := make([]models.Candle, 0, len(win))
	for _, c := range win {
		if c.OpenTime.Before(from) || c.OpenTime.After(to) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *MemoryCandleStore) GetLatestNCandles(_ context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	win := s.series[seriesKey(symbol, tf)]
	if n <= 0 || n > len(win) {
		n = len(win)
	}
	out := make([]models.Candle, n)
	copy(out, win[len(win)-n:])
	return out, nil
}

// Len reports the window size of one series.
func (s *MemoryCandleStore) Len(symbol string, tf domrepo.Timeframe) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series[seriesKey(symbol, tf)])
}

var (
	_ domrepo.CandleStore  = (*MemoryCandleStore)(nil)
	_ domrepo.CandleWriter = (*MemoryCandleStore)(nil)
)
