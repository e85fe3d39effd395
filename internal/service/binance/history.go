package binance

import (
	"context"
	"fmt"
	"strings"
	"time"

	gobinance "github.com/adshao/go-binance/v2"

	"ConvergeWatch/internal/domain/models"
	drepo "ConvergeWatch/internal/domain/repository"
	"ConvergeWatch/pkg/util"
)

const maxHistoryLimit = 1000

// History fetches closed klines over the Binance spot REST API.
type History struct {
	client *gobinance.Client
	now    func() time.Time
}

// NewHistory creates a REST client. Keys may be empty; klines are public.
func NewHistory(apiKey, apiSecret string, testnet bool) *History {
	gobinance.UseTestnet = testnet
	return &History{client: gobinance.NewClient(apiKey, apiSecret), now: time.Now}
}

// Klines returns up to limit candles in ascending order. The still-forming
// last kline is dropped so warm-up only sees closed candles.
func (h *History) Klines(ctx context.Context, symbol string, tf drepo.Timeframe, limit int) ([]models.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	raw, err := h.client.NewKlinesService().
		Symbol(symbol).
		Interval(string(tf)).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s %s: %w", symbol, tf, err)
	}
	return convertKlines(raw, symbol, string(tf), h.now())
}

func convertKlines(raw []*gobinance.Kline, symbol, interval string, now time.Time) ([]models.Candle, error) {
	out := make([]models.Candle, 0, len(raw))
	for _, k := range raw {
		if k == nil {
			continue
		}
		var (
			prices [5]float64
			err    error
		)
		for i, s := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
			if prices[i], err = parseDecimal(s); err != nil {
				return nil, fmt.Errorf("kline %d: %w", k.OpenTime, err)
			}
		}
		closeTime := util.FromMillis(k.CloseTime)
		if closeTime.After(now) {
			continue
		}
		out = append(out, models.Candle{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  util.FromMillis(k.OpenTime),
			CloseTime: closeTime,
			Open:      prices[0],
			High:      prices[1],
			Low:       prices[2],
			Close:     prices[3],
			Volume:    prices[4],
			Trades:    k.TradeNum,
			Closed:    true,
		})
	}
	return out, nil
}

var _ drepo.HistorySource = (*History)(nil)
