package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ConvergeWatch/internal/domain/models"
	domrepo "ConvergeWatch/internal/domain/repository"
	"ConvergeWatch/pkg/util"
)

var ErrInvalidRange = errors.New("from must be before to")

// CandlesUseCase serves raw candle ranges from the analysis store.
type CandlesUseCase struct {
	store domrepo.CandleStore
	now   func() time.Time
}

func NewCandlesUseCase(store domrepo.CandleStore) *CandlesUseCase {
	return &CandlesUseCase{store: store, now: time.Now}
}

type GetCandlesParams struct {
	Symbol    string
	From      string
	To        string
	Timeframe domrepo.Timeframe
	Limit     int
}

type GetCandlesResult struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"tf"`
	From      time.Time       `json:"from"`
	To        time.Time       `json:"to"`
	Count     int             `json:"count"`
	Candles   []models.Candle `json:"candles"`
}

// GetCandles resolves the time range (default: the last Limit candles up to
// now), aligns it to candle boundaries and returns at most Limit candles,
// newest last.
func (uc *CandlesUseCase) GetCandles(ctx context.Context, p GetCandlesParams) (*GetCandlesResult, error) {
	if p.Limit <= 0 {
		p.Limit = 500
	}
	step := p.Timeframe.Duration()
	to := util.ParseTimeDefault(p.To, uc.now().UTC())
	from := util.ParseTimeDefault(p.From, to.Add(-time.Duration(p.Limit)*step))
	from, to = util.AlignFromTo(from, to, step)
	if from.After(to) {
		return nil, ErrInvalidRange
	}

	candles, err := uc.store.GetCandles(ctx, p.Symbol, from, to, p.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	if len(candles) > p.Limit {
		candles = candles[len(candles)-p.Limit:]
	}
	return &GetCandlesResult{
		Symbol:    p.Symbol,
		Timeframe: string(p.Timeframe),
		From:      from,
		To:        to,
		Count:     len(candles),
		Candles:   candles,
	}, nil
}
