package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ConvergeWatch/internal/domain/models"
	domrepo "ConvergeWatch/internal/domain/repository"
	mid "ConvergeWatch/internal/middleware"
	pkgkafka "ConvergeWatch/pkg/kafka"
	"ConvergeWatch/pkg/util"
)

// CandleMessage is the candles topic schema; times are epoch milliseconds.
type CandleMessage struct {
	Symbol    string  `json:"symbol"`
	Interval  string  `json:"interval"`
	OpenTime  int64   `json:"t"`
	CloseTime int64   `json:"T"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
	Trades    int64   `json:"n"`
	Closed    bool    `json:"x"`
}

func (m CandleMessage) Candle() *models.Candle {
	c := &models.Candle{
		Symbol:   m.Symbol,
		Interval: m.Interval,
		OpenTime: util.FromMillis(m.OpenTime),
		Open:     m.Open,
		High:     m.High,
		Low:      m.Low,
		Close:    m.Close,
		Volume:   m.Volume,
		Trades:   m.Trades,
		Closed:   m.Closed,
	}
	if m.CloseTime > 0 {
		c.CloseTime = util.FromMillis(m.CloseTime)
	}
	return c
}

// KafkaCandlesHandler consumes the candles topic and feeds the processor.
type KafkaCandlesHandler struct {
	topic   string
	proc    mid.Proc
	metrics domrepo.Metrics
}

func NewKafkaCandlesHandler(topic string, proc mid.Proc, metrics domrepo.Metrics) *KafkaCandlesHandler {
	return &KafkaCandlesHandler{topic: topic, proc: proc, metrics: metrics}
}

func (h *KafkaCandlesHandler) Topic() string { return h.topic }

func (h *KafkaCandlesHandler) Handle(ctx context.Context, b []byte) error {
	var m CandleMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode candle: %w", err)
	}
	c := m.Candle()
	if err := mid.ValidateCandle(c); err != nil {
		// a malformed message never becomes valid; drop it instead of retrying
		h.metrics.RecordError("consumer_invalid")
		return nil
	}
	if c.Closed && !c.CloseTime.IsZero() {
		h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(c.CloseTime).Seconds())
	}
	if err := h.proc.Process(ctx, c); err != nil {
		h.metrics.RecordError("consumer_process")
		if errors.Is(err, mid.ErrBuffered) {
			// the pipeline retries it
			return nil
		}
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaCandlesHandler)(nil)
