package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"ConvergeWatch/internal/domain/models"
	drepo "ConvergeWatch/internal/domain/repository"
	"ConvergeWatch/pkg/logger"
	"ConvergeWatch/pkg/util"
)

// Stream implements a MarketStream over the Binance combined kline websocket.
type Stream struct {
	websocketURL   string
	symbols        []string
	interval       string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	l              *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	reqID     int
}

// NewStream creates a kline stream for symbols at one interval.
func NewStream(websocketURL string, symbols []string, interval string, reconnectDelay, pingInterval time.Duration, l *logger.Logger) *Stream {
	if l == nil {
		l = logger.Nop()
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Stream{
		websocketURL:   websocketURL,
		symbols:        symbols,
		interval:       interval,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		l:              l,
	}
}

// StreamNames returns the kline stream names, e.g. btcusdt@kline_1m.
func StreamNames(symbols []string, interval string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, strings.ToLower(s)+"@kline_"+interval)
	}
	return out
}

func (s *Stream) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.websocketURL, nil)
	if err != nil {
		return fmt.Errorf("binance connect: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	s.l.Info("binance stream connected", logger.String("url", s.websocketURL))
	return nil
}

func (s *Stream) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || !s.connected {
		return fmt.Errorf("binance not connected")
	}
	s.reqID++
	req := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": StreamNames(s.symbols, s.interval),
		"id":     s.reqID,
	}
	if err := s.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.l.Info("binance subscribed", logger.Strings("symbols", s.symbols), logger.String("interval", s.interval))
	return nil
}

// Read streams candles and errors until ctx ends or the connection fails.
func (s *Stream) Read(ctx context.Context) (<-chan *models.Candle, <-chan error) {
	candles := make(chan *models.Candle, 1024)
	errs := make(chan error, 1)

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				if conn != nil {
					_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				}
				s.mu.Unlock()
			}
		}
	}()

	go func() {
		defer close(candles)
		if conn == nil {
			errs <- fmt.Errorf("binance conn nil")
			return
		}
		for {
			if ctx.Err() != nil {
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				s.mu.Lock()
				s.connected = false
				s.mu.Unlock()
				errs <- fmt.Errorf("binance read: %w", err)
				return
			}
			c, ok, err := ParseKlineMessage(b)
			if err != nil {
				s.l.Debug("skip malformed kline", logger.Error(err))
				continue
			}
			if !ok {
				continue
			}
			select {
			case candles <- c:
			case <-ctx.Done():
				return
			}
		}
	}()

	return candles, errs
}

func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	select {
	case <-time.After(s.reconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

func (s *Stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Binance mixes upper and lower case keys, and encoding/json matches keys
// case-insensitively, so every key of the frame needs its own field.
type wsKline struct {
	OpenTime       int64  `json:"t"`
	CloseTime      int64  `json:"T"`
	Symbol         string `json:"s"`
	Interval       string `json:"i"`
	FirstTradeID   int64  `json:"f"`
	LastTradeID    int64  `json:"L"`
	Open           string `json:"o"`
	Close          string `json:"c"`
	High           string `json:"h"`
	Low            string `json:"l"`
	Volume         string `json:"v"`
	Trades         int64  `json:"n"`
	Closed         bool   `json:"x"`
	QuoteVolume    string `json:"q"`
	TakerBuyVolume string `json:"V"`
	TakerBuyQuote  string `json:"Q"`
}

type wsKlineEvent struct {
	Event     string  `json:"e"`
	EventTime int64   `json:"E"`
	Symbol    string  `json:"s"`
	Kline     wsKline `json:"k"`
}

type wsEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// ParseKlineMessage decodes a raw or combined-stream kline frame. Frames
// that are not klines, such as subscription acks, yield ok=false.
func ParseKlineMessage(b []byte) (*models.Candle, bool, error) {
	var env wsEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, false, fmt.Errorf("decode frame: %w", err)
	}
	payload := b
	if len(env.Data) > 0 {
		payload = env.Data
	}
	var ev wsKlineEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, false, fmt.Errorf("decode kline: %w", err)
	}
	if ev.Event != "kline" {
		return nil, false, nil
	}

	k := ev.Kline
	var (
		prices [5]float64
		err    error
	)
	for i, raw := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		if prices[i], err = parseDecimal(raw); err != nil {
			return nil, false, err
		}
	}
	symbol := k.Symbol
	if symbol == "" {
		symbol = ev.Symbol
	}
	return &models.Candle{
		Symbol:    symbol,
		Interval:  k.Interval,
		OpenTime:  util.FromMillis(k.OpenTime),
		CloseTime: util.FromMillis(k.CloseTime),
		Open:      prices[0],
		High:      prices[1],
		Low:       prices[2],
		Close:     prices[3],
		Volume:    prices[4],
		Trades:    k.Trades,
		Closed:    k.Closed,
	}, true, nil
}

func parseDecimal(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	return d.InexactFloat64(), nil
}

var _ drepo.MarketStream = (*Stream)(nil)
