package models

import "time"

// Candle represents one OHLCV kline as received from the exchange or the
// candles topic. OpenTime is the sample timestamp used by the analysis.
type Candle struct {
	Symbol    string    `json:"symbol"`
	Interval  string    `json:"interval"`
	OpenTime  time.Time `json:"open_time"`
	CloseTime time.Time `json:"close_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Trades    int64     `json:"trades"`
	Closed    bool      `json:"closed"`
}

// Key identifies the candle series the candle belongs to.
func (c Candle) Key() string {
	return c.Symbol + ":" + c.Interval
}
