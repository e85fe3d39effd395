package binance

import (
	"testing"
	"time"
)

const combinedFrame = `{"stream":"btcusdt@kline_1m","data":{"e":"kline","E":1714521601000,"s":"BTCUSDT",
"k":{"t":1714521600000,"T":1714521659999,"s":"BTCUSDT","i":"1m","f":100,"L":200,
"o":"60000.10","c":"60050.25","h":"60100.00","l":"59950.00","v":"12.5","n":101,"x":true,
"q":"750000.0","V":"6.0","Q":"360000.0","B":"0"}}}`

func TestParseKlineMessageCombined(t *testing.T) {
	c, ok, err := ParseKlineMessage([]byte(combinedFrame))
	if err != nil || !ok {
		t.Fatalf("parse: ok=%v err=%v", ok, err)
	}
	if c.Symbol != "BTCUSDT" || c.Interval != "1m" || !c.Closed {
		t.Fatalf("unexpected header %+v", c)
	}
	if !c.OpenTime.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected open time %v", c.OpenTime)
	}
	if c.Close != 60050.25 || c.High != 60100 || c.Low != 59950 || c.Open != 60000.10 {
		t.Fatalf("unexpected prices %+v", c)
	}
	if c.Volume != 12.5 {
		t.Fatalf("volume %v must not be taken from the taker buy field", c.Volume)
	}
	if c.Trades != 101 {
		t.Fatalf("unexpected trades %d", c.Trades)
	}
}

func TestParseKlineMessageRawAndAcks(t *testing.T) {
	raw := `{"e":"kline","E":1,"s":"ETHUSDT","k":{"t":1714521600000,"T":1714521659999,"s":"ETHUSDT","i":"5m",` +
		`"o":"1","c":"2","h":"3","l":"0.5","v":"10","n":1,"x":false}}`
	c, ok, err := ParseKlineMessage([]byte(raw))
	if err != nil || !ok || c.Symbol != "ETHUSDT" || c.Closed {
		t.Fatalf("raw frame: %+v ok=%v err=%v", c, ok, err)
	}

	if _, ok, err := ParseKlineMessage([]byte(`{"result":null,"id":1}`)); ok || err != nil {
		t.Fatalf("ack should be skipped, ok=%v err=%v", ok, err)
	}
	if _, _, err := ParseKlineMessage([]byte(`not json`)); err == nil {
		t.Fatalf("expected decode error")
	}
	bad := `{"e":"kline","k":{"t":1,"s":"X","i":"1m","o":"abc","c":"1","h":"1","l":"1","v":"1"}}`
	if _, _, err := ParseKlineMessage([]byte(bad)); err == nil {
		t.Fatalf("expected price error")
	}
}

func TestStreamNames(t *testing.T) {
	got := StreamNames([]string{"BTCUSDT", "EthUsdt"}, "15m")
	if len(got) != 2 || got[0] != "btcusdt@kline_15m" || got[1] != "ethusdt@kline_15m" {
		t.Fatalf("unexpected names %v", got)
	}
}
