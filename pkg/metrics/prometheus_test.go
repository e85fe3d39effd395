package metrics

import (
	"testing"

	"ConvergeWatch/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder(t *testing.T) {
	r := NewWithRegisterer(prometheus.NewRegistry())

	r.RecordSignal("BNBUSDT", models.SignalBuyConvergence)
	r.RecordSignal("BNBUSDT", models.SignalBuyConvergence)
	r.RecordCandle("binance", "BNBUSDT")
	r.RecordRegistrySize("BNBUSDT", 4)
	r.RecordLastPrice("BNBUSDT", 612.3)

	if v := testutil.ToFloat64(r.signalsTotal.WithLabelValues("BNBUSDT", "buy_convergence")); v != 2 {
		t.Errorf("signals = %v", v)
	}
	if v := testutil.ToFloat64(r.candlesTotal.WithLabelValues("binance", "BNBUSDT")); v != 1 {
		t.Errorf("candles = %v", v)
	}
	if v := testutil.ToFloat64(r.registrySize.WithLabelValues("BNBUSDT")); v != 4 {
		t.Errorf("registry size = %v", v)
	}
	if v := testutil.ToFloat64(r.lastPrice.WithLabelValues("BNBUSDT")); v != 612.3 {
		t.Errorf("last price = %v", v)
	}
}
