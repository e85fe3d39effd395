package metrics

import (
	"ConvergeWatch/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	candlesTotal *prometheus.CounterVec
	signalsTotal *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	registrySize *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
}

// New registers the recorder on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the recorder on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		candlesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "convergewatch_candles_total",
				Help: "Candles received per source and symbol",
			},
			[]string{"source", "symbol"},
		),
		signalsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "convergewatch_signals_emitted_total",
				Help: "Convergence signals emitted after filtering",
			},
			[]string{"symbol", "kind"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "convergewatch_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "convergewatch_last_price",
				Help: "Last close price for a symbol",
			},
			[]string{"symbol"},
		),
		registrySize: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "convergewatch_registry_size",
				Help: "Entries held in the signal registry",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "convergewatch_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordCandle(source, symbol string) {
	r.candlesTotal.WithLabelValues(source, symbol).Inc()
}

func (r *Recorder) RecordSignal(symbol string, kind models.SignalKind) {
	r.signalsTotal.WithLabelValues(symbol, string(kind)).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

func (r *Recorder) RecordRegistrySize(symbol string, size int) {
	r.registrySize.WithLabelValues(symbol).Set(float64(size))
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
