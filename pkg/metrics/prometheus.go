package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	tradesReceived   *prometheus.CounterVec
	reconnects       *prometheus.CounterVec
	backfillPages    *prometheus.CounterVec
	backfillCandles  *prometheus.CounterVec
	candlesPersisted *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	lastPrice        *prometheus.GaugeVec
	latency          *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		tradesReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptopull_trades_received_total",
				Help: "Total number of trades received from the live stream",
			},
			[]string{"symbol"},
		),
		reconnects: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptopull_stream_connects_total",
				Help: "Total number of successful stream connections per venue",
			},
			[]string{"venue"},
		),
		backfillPages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptopull_backfill_pages_total",
				Help: "Total number of history pages fetched per venue",
			},
			[]string{"venue"},
		),
		backfillCandles: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptopull_backfill_candles_total",
				Help: "Total number of candles carried on fetched history pages",
			},
			[]string{"venue"},
		),
		candlesPersisted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptopull_candles_persisted_total",
				Help: "Total number of hourly candles written per symbol",
			},
			[]string{"symbol"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptopull_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cryptopull_last_price",
				Help: "Last traded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cryptopull_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordTradeReceived counts a decoded live trade.
func (r *Recorder) RecordTradeReceived(symbol string) {
	r.tradesReceived.WithLabelValues(symbol).Inc()
}

// RecordReconnect counts a successful stream connection.
func (r *Recorder) RecordReconnect(venue string) {
	r.reconnects.WithLabelValues(venue).Inc()
}

// RecordBackfillPage counts a fetched history page and the candles it carried.
func (r *Recorder) RecordBackfillPage(venue string, candles int) {
	r.backfillPages.WithLabelValues(venue).Inc()
	r.backfillCandles.WithLabelValues(venue).Add(float64(candles))
}

// RecordCandlesPersisted counts persisted hourly candles.
func (r *Recorder) RecordCandlesPersisted(symbol string, count int) {
	r.candlesPersisted.WithLabelValues(symbol).Add(float64(count))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice updates the last traded price gauge.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records an operation duration.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
