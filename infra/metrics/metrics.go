// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors so wiring stays explicit; nothing
// here registers against the default registry.
type Metrics struct {
	reg *prometheus.Registry

	OrdersSubmitted *prometheus.CounterVec
	OrdersRejected  *prometheus.CounterVec
	Cancellations   *prometheus.CounterVec
	Trades          *prometheus.CounterVec
	TradeVolume     *prometheus.CounterVec
	StopTriggers    *prometheus.CounterVec
	BookDepth       *prometheus.GaugeVec
	ConditionalPool *prometheus.GaugeVec
	SubmitLatency   *prometheus.HistogramVec
	EngineFailures  prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		OrdersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_orders_submitted_total",
			Help: "Orders accepted for processing, by instrument and type.",
		}, []string{"symbol", "type"}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_orders_rejected_total",
			Help: "Orders rejected at admission, by reason class.",
		}, []string{"symbol", "reason"}),
		Cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_order_cancellations_total",
			Help: "Order cancellations, by reason.",
		}, []string{"symbol", "reason"}),
		Trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_trades_total",
			Help: "Executed trades.",
		}, []string{"symbol"}),
		TradeVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_trade_volume_total",
			Help: "Executed quantity, summed per instrument.",
		}, []string{"symbol"}),
		StopTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_stop_triggers_total",
			Help: "Conditional orders promoted by a trade print.",
		}, []string{"symbol"}),
		BookDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exchange_book_orders",
			Help: "Orders currently resting in the book.",
		}, []string{"symbol"}),
		ConditionalPool: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exchange_conditional_orders",
			Help: "Stop-family orders waiting for a trigger print.",
		}, []string{"symbol"}),
		SubmitLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "exchange_submit_seconds",
			Help:    "Wall time of a serialized submit cycle.",
			Buckets: prometheus.ExponentialBuckets(10e-6, 4, 10),
		}, []string{"symbol"}),
		EngineFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exchange_engine_failures_total",
			Help: "Instrument engines halted by an internal invariant violation.",
		}),
	}

	m.reg.MustRegister(
		m.OrdersSubmitted, m.OrdersRejected, m.Cancellations,
		m.Trades, m.TradeVolume, m.StopTriggers,
		m.BookDepth, m.ConditionalPool, m.SubmitLatency, m.EngineFailures,
	)
	return m
}

// Handler serves the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
