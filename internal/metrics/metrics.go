// Package metrics owns the process-wide Prometheus registry: one counter
// or gauge per observable named in spec.md's external interface contract,
// exposed at GET /metrics and GET /api/metrics via promhttp.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the engine exports.
type Registry struct {
	SignalsGenerated   *prometheus.CounterVec
	SignalDuration     *prometheus.HistogramVec
	SignalsBlocked     *prometheus.CounterVec
	ProviderRequests   *prometheus.CounterVec
	ProviderLatencyMs  *prometheus.HistogramVec
	ProviderQuality    *prometheus.GaugeVec
	CircuitBreakerOpen *prometheus.GaugeVec
	AlertsPublished    *prometheus.CounterVec
	AlertsDropped      prometheus.Counter
	BrokerTrades       *prometheus.CounterVec
	BrokerDrift        *prometheus.CounterVec
	WSClientsConnected prometheus.Gauge
	AutoTradingEnabled prometheus.Gauge
}

// NewRegistry builds and registers every metric against reg. Pass
// prometheus.NewRegistry() in tests to avoid the global default registry's
// duplicate-registration panic across test runs.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		SignalsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fxengine_signals_generated_total",
			Help: "Total number of signals generated, labeled by pair and direction.",
		}, []string{"pair", "direction"}),

		SignalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fxengine_signal_generation_seconds",
			Help:    "Wall-clock duration of one generateSignal pipeline run.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"pair"}),

		SignalsBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fxengine_signals_blocked_total",
			Help: "Total number of signals blocked, labeled by reason.",
		}, []string{"reason"}),

		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fxengine_provider_requests_total",
			Help: "Total provider requests, labeled by provider and outcome.",
		}, []string{"provider", "outcome"}),

		ProviderLatencyMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fxengine_provider_latency_ms",
			Help:    "Provider response latency in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"provider"}),

		ProviderQuality: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fxengine_provider_quality_score",
			Help: "Rolling 0-100 quality score per provider.",
		}, []string{"provider"}),

		CircuitBreakerOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fxengine_circuit_breaker_open",
			Help: "1 if the named breaker is open, else 0.",
		}, []string{"name"}),

		AlertsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fxengine_alerts_published_total",
			Help: "Total alert bus publications, labeled by topic.",
		}, []string{"topic"}),

		AlertsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fxengine_alerts_dropped_total",
			Help: "Total alert bus publications dropped because the dispatch queue was saturated.",
		}),

		BrokerTrades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fxengine_broker_trades_total",
			Help: "Total broker trade events, labeled by broker and event type.",
		}, []string{"broker", "event"}),

		BrokerDrift: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fxengine_broker_drift_total",
			Help: "Total reconciliation drift events, labeled by broker and reason.",
		}, []string{"broker", "reason"}),

		WSClientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fxengine_ws_clients_connected",
			Help: "Current number of connected /ws/trading clients.",
		}),

		AutoTradingEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fxengine_auto_trading_enabled",
			Help: "1 if auto-trading is currently enabled, else 0.",
		}),
	}

	reg.MustRegister(
		r.SignalsGenerated, r.SignalDuration, r.SignalsBlocked,
		r.ProviderRequests, r.ProviderLatencyMs, r.ProviderQuality,
		r.CircuitBreakerOpen, r.AlertsPublished, r.AlertsDropped,
		r.BrokerTrades, r.BrokerDrift, r.WSClientsConnected, r.AutoTradingEnabled,
	)
	return r
}

// Handler returns the promhttp handler backed by the given gatherer,
// matching the registerer NewRegistry was given.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
