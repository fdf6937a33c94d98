// Package metrics holds the gateway's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the gateway's collectors around a private registry so
// tests can build as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	walletOps      *prometheus.CounterVec
	activeSessions prometheus.GaugeFunc
}

// New builds the collector set. sessionCount feeds the live-sessions
// gauge; pass nil to pin it at zero.
func New(sessionCount func() int) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	if sessionCount == nil {
		sessionCount = func() int { return 0 }
	}

	return &Metrics{
		registry: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bush_http_requests_total",
			Help: "HTTP requests handled, by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bush_http_request_duration_seconds",
			Help:    "HTTP request latency, by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		walletOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bush_wallet_operations_total",
			Help: "Wallet operations forwarded to the wallet service, by method and outcome.",
		}, []string{"method", "outcome"}),
		activeSessions: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "bush_active_sessions",
			Help: "Sessions currently holding wallet state.",
		}, func() float64 { return float64(sessionCount()) }),
	}
}

// ObserveHTTP records one handled request.
func (m *Metrics) ObserveHTTP(route, method, status string, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(route, method, status).Inc()
	m.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveWalletOp records one forwarded wallet operation.
func (m *Metrics) ObserveWalletOp(method string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.walletOps.WithLabelValues(method, outcome).Inc()
}

// Handler serves the /metrics endpoint for this collector set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
