// Package metrics provides Prometheus instrumentation for the portal.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the portal collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	vaultReads     *prometheus.CounterVec
	vaultRefreshes *prometheus.CounterVec
	txTransitions  *prometheus.CounterVec
	notifyFailures *prometheus.CounterVec
	nameLookups    *prometheus.CounterVec
}

// New creates a registry with every portal collector registered under namespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "vault_portal"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"service", "method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"service", "method", "path"}),
		vaultReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vaults",
			Name:      "reads_total",
			Help:      "Vault summary reads by the path that produced them.",
		}, []string{"source"}),
		vaultRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vaults",
			Name:      "refreshes_total",
			Help:      "Vault cache refresh runs.",
		}, []string{"trigger"}),
		txTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "transitions_total",
			Help:      "Tracked transaction state transitions.",
		}, []string{"status"}),
		notifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "failures_total",
			Help:      "Third-party notification failures.",
		}, []string{"kind"}),
		nameLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "names",
			Name:      "lookups_total",
			Help:      "Name-service lookups by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.vaultReads,
		m.vaultRefreshes,
		m.txTransitions,
		m.notifyFailures,
		m.nameLookups,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler exposing the registered metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncrementInFlight increments the in-flight request gauge.
func (m *Metrics) IncrementInFlight() {
	if m != nil {
		m.httpInFlight.Inc()
	}
}

// DecrementInFlight decrements the in-flight request gauge.
func (m *Metrics) DecrementInFlight() {
	if m != nil {
		m.httpInFlight.Dec()
	}
}

// RecordHTTPRequest records a handled request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(service, method, path, status).Inc()
	m.httpDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordVaultRead records which path produced a vault summary.
func (m *Metrics) RecordVaultRead(source string) {
	if m != nil {
		m.vaultReads.WithLabelValues(source).Inc()
	}
}

// RecordVaultRefresh records a cache refresh run.
func (m *Metrics) RecordVaultRefresh(trigger string) {
	if m != nil {
		m.vaultRefreshes.WithLabelValues(trigger).Inc()
	}
}

// RecordTxTransition records a tracked transaction entering status.
func (m *Metrics) RecordTxTransition(status string) {
	if m != nil {
		m.txTransitions.WithLabelValues(status).Inc()
	}
}

// RecordNotificationFailure records a failed third-party call.
func (m *Metrics) RecordNotificationFailure(kind string) {
	if m != nil {
		m.notifyFailures.WithLabelValues(kind).Inc()
	}
}

// RecordNameLookup records a name-service lookup outcome (hit, miss, error, cached).
func (m *Metrics) RecordNameLookup(result string) {
	if m != nil {
		m.nameLookups.WithLabelValues(result).Inc()
	}
}
