// Package metrics exposes Prometheus collectors for the status server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "netrunner"

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

// Metrics holds the collectors on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	refreshes       *prometheus.CounterVec
	runOutcomes     *prometheus.CounterVec
	deployments     *prometheus.GaugeVec
}

// New registers the netrunner collectors plus the Go and process
// collectors on a new registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Run status refreshes by result",
		}, []string{"result"}),
		runOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_outcomes_total",
			Help:      "Runs observed reaching a terminal conclusion",
		}, []string{"conclusion"}),
		deployments: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "deployments",
			Help:      "Tracked deployments by state",
		}, []string{"state"}),
	}

	m.registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.refreshes,
		m.runOutcomes,
		m.deployments,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"method": method, "route": route, "status": strconv.Itoa(status)}
	m.requestTotal.With(labels).Inc()
	m.requestDuration.With(labels).Observe(d.Seconds())
}

// RefreshResult counts one refreshed run, "ok" or "error".
func (m *Metrics) RefreshResult(result string) {
	if m == nil {
		return
	}
	m.refreshes.With(prometheus.Labels{"result": result}).Inc()
}

// RunCompleted counts a run reaching conclusion.
func (m *Metrics) RunCompleted(conclusion string) {
	if m == nil {
		return
	}
	if conclusion == "" {
		conclusion = "unknown"
	}
	m.runOutcomes.With(prometheus.Labels{"conclusion": conclusion}).Inc()
}

// SetDeployments sets the gauge for state ("active", "unfinished").
func (m *Metrics) SetDeployments(state string, n int) {
	if m == nil {
		return
	}
	m.deployments.With(prometheus.Labels{"state": state}).Set(float64(n))
}
