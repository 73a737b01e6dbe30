// Package metrics exposes Prometheus instrumentation for the admission
// edge.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rzbill/gate/pkg/snapshot"
)

// CacheStatsSource is the health view the snapshot gauges read from.
type CacheStatsSource interface {
	Stats() snapshot.CacheStats
}

// Metrics holds the Gate collectors. Constructed once at startup with
// its own registry so tests can build isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	DecisionsTotal      *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the Gate metrics set registered on a fresh registry.
func New(cache CacheStatsSource) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gate_admission_decisions_total",
				Help: "Total admission decisions by outcome and deny code",
			},
			[]string{"outcome", "code"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gate_http_requests_total",
				Help: "Total HTTP requests served",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	registry.MustRegister(
		m.DecisionsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	if cache != nil {
		registry.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "gate_snapshot_version",
				Help: "Version of the installed snapshot",
			}, func() float64 {
				return float64(cache.Stats().Version)
			}),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "gate_snapshot_age_seconds",
				Help: "Age of the installed snapshot in seconds",
			}, func() float64 {
				stats := cache.Stats()
				if stats.FetchedAt.IsZero() {
					return -1
				}
				return time.Since(stats.FetchedAt).Seconds()
			}),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "gate_snapshot_fetch_failures",
				Help: "Consecutive snapshot fetch failures",
			}, func() float64 {
				return float64(cache.Stats().FetchFailures)
			}),
		)
	}

	return m
}

// RecordHTTPRequest counts one served request and observes its latency.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDecision counts one admission decision.
func (m *Metrics) RecordDecision(allowed bool, code string) {
	outcome := "deny"
	if allowed {
		outcome = "admit"
		code = ""
	}
	m.DecisionsTotal.WithLabelValues(outcome, code).Inc()
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
