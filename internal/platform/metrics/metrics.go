package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors for the timeline orchestrator. It
// satisfies registry.Recorder so every session's registry reports into it.
type Metrics struct {
	registry          *prometheus.Registry
	requestsTotal     prometheus.Counter
	errorsTotal       prometheus.Counter
	segmentsSubmitted prometheus.Counter
	segmentsSettled   *prometheus.CounterVec
	dependencyWait    prometheus.Histogram
	sessionsReady     prometheus.Counter
	activeSessions    prometheus.Gauge
}

// New creates and registers the orchestrator's collectors on a private
// registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timeline_http_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timeline_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		segmentsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timeline_segments_submitted_total",
			Help: "Total number of segment registrations submitted",
		}),
		segmentsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timeline_segments_settled_total",
			Help: "Total number of segment registrations settled, by outcome",
		}, []string{"outcome"}),
		dependencyWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "timeline_dependency_wait_seconds",
			Help:    "Time segment registrations spent waiting for their dependencies",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		sessionsReady: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timeline_sessions_ready_total",
			Help: "Total number of sessions whose registrations all settled",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "timeline_active_sessions",
			Help: "Number of sessions that have not been ended",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.segmentsSubmitted,
		m.segmentsSettled,
		m.dependencyWait,
		m.sessionsReady,
		m.activeSessions,
	)
	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// SegmentSubmitted implements registry.Recorder.
func (m *Metrics) SegmentSubmitted() {
	m.segmentsSubmitted.Inc()
}

// SegmentSettled implements registry.Recorder.
func (m *Metrics) SegmentSettled(outcome string, waited time.Duration) {
	m.segmentsSettled.WithLabelValues(outcome).Inc()
	m.dependencyWait.Observe(waited.Seconds())
}

// SessionReady implements registry.Recorder.
func (m *Metrics) SessionReady() {
	m.sessionsReady.Inc()
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		inner.ServeHTTP(w, r)
	})
}
