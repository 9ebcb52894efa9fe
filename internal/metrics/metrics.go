// Package metrics exposes Prometheus collectors for the service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autoreply"

// Outcome labels.
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
	OutcomeReplied = "replied"
)

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	responsesTotal      *prometheus.CounterVec
	emailsSentTotal     *prometheus.CounterVec
	inboxMessagesTotal  *prometheus.CounterVec
	indexedChunks       prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a Metrics instance with every collector registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by route and status",
			},
			[]string{"method", "route", "status_code"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		responsesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "responses_generated_total",
				Help:      "Generated replies by source (cache or model)",
			},
			[]string{"source"},
		),

		emailsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "emails_sent_total",
				Help:      "Outbound emails by outcome",
			},
			[]string{"outcome"},
		),

		inboxMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inbox_messages_total",
				Help:      "Inbox messages handled by outcome",
			},
			[]string{"outcome"},
		),

		indexedChunks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "policy_index_chunks",
				Help:      "Number of policy chunks in the similarity index",
			},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.responsesTotal,
		m.emailsSentTotal,
		m.inboxMessagesTotal,
		m.indexedChunks,
	)

	return m
}

// ObserveResponse counts a generated reply by source.
func (m *Metrics) ObserveResponse(source string) {
	m.responsesTotal.WithLabelValues(source).Inc()
}

// SetIndexedChunks sets the policy index size.
func (m *Metrics) SetIndexedChunks(n int) {
	m.indexedChunks.Set(float64(n))
}

// RecordEmailSent counts an outbound email.
func (m *Metrics) RecordEmailSent(outcome string) {
	m.emailsSentTotal.WithLabelValues(outcome).Inc()
}

// RecordInboxMessage counts a processed inbox message.
func (m *Metrics) RecordInboxMessage(outcome string) {
	m.inboxMessagesTotal.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, statusCode string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler returns the Prometheus exposition handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records request counts and latency labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		m.RecordHTTPRequest(r.Method, routePattern(r), strconv.Itoa(wrapped.statusCode), time.Since(start))
	})
}

// routePattern keeps label cardinality bounded: unmatched paths collapse to "unknown".
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
