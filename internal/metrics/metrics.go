// Package metrics exposes generation and HTTP metrics in prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maauso/mediagen/internal/generation"
)

const namespace = "mediagen"

var latencyBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600}

// Recorder collects orchestration and HTTP metrics on a private registry.
type Recorder struct {
	registry *prometheus.Registry
	handler  http.Handler

	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	fallbacks       *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
}

var _ generation.Recorder = (*Recorder)(nil)

// New creates a Recorder with its collectors registered.
func New() (*Recorder, error) {
	registry := prometheus.NewRegistry()
	r := &Recorder{
		registry: registry,
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_attempts_total",
				Help:      "Provider attempts by outcome.",
			},
			[]string{"provider", "kind", "outcome", "error_kind"},
		),
		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_attempt_duration_seconds",
				Help:      "Duration of provider attempts including retries and polling.",
				Buckets:   latencyBuckets,
			},
			[]string{"provider", "kind", "outcome"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_fallbacks_total",
				Help:      "Fallbacks away from a provider by reason.",
			},
			[]string{"provider", "kind", "reason"},
		),
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deliveries_total",
				Help:      "Delivered assets by delivery method.",
			},
			[]string{"provider", "kind", "method"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed.",
			},
			[]string{"method", "route", "status"},
		),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds.",
				Buckets:   latencyBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}

	for _, c := range []prometheus.Collector{
		r.attempts,
		r.attemptDuration,
		r.fallbacks,
		r.deliveries,
		r.httpRequests,
		r.httpLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	r.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
	return r, nil
}

// Handler serves the prometheus exposition.
func (r *Recorder) Handler() http.Handler {
	return r.handler
}

// ObserveAttempt implements generation.Recorder.
func (r *Recorder) ObserveAttempt(provider, kind, outcome, errorKind string, d time.Duration) {
	r.attempts.WithLabelValues(provider, kind, outcome, errorKind).Inc()
	r.attemptDuration.WithLabelValues(provider, kind, outcome).Observe(d.Seconds())
}

// ObserveFallback implements generation.Recorder.
func (r *Recorder) ObserveFallback(provider, kind, reason string) {
	r.fallbacks.WithLabelValues(provider, kind, reason).Inc()
}

// ObserveDelivery implements generation.Recorder.
func (r *Recorder) ObserveDelivery(provider, kind, method string) {
	r.deliveries.WithLabelValues(provider, kind, method).Inc()
}

// RecordHTTPRequest counts one served HTTP request.
func (r *Recorder) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	label := strconv.Itoa(status)
	r.httpRequests.WithLabelValues(method, route, label).Inc()
	r.httpLatency.WithLabelValues(method, route, label).Observe(d.Seconds())
}
