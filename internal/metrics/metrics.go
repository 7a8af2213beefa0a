// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "recruitcrm"

var (
	// HTTPRequestsTotal counts handled requests.
	// Labels: method, route, status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// AICallsTotal counts generative AI calls.
	// Labels: operation (text, document), result (success, error)
	AICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ai",
			Name:      "calls_total",
			Help:      "Total number of generative AI calls",
		},
		[]string{"operation", "result"},
	)

	AICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ai",
			Name:      "call_duration_seconds",
			Help:      "Duration of generative AI calls in seconds, including limiter wait",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"operation"},
	)

	// ExtractionsTotal counts normalizer outcomes.
	// Labels: schema, path (json, lines)
	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "normalizations_total",
			Help:      "Total number of AI responses normalized, by decoding path",
		},
		[]string{"schema", "path"},
	)

	// CVUploadsTotal counts CV uploads.
	// Labels: result (stored, rejected, error)
	CVUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "candidates",
			Name:      "cv_uploads_total",
			Help:      "Total number of CV uploads by result",
		},
		[]string{"result"},
	)

	// SearchQueriesTotal counts candidate searches by backend.
	SearchQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "queries_total",
			Help:      "Total number of candidate search queries by backend",
		},
		[]string{"backend"},
	)

	// SearchHealthy is 1 while Meilisearch answers health checks.
	SearchHealthy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "meili_healthy",
			Help:      "Current Meilisearch health (1=healthy, 0=fallback)",
		},
	)

	// ExportsTotal counts candidate PDF renders.
	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "pdf_total",
			Help:      "Total number of candidate PDF exports by result",
		},
		[]string{"result"},
	)

	NotificationStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "open_streams",
			Help:      "Number of open notification event streams",
		},
	)
)

// ObserveHTTP records one finished request.
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Result maps an error onto the success/error label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
