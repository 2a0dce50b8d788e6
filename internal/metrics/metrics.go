// Package metrics provides Prometheus metrics for BlazeAlert.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "blazealert"
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks concurrent HTTP requests.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)
)

// Failure detector metrics
var (
	// FailuresTracked counts failure reports fed into the detector.
	FailuresTracked = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "failures_total",
			Help:      "Total failure reports tracked",
		},
	)

	// EscalationsTotal counts escalation alerts emitted when a source
	// crosses the failure threshold.
	EscalationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "escalations_total",
			Help:      "Total escalation alerts emitted",
		},
	)

	// TrackedSources tracks sources with a live failure window.
	TrackedSources = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "tracked_sources",
			Help:      "Sources currently holding failure history",
		},
	)
)

// Dispatcher metrics
var (
	// AlertsEnqueued counts alerts buffered into debounce buckets.
	AlertsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "alerts_enqueued_total",
			Help:      "Alerts accepted into debounce buckets",
		},
		[]string{"type"},
	)

	// AlertsDropped counts alerts dropped before delivery.
	AlertsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "alerts_dropped_total",
			Help:      "Alerts dropped before delivery",
		},
		[]string{"reason"},
	)

	// DebounceFlushes counts bucket flushes by alert type.
	DebounceFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "debounce_flushes_total",
			Help:      "Debounce bucket flushes",
		},
		[]string{"type"},
	)

	// BucketsActive tracks open debounce buckets.
	BucketsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "buckets_active",
			Help:      "Debounce buckets currently open",
		},
	)

	// SendAttempts counts individual transport send attempts.
	SendAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "send_attempts_total",
			Help:      "Individual transport send attempts, including retries",
		},
	)

	// Sends counts completed send operations by result.
	Sends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "sends_total",
			Help:      "Completed send operations by result",
		},
		[]string{"result"},
	)

	// SendDuration tracks end-to-end send latency including retries.
	SendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "send_duration_seconds",
			Help:      "End-to-end send latency including retry backoff",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)
)

// Send result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Drop reason label values.
const (
	DropDisabled    = "disabled"
	DropRateLimited = "rate_limited"
	DropShutdown    = "shutdown"
)
