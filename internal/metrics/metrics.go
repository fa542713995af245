// Package metrics defines the Prometheus metrics exported by the integrity tools.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce ensures Register() is idempotent.
var registerOnce sync.Once

// sizeBuckets are exponential buckets for verified object sizes (bytes).
var sizeBuckets = []float64{0, 1, 4096, 65536, 1048576, 4194304, 16777216, 67108864}

// Storage invocation metrics.
var (
	// InvocationsTotal counts storage operations by operation name and status.
	InvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integrity_invocations_total",
			Help: "Storage operations issued, by operation and status",
		},
		[]string{"operation", "status"},
	)

	// InvocationDuration observes invocation latency in seconds.
	InvocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "integrity_invocation_duration_seconds",
			Help:    "Storage operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Scenario and plan metrics.
var (
	// ScenariosTotal counts sweep scenarios by mode, category and result.
	ScenariosTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integrity_scenarios_total",
			Help: "Sweep scenarios executed",
		},
		[]string{"mode", "category", "result"},
	)

	// PlanStepsTotal counts declarative plan steps by operation and result.
	PlanStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integrity_plan_steps_total",
			Help: "Test-plan steps executed",
		},
		[]string{"operation", "result"},
	)

	// BytesVerifiedTotal counts bytes compared byte-for-byte against a reference.
	BytesVerifiedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "integrity_bytes_verified_total",
			Help: "Bytes verified against the reference payload",
		},
	)

	// ObjectSize observes the size of every object whose read-back was verified.
	ObjectSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "integrity_verified_object_size_bytes",
			Help:    "Size of verified objects in bytes",
			Buckets: sizeBuckets,
		},
	)
)

// Status server metrics.
var (
	// HTTPRequestsTotal counts status server requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integrity_http_requests_total",
			Help: "Total status server HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes status server request latency in seconds.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "integrity_http_request_duration_seconds",
			Help:    "Status server request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Register registers all Prometheus collectors with the default registry.
// It is safe to call multiple times; subsequent calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			InvocationsTotal,
			InvocationDuration,
			ScenariosTotal,
			PlanStepsTotal,
			BytesVerifiedTotal,
			ObjectSize,
			HTTPRequestsTotal,
			HTTPRequestDuration,
		)
	})
}

// Status returns the status label for an outcome.
func Status(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// WriteTextfile writes every metric in the default registry to path in the
// node-exporter textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

// NormalizePath maps status server request paths to low-cardinality labels.
func NormalizePath(path string) string {
	switch path {
	case "/health", "/status", "/metrics", "/openapi.json":
		return path
	case "/docs", "/docs/":
		return "/docs"
	}
	if strings.HasPrefix(path, "/docs") {
		return "/docs"
	}
	if strings.HasPrefix(path, "/openapi") || strings.HasPrefix(path, "/schemas") {
		return "/openapi"
	}
	return "/other"
}
