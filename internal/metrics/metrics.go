// Package metrics defines custom Prometheus metrics for galleryd.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce ensures Register() is idempotent.
var registerOnce sync.Once

// sizeBuckets are exponential buckets for request/response size histograms (bytes).
var sizeBuckets = []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 67108864}

// HTTP metrics (RED: Rate, Errors, Duration).
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "galleryd_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency in seconds by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "galleryd_http_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// HTTPRequestSize observes request body size in bytes.
	HTTPRequestSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "galleryd_http_request_size_bytes",
			Help:    "Request body size in bytes",
			Buckets: sizeBuckets,
		},
		[]string{"method", "path"},
	)
)

// Asset operation metrics.
var (
	// AssetOperationsTotal counts asset operations by operation name and status.
	AssetOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "galleryd_asset_operations_total",
			Help: "Asset operations by type",
		},
		[]string{"operation", "status"},
	)

	// CompensationsTotal counts compensation attempts during uploads and
	// deletes, by outcome ("ok" or "failed").
	CompensationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "galleryd_compensations_total",
			Help: "Compensation attempts after a partial multi-step failure",
		},
		[]string{"outcome"},
	)

	// OrphansTotal counts confirmed orphan residue surfaced to callers,
	// by annotation ("orphan-blob" or "orphan-metadata").
	OrphansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "galleryd_orphans_total",
			Help: "Orphan residue left behind after failed compensation",
		},
		[]string{"kind"},
	)

	// UploadBytesTotal counts total bytes accepted into the blob store.
	UploadBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "galleryd_upload_bytes_total",
			Help: "Total bytes written to the blob store by uploads",
		},
	)
)

// assetOperations are the label values pre-initialized in /metrics output.
var assetOperations = []string{"upload", "delete", "reorder", "list"}

// Register registers all Prometheus collectors with the default registry.
// This must be called explicitly (typically from main) so that metrics
// registration can be made conditional on configuration. It is safe to call
// multiple times; subsequent calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			HTTPRequestSize,
			AssetOperationsTotal,
			CompensationsTotal,
			OrphansTotal,
			UploadBytesTotal,
		)
		for _, op := range assetOperations {
			AssetOperationsTotal.WithLabelValues(op, "ok").Add(0)
			AssetOperationsTotal.WithLabelValues(op, "error").Add(0)
		}
		CompensationsTotal.WithLabelValues("ok").Add(0)
		CompensationsTotal.WithLabelValues("failed").Add(0)
	})
}

// NormalizePath collapses per-asset paths into a single label value so the
// path label cardinality stays bounded.
func NormalizePath(path string) string {
	if strings.HasPrefix(path, "/assets/") && path != "/assets/order" {
		return "/assets/{id}"
	}
	if strings.HasPrefix(path, "/blobs/") {
		return "/blobs/{key}"
	}
	return path
}
