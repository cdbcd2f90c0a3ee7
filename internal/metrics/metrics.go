// Package metrics provides Prometheus metrics collection for package inspection.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Request metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pkginspect_requests_total",
			Help: "Total number of inspection requests by operation and status",
		},
		[]string{"operation", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pkginspect_request_duration_seconds",
			Help:    "Inspection request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)

	// Inspection operations, whichever surface they were called from
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pkginspect_operations_total",
			Help: "Total number of inspection operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pkginspect_operation_duration_seconds",
			Help:    "Inspection operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Archive metrics
	ArchiveListDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pkginspect_archive_list_duration_seconds",
			Help:    "Time spent listing archive entries by format",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"format"},
	)

	ArchiveEntries = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pkginspect_archive_entries",
			Help:    "Number of entries per listed archive",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
		[]string{"format"},
	)

	ArchiveErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pkginspect_archive_errors_total",
			Help: "Total number of archives that could not be read",
		},
		[]string{"format", "operation"},
	)

	PathTraversals = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pkginspect_path_traversal_total",
			Help: "Archive members whose names tried to leave the archive root",
		},
	)

	// External tool metrics
	ToolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pkginspect_tool_duration_seconds",
			Help:    "External tool run time in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"tool"},
	)

	ToolFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pkginspect_tool_failures_total",
			Help: "Total number of external tool runs that failed",
		},
		[]string{"tool"},
	)

	// Build system detection
	Detections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pkginspect_detections_total",
			Help: "Build system detections by package kind and result",
		},
		[]string{"kind", "build_system"},
	)

	Checks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pkginspect_checks_total",
			Help: "Build system checks by package kind and outcome",
		},
		[]string{"kind", "result"},
	)

	// Scratch space
	ScratchDirsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pkginspect_scratch_dirs_active",
			Help: "Number of scratch directories currently in use",
		},
	)

	ScratchCleanupErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pkginspect_scratch_cleanup_errors_total",
			Help: "Total number of scratch directories that could not be removed",
		},
	)

	// Package resolution
	StorageOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pkginspect_storage_operation_duration_seconds",
			Help:    "Package storage operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	StorageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pkginspect_storage_errors_total",
			Help: "Total number of storage errors by operation",
		},
		[]string{"operation"},
	)

	// Active requests
	ActiveRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pkginspect_active_requests",
			Help: "Number of currently active requests",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		OperationsTotal,
		OperationDuration,
		ArchiveListDuration,
		ArchiveEntries,
		ArchiveErrors,
		PathTraversals,
		ToolDuration,
		ToolFailures,
		Detections,
		Checks,
		ScratchDirsActive,
		ScratchCleanupErrors,
		StorageOperationDuration,
		StorageErrors,
		ActiveRequests,
	)
}

// Handler returns an HTTP handler for the Prometheus /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest tracks request metrics with timing.
func RecordRequest(operation string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	RequestsTotal.WithLabelValues(operation, statusStr).Inc()
	RequestDuration.WithLabelValues(operation, statusStr).Observe(duration.Seconds())
}

// RecordOperation counts an inspection operation and its outcome, such
// as "ok", "not_found" or "error".
func RecordOperation(operation, result string, duration time.Duration) {
	OperationsTotal.WithLabelValues(operation, result).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordListing tracks how long an archive listing took and how many
// entries it produced.
func RecordListing(format string, entries int, duration time.Duration) {
	ArchiveListDuration.WithLabelValues(format).Observe(duration.Seconds())
	ArchiveEntries.WithLabelValues(format).Observe(float64(entries))
}

// RecordArchiveError increments the unreadable archive counter.
func RecordArchiveError(format, operation string) {
	ArchiveErrors.WithLabelValues(format, operation).Inc()
}

// RecordPathTraversal counts a member name that was clamped to the root.
func RecordPathTraversal() {
	PathTraversals.Inc()
}

// RecordToolRun tracks an external tool invocation.
func RecordToolRun(tool string, duration time.Duration, failed bool) {
	ToolDuration.WithLabelValues(tool).Observe(duration.Seconds())
	if failed {
		ToolFailures.WithLabelValues(tool).Inc()
	}
}

// RecordDetection counts a detection result.
func RecordDetection(kind, buildSystem string) {
	Detections.WithLabelValues(kind, buildSystem).Inc()
}

// RecordCheck counts a build system check outcome.
func RecordCheck(kind string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	Checks.WithLabelValues(kind, result).Inc()
}

// ScratchAcquired increments the active scratch directory gauge.
func ScratchAcquired() {
	ScratchDirsActive.Inc()
}

// ScratchReleased decrements the active scratch directory gauge and counts
// failed removals.
func ScratchReleased(cleanupErr error) {
	ScratchDirsActive.Dec()
	if cleanupErr != nil {
		ScratchCleanupErrors.Inc()
	}
}

// RecordStorageOperation tracks storage operation duration.
func RecordStorageOperation(operation string, duration time.Duration) {
	StorageOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordStorageError increments storage error counter.
func RecordStorageError(operation string) {
	StorageErrors.WithLabelValues(operation).Inc()
}

// IncrementActiveRequests increments the active request counter.
func IncrementActiveRequests() {
	ActiveRequests.Inc()
}

// DecrementActiveRequests decrements the active request counter.
func DecrementActiveRequests() {
	ActiveRequests.Dec()
}
