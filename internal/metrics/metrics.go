// Package metrics exposes Prometheus instrumentation for hub maintenance.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RepairActions counts corrective file operations by action.
	RepairActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mocsync_repair_actions_total",
		Help: "Corrective file operations performed by structural repair",
	}, []string{"action"})

	// RepairFailures counts failed corrective operations by error kind.
	RepairFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mocsync_repair_failures_total",
		Help: "Failed corrective file operations by error kind",
	}, []string{"kind"})

	// LinkChanges counts hub index edits by change type.
	LinkChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mocsync_link_changes_total",
		Help: "Hub index link edits by type (added, removed, normalized, renamed, unlinked)",
	}, []string{"change"})

	// OperationDuration tracks lifecycle operation latency.
	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mocsync_operation_duration_seconds",
		Help:    "Lifecycle operation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	}, []string{"operation"})

	// OperationErrors counts lifecycle operation failures by kind.
	OperationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mocsync_operation_errors_total",
		Help: "Lifecycle operation failures by operation and error kind",
	}, []string{"operation", "kind"})
)

// ObserveOperation records the duration of op since start.
func ObserveOperation(op string, start time.Time) {
	OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
