// Package metrics holds the engine's Prometheus collectors on a private
// registry. A nil *Metrics is valid and records nothing, so callers never
// need to check before recording.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sift"

// Metrics is one set of engine collectors.
type Metrics struct {
	reg *prometheus.Registry

	// sessionsStarted counts started sessions.
	// Labels: workflow_type
	sessionsStarted *prometheus.CounterVec

	// progressReports counts progress reports.
	// Labels: action (next action type returned), status (reported item status)
	progressReports *prometheus.CounterVec

	// filesCompleted counts files that reached completed.
	// Labels: workflow_type
	filesCompleted *prometheus.CounterVec

	// batchOperations counts batch calls.
	// Labels: operation, outcome (preview, executed, rejected)
	batchOperations *prometheus.CounterVec

	// instancesChanged counts pattern instances mutated by batch execution.
	// Labels: operation
	instancesChanged *prometheus.CounterVec

	// scanDuration measures the autonomous pattern scan.
	// Labels: workflow_type, timed_out
	scanDuration *prometheus.HistogramVec

	// persistFailures counts session writes that failed after the in-memory update.
	persistFailures prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		sessionsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "started_total",
			Help:      "Sessions started by workflow type",
		}, []string{"workflow_type"}),
		progressReports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "progress_reports_total",
			Help:      "Progress reports by resulting next action and reported status",
		}, []string{"action", "status"}),
		filesCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "files_completed_total",
			Help:      "Files that reached completed",
		}, []string{"workflow_type"}),
		batchOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "operations_total",
			Help:      "Batch operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		instancesChanged: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "instances_changed_total",
			Help:      "Pattern instances changed by executed batch operations",
		}, []string{"operation"}),
		scanDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "Autonomous pattern scan duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"workflow_type", "timed_out"}),
		persistFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "persist_failures_total",
			Help:      "Session writes that failed after the in-memory update",
		}),
	}
}

// Registry returns the private registry, or nil for a nil receiver.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// RecordSessionStarted counts a new session.
func (m *Metrics) RecordSessionStarted(workflowType string) {
	if m == nil {
		return
	}
	m.sessionsStarted.WithLabelValues(workflowType).Inc()
}

// RecordProgress counts a progress report.
func (m *Metrics) RecordProgress(action, status string) {
	if m == nil {
		return
	}
	m.progressReports.WithLabelValues(action, status).Inc()
}

// RecordFileCompleted counts a file transition to completed.
func (m *Metrics) RecordFileCompleted(workflowType string) {
	if m == nil {
		return
	}
	m.filesCompleted.WithLabelValues(workflowType).Inc()
}

// RecordBatch counts a batch call and, for executions, the changed instances.
func (m *Metrics) RecordBatch(operation, outcome string, changed int) {
	if m == nil {
		return
	}
	m.batchOperations.WithLabelValues(operation, outcome).Inc()
	if changed > 0 {
		m.instancesChanged.WithLabelValues(operation).Add(float64(changed))
	}
}

// RecordScan observes one scan.
func (m *Metrics) RecordScan(workflowType string, d time.Duration, timedOut bool) {
	if m == nil {
		return
	}
	to := "false"
	if timedOut {
		to = "true"
	}
	m.scanDuration.WithLabelValues(workflowType, to).Observe(d.Seconds())
}

// RecordPersistFailure counts a failed session write.
func (m *Metrics) RecordPersistFailure() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

// WriteTextfile writes the registry in text exposition format to path, for
// the node exporter textfile collector. A nil receiver or empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.reg)
}
