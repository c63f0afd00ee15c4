// Package metrics provides Prometheus metrics for the backup retrieval tool.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunAttempts tracks complete runs by outcome.
	RunAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arr_backup_runs_total",
		Help: "Total number of backup retrieval runs",
	}, []string{"status"})

	// APIRequests tracks calls against the server API.
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arr_backup_api_requests_total",
		Help: "Total number of API requests",
	}, []string{"operation", "status"})

	// PhaseDuration tracks how long each phase of a run takes.
	PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arr_backup_phase_duration_seconds",
		Help:    "Duration of run phases in seconds",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4min
	}, []string{"phase"})

	// BackupsTriggered counts trigger calls issued by the acquisition loop.
	BackupsTriggered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arr_backup_triggered_total",
		Help: "Total number of manual backups triggered",
	})

	// BackupsReused counts runs that reused an existing fresh backup.
	BackupsReused = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arr_backup_reused_total",
		Help: "Total number of runs that reused an existing backup",
	})

	// PollAttempts counts list calls made while waiting for a new backup.
	PollAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arr_backup_poll_attempts_total",
		Help: "Total number of polls while waiting for a backup",
	})

	// ExtractedFiles counts files written by the extractor.
	ExtractedFiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arr_backup_extracted_files_total",
		Help: "Total number of files extracted from backup archives",
	})

	// ExtractedBytes counts bytes written by the extractor.
	ExtractedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arr_backup_extracted_bytes_total",
		Help: "Total number of bytes extracted from backup archives",
	})

	// StorageOperations tracks offsite storage operations.
	StorageOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arr_backup_storage_operations_total",
		Help: "Total number of offsite storage operations",
	}, []string{"operation", "provider", "status"})

	// OffsiteDeleted counts offsite copies removed by retention.
	OffsiteDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arr_backup_offsite_deleted_total",
		Help: "Total number of offsite copies deleted by retention",
	})

	// LastSuccessTimestamp is when the last run succeeded.
	LastSuccessTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arr_backup_last_success_timestamp",
		Help: "Unix timestamp of the last successful run",
	})

	// LastBackupAge is the age of the backup the last run resolved.
	LastBackupAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arr_backup_last_backup_age_seconds",
		Help: "Age of the resolved backup when it was selected",
	})

	// Info provides static information about the tool.
	Info = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arr_backup_info",
		Help: "Information about the backup retrieval tool",
	}, []string{"version", "storage_provider"})
)

func status(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordRun records a run with its status.
func RecordRun(success bool) {
	RunAttempts.WithLabelValues(status(success)).Inc()
}

// RecordAPIRequest records an API request outcome.
func RecordAPIRequest(operation, outcome string) {
	APIRequests.WithLabelValues(operation, outcome).Inc()
}

// RecordStorageOperation records an offsite storage operation.
func RecordStorageOperation(operation, provider string, success bool) {
	StorageOperations.WithLabelValues(operation, provider, status(success)).Inc()
}
