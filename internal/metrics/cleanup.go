package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cleanup subsystem metrics
var (
	// EntriesTotal counts entries per job and action (preview, delete, fail)
	EntriesTotal *prometheus.CounterVec

	// BytesTotal counts bytes previewed or freed per job and action
	BytesTotal *prometheus.CounterVec

	// FailuresTotal counts entries that could not be deleted
	FailuresTotal *prometheus.CounterVec

	// ReadErrorsTotal counts directories the walker could not read
	ReadErrorsTotal *prometheus.CounterVec

	// RejectsTotal counts rejected candidates by reason, including guard and
	// veto rejections
	RejectsTotal *prometheus.CounterVec

	// RunDuration tracks how long each job run takes
	RunDuration *prometheus.HistogramVec

	// LastRunTimestamp records the Unix time each job last finished
	LastRunTimestamp *prometheus.GaugeVec
)

func initCleanupMetrics() {
	EntriesTotal = NewCounterVec(
		"entries_total",
		"Entries handled by cleanup jobs.",
		[]string{"job", "action"},
	)

	BytesTotal = NewCounterVec(
		"bytes_total",
		"Bytes previewed or freed by cleanup jobs.",
		[]string{"job", "action"},
	)

	FailuresTotal = NewCounterVec(
		"delete_failures_total",
		"Entries that could not be deleted.",
		[]string{"job"},
	)

	ReadErrorsTotal = NewCounterVec(
		"read_errors_total",
		"Directories or entries that could not be read during a walk.",
		[]string{"job"},
	)

	RejectsTotal = NewCounterVec(
		"rejects_total",
		"Candidates rejected by the decision engine.",
		[]string{"job", "reason"},
	)

	RunDuration = NewHistogramVec(
		"run_duration_seconds",
		"Duration of cleanup job runs in seconds.",
		DurationBuckets,
		[]string{"job", "mode"},
	)

	LastRunTimestamp = NewGaugeVec(
		"last_run_timestamp_seconds",
		"Unix time the job last finished.",
		[]string{"job"},
	)
}

func registerCleanupMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		EntriesTotal,
		BytesTotal,
		FailuresTotal,
		ReadErrorsTotal,
		RejectsTotal,
		RunDuration,
		LastRunTimestamp,
	)
}

// RecordEntry counts one previewed, deleted or failed entry
func RecordEntry(job, action string, bytes int64) {
	Init()
	EntriesTotal.WithLabelValues(job, action).Inc()
	if bytes > 0 {
		BytesTotal.WithLabelValues(job, action).Add(float64(bytes))
	}
	if action == "fail" {
		FailuresTotal.WithLabelValues(job).Inc()
	}
}

// RecordReject counts one rejected candidate
func RecordReject(job, reason string) {
	Init()
	RejectsTotal.WithLabelValues(job, reason).Inc()
}

// RecordReadError counts one unreadable entry
func RecordReadError(job string) {
	Init()
	ReadErrorsTotal.WithLabelValues(job).Inc()
}

// RecordRun observes a finished run
func RecordRun(job string, dryRun bool, d time.Duration) {
	Init()
	mode := "live"
	if dryRun {
		mode = "dry_run"
	}
	RunDuration.WithLabelValues(job, mode).Observe(d.Seconds())
	LastRunTimestamp.WithLabelValues(job).Set(float64(time.Now().Unix()))
}
