package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// JobHealthy reports whether each job's last run finished cleanly
// (1=healthy, 0=failures or aborted)
var JobHealthy *prometheus.GaugeVec

func initServiceHealthMetrics() {
	JobHealthy = NewGaugeVec(
		"job_healthy",
		"Whether the job's last run finished without failures (1) or not (0).",
		[]string{"job"},
	)
}

func registerServiceHealthMetrics(reg prometheus.Registerer) {
	reg.MustRegister(JobHealthy)
}

// JobStatus is the outcome of a job's most recent run.
type JobStatus struct {
	Healthy  bool      `json:"healthy"`
	LastRun  time.Time `json:"last_run"`
	Failures int       `json:"failures"`
	Error    string    `json:"error,omitempty"`
}

// Health tracks the last run of every job for the /health endpoint.
type Health struct {
	mu        sync.RWMutex
	startTime time.Time
	jobs      map[string]JobStatus
}

func NewHealth() *Health {
	return &Health{
		startTime: time.Now(),
		jobs:      make(map[string]JobStatus),
	}
}

// Record stores the result of a finished run. err is the error that
// aborted the run, if any.
func (h *Health) Record(job string, failures int, err error) {
	st := JobStatus{
		Healthy:  err == nil && failures == 0,
		LastRun:  time.Now(),
		Failures: failures,
	}
	if err != nil {
		st.Error = err.Error()
	}

	h.mu.Lock()
	h.jobs[job] = st
	h.mu.Unlock()

	Init()
	v := 0.0
	if st.Healthy {
		v = 1
	}
	JobHealthy.WithLabelValues(job).Set(v)
}

// IsHealthy is true until some job's last run failed.
func (h *Health) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, st := range h.jobs {
		if !st.Healthy {
			return false
		}
	}
	return true
}

// Snapshot returns a copy of every job's status and the job names sorted.
func (h *Health) Snapshot() (map[string]JobStatus, []string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]JobStatus, len(h.jobs))
	names := make([]string, 0, len(h.jobs))
	for name, st := range h.jobs {
		out[name] = st
		names = append(names, name)
	}
	sort.Strings(names)
	return out, names
}

// Uptime returns how long the tracker has existed.
func (h *Health) Uptime() time.Duration {
	return time.Since(h.startTime)
}
