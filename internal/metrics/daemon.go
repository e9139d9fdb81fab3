package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Process-level metrics
var (
	// ErrorsTotal tracks errors outside of individual entries (config, server)
	ErrorsTotal prometheus.Counter

	// RootFreeBytes tracks free space on the filesystem holding each root
	RootFreeBytes *prometheus.GaugeVec

	// RootTotalBytes tracks capacity of the filesystem holding each root
	RootTotalBytes *prometheus.GaugeVec
)

func initDaemonMetrics() {
	ErrorsTotal = NewCounter(
		"errors_total",
		"Errors encountered outside of per-entry handling.",
	)

	RootFreeBytes = NewGaugeVec(
		"root_free_bytes",
		"Free space on the filesystem containing the scope root.",
		[]string{"root"},
	)

	RootTotalBytes = NewGaugeVec(
		"root_total_bytes",
		"Capacity of the filesystem containing the scope root.",
		[]string{"root"},
	)
}

func registerDaemonMetrics(reg prometheus.Registerer) {
	reg.MustRegister(ErrorsTotal, RootFreeBytes, RootTotalBytes)
}

// UpdateRootUsage records a free-space sample for a root
func UpdateRootUsage(root string, free, total uint64) {
	Init()
	RootFreeBytes.WithLabelValues(root).Set(float64(free))
	RootTotalBytes.WithLabelValues(root).Set(float64(total))
}

// IncErrors counts one process-level error
func IncErrors() {
	Init()
	ErrorsTotal.Inc()
}
