package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sdclean"

// Standard histogram buckets
var (
	// DurationBuckets: 100ms to 10min for job runs on slow flash
	DurationBuckets = []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600}

	// APIBuckets: 5ms to 5s for HTTP handlers
	APIBuckets = []float64{0.005, 0.025, 0.1, 0.5, 1, 5}
)

// NewCounter creates a counter under the sdclean namespace
func NewCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	})
}

// NewCounterVec creates a labeled counter
func NewCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labels)
}

// NewGaugeVec creates a labeled gauge
func NewGaugeVec(name, help string, labels []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labels)
}

// NewHistogramVec creates a labeled histogram with the given buckets
func NewHistogramVec(name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)
}
