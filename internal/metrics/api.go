package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTP subsystem metrics
var (
	// HTTPRequestDuration tracks handler latency
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestsTotal tracks requests by route, method and status
	HTTPRequestsTotal *prometheus.CounterVec
)

func initAPIMetrics() {
	HTTPRequestDuration = NewHistogramVec(
		"http_request_duration_seconds",
		"HTTP request duration in seconds.",
		APIBuckets,
		[]string{"handler", "method", "status"},
	)

	HTTPRequestsTotal = NewCounterVec(
		"http_requests_total",
		"HTTP requests served.",
		[]string{"handler", "method", "status"},
	)
}

func registerAPIMetrics(reg prometheus.Registerer) {
	reg.MustRegister(HTTPRequestDuration, HTTPRequestsTotal)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument is router middleware recording per-route request metrics.
// Routes are labelled by template, so /trigger/{job} stays one series.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		handler := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				handler = tpl
			}
		}
		status := strconv.Itoa(rec.status)
		HTTPRequestDuration.WithLabelValues(handler, r.Method, status).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(handler, r.Method, status).Inc()
	})
}
