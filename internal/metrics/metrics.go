package metrics

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var initOnce sync.Once

// Init creates and registers every metric with the default registry.
// Safe to call any number of times.
func Init() {
	initOnce.Do(func() {
		initCleanupMetrics()
		initDaemonMetrics()
		initAPIMetrics()
		initServiceHealthMetrics()

		reg := prometheus.DefaultRegisterer
		registerCleanupMetrics(reg)
		registerDaemonMetrics(reg)
		registerAPIMetrics(reg)
		registerServiceHealthMetrics(reg)
	})
}

// Errors a TriggerFunc returns to shape the HTTP response.
var (
	ErrUnknownJob = errors.New("unknown job")
	ErrBusy       = errors.New("job already queued or running")
)

// TriggerFunc queues a run of the named job. It must not block on the run.
type TriggerFunc func(job string, dryRun bool) error

// DefaultTriggerInterval is the minimum spacing between accepted triggers.
const DefaultTriggerInterval = 5 * time.Second

// Server exposes /metrics, /health and POST /trigger/{job}.
type Server struct {
	addr    string
	trigger TriggerFunc
	health  *Health
	limiter *rate.Limiter
	token   string
	logger  zerolog.Logger

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

func NewServer(addr string, trigger TriggerFunc, health *Health, logger zerolog.Logger) *Server {
	Init()
	if health == nil {
		health = NewHealth()
	}
	return &Server{
		addr:    addr,
		trigger: trigger,
		health:  health,
		limiter: rate.NewLimiter(rate.Every(DefaultTriggerInterval), 1),
		logger:  logger.With().Str("component", "http").Logger(),
	}
}

// SetTriggerLimit replaces the trigger rate limit.
func (s *Server) SetTriggerLimit(every time.Duration, burst int) {
	s.limiter = rate.NewLimiter(rate.Every(every), burst)
}

// SetTriggerToken requires "Authorization: Bearer <token>" on /trigger.
// An empty token leaves the route open.
func (s *Server) SetTriggerToken(token string) { s.token = token }

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(instrument)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/trigger/{job}", s.requireToken(http.HandlerFunc(s.handleTrigger))).Methods(http.MethodPost)
	return r
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		if header == "" {
			http.Error(w, "missing authorization header", http.StatusUnauthorized)
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || scheme != "Bearer" {
			http.Error(w, "invalid authorization format", http.StatusUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.srv = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srv := s.srv
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("metrics server listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("metrics server error")
			IncErrors()
		}
	}()
	return nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	s.srv = nil
	s.listener = nil
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jobs, _ := s.health.Snapshot()
	body := struct {
		Status        string               `json:"status"`
		Healthy       bool                 `json:"healthy"`
		UptimeSeconds int64                `json:"uptime_seconds"`
		Jobs          map[string]JobStatus `json:"jobs"`
	}{
		Status:        "ok",
		Healthy:       s.health.IsHealthy(),
		UptimeSeconds: int64(s.health.Uptime().Seconds()),
		Jobs:          jobs,
	}

	status := http.StatusOK
	if !body.Healthy {
		body.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	job := mux.Vars(r)["job"]

	// Only an explicit dry_run=false runs live.
	dryRun := true
	if v := r.URL.Query().Get("dry_run"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "dry_run must be a boolean", http.StatusBadRequest)
			return
		}
		dryRun = b
	}

	if !s.limiter.Allow() {
		http.Error(w, "too many triggers", http.StatusTooManyRequests)
		return
	}
	if s.trigger == nil {
		http.Error(w, "triggering not enabled", http.StatusServiceUnavailable)
		return
	}

	if err := s.trigger(job, dryRun); err != nil {
		switch {
		case errors.Is(err, ErrUnknownJob):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, ErrBusy):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			s.logger.Error().Err(err).Str("job", job).Msg("trigger failed")
			http.Error(w, "trigger failed", http.StatusInternalServerError)
		}
		return
	}

	s.logger.Info().Str("job", job).Bool("dry_run", dryRun).Msg("job triggered over http")
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job":     job,
		"dry_run": dryRun,
		"status":  "accepted",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
