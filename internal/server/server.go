// Package server provides the management HTTP server: Prometheus metrics
// plus health, readiness, and liveness endpoints backed by registered
// dependency probes.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checker probes one dependency (durable store, artifact store).
type Checker func(ctx context.Context) error

// HealthStatus is the health endpoint response body.
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version,omitempty"`
	Uptime    string            `json:"uptime,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Server serves the management endpoints.
type Server struct {
	mu        sync.RWMutex
	server    *http.Server
	mux       *http.ServeMux
	checkers  map[string]Checker
	startTime time.Time
	version   string
}

// Config holds management server configuration.
type Config struct {
	// Addr is the address to listen on (e.g., ":9090")
	Addr string

	// Version is the application version
	Version string
}

// New creates a management server.
func New(cfg Config) *Server {
	s := &Server{
		mux:       http.NewServeMux(),
		checkers:  make(map[string]Checker),
		startTime: time.Now(),
		version:   cfg.Version,
	}

	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/health", s.healthHandler)
	s.mux.HandleFunc("/ready", s.readyHandler)
	s.mux.HandleFunc("/live", s.liveHandler)

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// RegisterCheck registers a named dependency probe.
func (s *Server) RegisterCheck(name string, checker Checker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkers[name] = checker
}

// Start starts the management server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) runChecks(ctx context.Context) (map[string]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	results := make(map[string]string, len(s.checkers))
	healthy := true
	for name, checker := range s.checkers {
		if err := checker(ctx); err != nil {
			results[name] = err.Error()
			healthy = false
		} else {
			results[name] = "ok"
		}
	}
	return results, healthy
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	checks, healthy := s.runChecks(r.Context())

	status := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   s.version,
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Checks:    checks,
	}

	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		status.Status = "unhealthy"
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	if err := json.NewEncoder(w).Encode(status); err != nil {
		http.Error(w, "Failed to encode status", http.StatusInternalServerError)
	}
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	checks, healthy := s.runChecks(r.Context())
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		for name, result := range checks {
			if result != "ok" {
				_, _ = fmt.Fprintf(w, "not ready: %s check failed\n", name)
			}
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) liveHandler(w http.ResponseWriter, _ *http.Request) {
	// If we can respond, we're alive.
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("alive"))
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}
