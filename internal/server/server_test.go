package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLiveEndpoint(t *testing.T) {
	s := New(Config{Addr: ":0", Version: "test"})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "alive" {
		t.Errorf("body = %q, want alive", rec.Body.String())
	}
}

func TestHealthEndpoint_AllHealthy(t *testing.T) {
	s := New(Config{Addr: ":0", Version: "test"})
	s.RegisterCheck("store", func(context.Context) error { return nil })
	s.RegisterCheck("artifacts", func(context.Context) error { return nil })

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var status HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if status.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", status.Status)
	}
	if status.Checks["store"] != "ok" || status.Checks["artifacts"] != "ok" {
		t.Errorf("Checks = %v", status.Checks)
	}
	if status.Version != "test" {
		t.Errorf("Version = %q, want test", status.Version)
	}
}

func TestHealthEndpoint_FailingCheck(t *testing.T) {
	s := New(Config{Addr: ":0"})
	s.RegisterCheck("store", func(context.Context) error {
		return errors.New("connection refused")
	})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var status HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if status.Status != "unhealthy" {
		t.Errorf("Status = %q, want unhealthy", status.Status)
	}
	if !strings.Contains(status.Checks["store"], "connection refused") {
		t.Errorf("Checks[store] = %q", status.Checks["store"])
	}
}

func TestReadyEndpoint(t *testing.T) {
	s := New(Config{Addr: ":0"})
	s.RegisterCheck("store", func(context.Context) error { return nil })

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	s.RegisterCheck("artifacts", func(context.Context) error {
		return errors.New("bucket unreachable")
	})

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "artifacts check failed") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := New(Config{Addr: ":0"})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
