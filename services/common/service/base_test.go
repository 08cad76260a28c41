package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestBaseService_Lifecycle(t *testing.T) {
	b := NewBase(BaseConfig{ID: "portal", Name: "portal", Version: "test"})

	var hydrated bool
	var runs atomic.Int32
	b.WithHydrate(func(context.Context) error {
		hydrated = true
		return nil
	}).AddTickerWorker("tick", 5*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return nil
	})

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !hydrated {
		t.Fatal("hydrate not called")
	}

	deadline := time.Now().Add(time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if runs.Load() == 0 {
		t.Fatal("ticker worker never ran")
	}

	if err := b.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := b.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
}

func TestBaseService_HydrateError(t *testing.T) {
	b := NewBase(BaseConfig{Name: "portal"}).WithHydrate(func(context.Context) error {
		return errors.New("boom")
	})
	if err := b.Start(context.Background()); err == nil {
		t.Fatal("expected hydrate error")
	}
}

func TestHealthStatus(t *testing.T) {
	tests := []struct {
		name     string
		critical bool
		err      error
		want     string
	}{
		{"all ok", true, nil, "healthy"},
		{"optional down", false, errors.New("redis down"), "degraded"},
		{"critical down", true, errors.New("rpc down"), "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBase(BaseConfig{Name: "portal"})
			b.WithHealthCheck("dep", tt.critical, func(context.Context) error { return tt.err })
			if got := b.HealthStatus(context.Background()); got != tt.want {
				t.Fatalf("HealthStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStandardRoutes(t *testing.T) {
	b := NewBase(BaseConfig{Name: "portal", Version: "1.2.3"})
	b.WithStats(func() map[string]any { return map[string]any{"vaults": 3} })
	b.WithHealthCheck("chain", true, func(context.Context) error { return errors.New("unreachable") })
	b.RegisterStandardRoutes()

	rec := httptest.NewRecorder()
	b.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("/health status = %d", rec.Code)
	}
	var health HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "unhealthy" || health.Version != "1.2.3" {
		t.Fatalf("health = %+v", health)
	}

	rec = httptest.NewRecorder()
	b.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/info", nil))
	var info InfoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info.Statistics["vaults"] != float64(3) {
		t.Fatalf("info = %+v", info)
	}
}
