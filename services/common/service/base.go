// Package service provides the common service base: a router, background workers
// and the standard health and info endpoints.
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/vault_portal/internal/logging"
)

const healthCheckTimeout = 5 * time.Second

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// BaseConfig contains shared service configuration.
type BaseConfig struct {
	ID      string
	Name    string
	Version string
	Logger  *logging.Logger
}

// BaseService owns the router, background workers and health state of a service.
//   - Stop is idempotent.
//   - The hydrate hook runs once during Start, before workers launch.
//   - Critical checks make the service unhealthy; other checks only degrade it.
type BaseService struct {
	id      string
	name    string
	version string
	logger  *logging.Logger
	router  *mux.Router

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	hydrate func(context.Context) error
	statsFn func() map[string]any
	workers []func(context.Context)

	healthMu        sync.RWMutex
	checks          map[string]HealthCheck
	critical        map[string]bool
	results         map[string]string
	lastHealthCheck time.Time
	startTime       time.Time
}

// NewBase constructs a BaseService.
func NewBase(cfg BaseConfig) *BaseService {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &BaseService{
		id:       cfg.ID,
		name:     cfg.Name,
		version:  cfg.Version,
		logger:   logger,
		router:   mux.NewRouter(),
		stopCh:   make(chan struct{}),
		checks:   make(map[string]HealthCheck),
		critical: make(map[string]bool),
		results:  make(map[string]string),
	}
}

func (b *BaseService) ID() string              { return b.id }
func (b *BaseService) Name() string            { return b.name }
func (b *BaseService) Version() string         { return b.version }
func (b *BaseService) Router() *mux.Router     { return b.router }
func (b *BaseService) Logger() *logging.Logger { return b.logger }

// WithHydrate sets a hook executed once during Start, before workers launch.
func (b *BaseService) WithHydrate(fn func(context.Context) error) *BaseService {
	b.hydrate = fn
	return b
}

// WithStats sets the statistics provider for /info.
func (b *BaseService) WithStats(fn func() map[string]any) *BaseService {
	b.statsFn = fn
	return b
}

// WithHealthCheck registers a named dependency probe.
func (b *BaseService) WithHealthCheck(name string, critical bool, check HealthCheck) *BaseService {
	b.healthMu.Lock()
	defer b.healthMu.Unlock()
	b.checks[name] = check
	b.critical[name] = critical
	return b
}

// AddWorker registers a background worker started after hydrate completes.
// Workers must return when ctx is done or StopChan is closed.
func (b *BaseService) AddWorker(fn func(context.Context)) *BaseService {
	b.workers = append(b.workers, fn)
	return b
}

// AddTickerWorker registers fn to run every interval until the service stops.
func (b *BaseService) AddTickerWorker(name string, interval time.Duration, fn func(context.Context) error) *BaseService {
	worker := func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			case <-ticker.C:
				if err := fn(ctx); err != nil {
					b.logger.WithError(err).WithField("worker", name).Warn("worker run failed")
				}
			}
		}
	}
	b.workers = append(b.workers, worker)
	return b
}

// StopChan exposes the stop channel for worker goroutines.
func (b *BaseService) StopChan() <-chan struct{} {
	return b.stopCh
}

// Start runs hydrate once, then launches the workers.
func (b *BaseService) Start(ctx context.Context) error {
	b.healthMu.Lock()
	if b.startTime.IsZero() {
		b.startTime = time.Now()
	}
	b.healthMu.Unlock()

	if b.hydrate != nil {
		if err := b.hydrate(ctx); err != nil {
			return fmt.Errorf("hydrate: %w", err)
		}
	}

	for _, w := range b.workers {
		worker := w
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			worker(ctx)
		}()
	}
	b.logger.WithField("workers", len(b.workers)).Info("service started")
	return nil
}

// Stop signals workers and waits for them to return.
func (b *BaseService) Stop() error {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	b.wg.Wait()
	return nil
}

// WorkerCount returns the number of registered workers.
func (b *BaseService) WorkerCount() int {
	return len(b.workers)
}

// CheckHealth runs every registered probe and caches the results.
func (b *BaseService) CheckHealth(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	b.healthMu.RLock()
	checks := make(map[string]HealthCheck, len(b.checks))
	for name, check := range b.checks {
		checks[name] = check
	}
	b.healthMu.RUnlock()

	results := make(map[string]string, len(checks))
	for name, check := range checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	b.healthMu.Lock()
	b.results = results
	b.lastHealthCheck = time.Now()
	b.healthMu.Unlock()
}

// HealthStatus probes dependencies and returns healthy, degraded or unhealthy.
func (b *BaseService) HealthStatus(ctx context.Context) string {
	b.CheckHealth(ctx)
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()
	return b.healthStatusLocked()
}

// HealthDetails returns the most recent probe results.
func (b *BaseService) HealthDetails() map[string]any {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()

	names := make([]string, 0, len(b.results))
	for name := range b.results {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	for _, name := range names {
		checks[name] = b.results[name]
	}

	details := map[string]any{"checks": checks}
	if !b.lastHealthCheck.IsZero() {
		details["last_check"] = b.lastHealthCheck.Format(time.RFC3339)
	} else {
		details["last_check"] = ""
	}

	uptime := time.Duration(0)
	if !b.startTime.IsZero() {
		uptime = time.Since(b.startTime)
	}
	details["uptime"] = uptime.String()
	return details
}

func (b *BaseService) healthStatusLocked() string {
	status := "healthy"
	for name, result := range b.results {
		if result == "ok" {
			continue
		}
		if b.critical[name] {
			return "unhealthy"
		}
		status = "degraded"
	}
	return status
}
