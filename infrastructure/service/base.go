// Package service provides the worker lifecycle every cmd/ process (C4-C8)
// shares: background worker management, stop-channel handling, and a
// health/readiness/metrics HTTP surface. Adapted from the teacher's
// infrastructure/service.BaseService, dropping its marble/enclave and
// Supabase-secret concerns - this domain has no SGX enclave and no
// per-secret readiness gate, only a Postgres connection and a broker.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/logging"
)

const healthCheckTimeout = 5 * time.Second

// Pinger is satisfied by *sql.DB and any broker implementation exposing a
// liveness probe; BaseService treats a nil Pinger as "always healthy" so
// services without a DB dependency (none currently, but kept for symmetry
// with the teacher's optional-DB BaseConfig) don't need a stub.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Config carries the fixed identity and dependencies every worker process
// shares.
type Config struct {
	ID      string
	Name    string
	Version string
	DB      Pinger
	Logger  *logging.Logger
}

// BaseService wraps the common worker lifecycle: hydrate-then-run-workers
// on Start, idempotent Stop, and cached health state refreshed on demand.
type BaseService struct {
	id, name, version string
	db                Pinger
	logger            *logging.Logger

	stopCh   chan struct{}
	stopOnce sync.Once

	hydrate func(context.Context) error
	workers []func(context.Context)

	healthMu        sync.RWMutex
	dbHealthy       bool
	lastHealthCheck time.Time
	startTime       time.Time
}

// NewBase constructs a BaseService from cfg.
func NewBase(cfg Config) *BaseService {
	logger := cfg.Logger
	if logger == nil {
		name := cfg.ID
		if name == "" {
			name = "service"
		}
		logger = logging.NewFromEnv(name)
	}
	return &BaseService{
		id: cfg.ID, name: cfg.Name, version: cfg.Version,
		db: cfg.DB, logger: logger,
		stopCh:    make(chan struct{}),
		dbHealthy: cfg.DB == nil,
	}
}

// ID, Name, Version identify the service for the ops surface.
func (b *BaseService) ID() string      { return b.id }
func (b *BaseService) Name() string    { return b.name }
func (b *BaseService) Version() string { return b.version }

// Logger returns the service's structured logger.
func (b *BaseService) Logger() *logging.Logger { return b.logger }

// WithHydrate sets an optional hook run once, after Start but before
// workers launch - e.g. loading in-flight watermark rows back into memory.
func (b *BaseService) WithHydrate(fn func(context.Context) error) *BaseService {
	b.hydrate = fn
	return b
}

// AddWorker registers a background worker started after hydrate completes.
// The worker must respect ctx cancellation and StopChan().
func (b *BaseService) AddWorker(fn func(context.Context)) *BaseService {
	b.workers = append(b.workers, fn)
	return b
}

type tickerWorkerConfig struct {
	name           string
	runImmediately bool
}

// TickerWorkerOption configures AddTickerWorker.
type TickerWorkerOption func(*tickerWorkerConfig)

// WithTickerWorkerName names the worker in error logs.
func WithTickerWorkerName(name string) TickerWorkerOption {
	return func(cfg *tickerWorkerConfig) { cfg.name = name }
}

// WithTickerWorkerImmediate runs the worker once immediately before the
// first tick, so the first run does not wait a full interval.
func WithTickerWorkerImmediate() TickerWorkerOption {
	return func(cfg *tickerWorkerConfig) { cfg.runImmediately = true }
}

// AddTickerWorker registers a periodic background worker. (The watermark
// sweep does not use it; it runs on robfig/cron via coordinator.NewSweeper.)
func (b *BaseService) AddTickerWorker(interval time.Duration, fn func(context.Context) error, opts ...TickerWorkerOption) *BaseService {
	cfg := tickerWorkerConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	worker := func(ctx context.Context) {
		logErr := func(err error) {
			if err == nil {
				return
			}
			entry := b.logger.WithContext(ctx)
			if cfg.name != "" {
				entry = entry.WithField("worker", cfg.name)
			}
			entry.Warn("worker error")
		}

		if cfg.runImmediately {
			select {
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			default:
			}
			logErr(fn(ctx))
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			case <-ticker.C:
				logErr(fn(ctx))
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

// Start runs hydrate (if set) then launches every registered worker in its
// own goroutine.
func (b *BaseService) Start(ctx context.Context) error {
	b.healthMu.Lock()
	if b.startTime.IsZero() {
		b.startTime = time.Now()
	}
	b.healthMu.Unlock()

	if b.hydrate != nil {
		if err := b.hydrate(ctx); err != nil {
			return err
		}
	}

	for _, w := range b.workers {
		worker := w
		go worker(ctx)
	}
	return nil
}

// Stop signals every worker to return. Idempotent.
func (b *BaseService) Stop() error {
	b.stopOnce.Do(func() { close(b.stopCh) })
	return nil
}

// WorkerCount reports how many background workers are registered.
func (b *BaseService) WorkerCount() int { return len(b.workers) }

// CheckHealth refreshes the cached DB-liveness state.
func (b *BaseService) CheckHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	healthy := true
	if b.db != nil {
		if err := b.db.PingContext(ctx); err != nil {
			healthy = false
		}
	}

	b.healthMu.Lock()
	b.dbHealthy = healthy
	b.lastHealthCheck = time.Now()
	b.healthMu.Unlock()
}

// HealthStatus returns "healthy" or "unhealthy" after refreshing state.
func (b *BaseService) HealthStatus() string {
	b.CheckHealth()
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()
	if !b.dbHealthy {
		return "unhealthy"
	}
	return "healthy"
}

// HealthDetails describes the most recent health check.
func (b *BaseService) HealthDetails() map[string]any {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()

	details := map[string]any{"db_connected": b.dbHealthy}
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

// HealthChecker is satisfied by BaseService; split out so route handlers
// can be unit tested against a fake.
type HealthChecker interface {
	HealthStatus() string
	HealthDetails() map[string]any
}

var _ HealthChecker = (*BaseService)(nil)
