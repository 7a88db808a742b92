// Package main is the evidence-build process C7 of spec.md §4.7: for every
// accepted match.result it renders the side-by-side comparison artifact,
// tracking per-job progress against match.request.completed's pair count
// the same ready/batch/completion machinery every other fan-out stage uses,
// and emits evidences.generation.completed once the job's pairs are done.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/broker"
	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/config"
	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/database"
	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/logging"
	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/metrics"
	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/service"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/cancellation"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/evidence"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/events"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/idempotency"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/phasemachine"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/progress"
)

func main() {
	cfg := config.Load("evidence")
	log := logging.New(cfg.ServiceName, cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		log.WithField("error", err).Fatal("evidence: connect to postgres")
	}
	defer db.Close()

	if err := database.Migrate(context.Background(), db); err != nil {
		log.WithField("error", err).Fatal("evidence: run migrations")
	}

	m := metrics.New(cfg.ServiceName)
	bus := broker.NewRedisBroker(broker.RedisBrokerConfig{
		Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB,
		MaxRedeliver: cfg.BrokerMaxRedeliver, MinBackoff: cfg.BrokerMinBackoff, MaxBackoff: cfg.BrokerMaxBackoff,
	}, events.NewRegistry(), m, log)
	defer bus.Close()

	store := progress.NewPostgresStore(db)
	ledger := idempotency.NewPostgresLedger(db)
	evidenceStore := evidence.NewPostgresStore(db)
	builder := evidence.NewBuilder(evidenceStore)
	jobs := phasemachine.NewPostgresJobStore(db)
	cancelled := cancellation.NewChecker(jobs)

	coord := evidence.NewCoordinator(bus, store, ledger, builder,
		cfg.CompletionThresholdPercentage, cfg.DefaultWatermarkTTL, m, log, cancelled)

	base := service.NewBase(service.Config{ID: "evidence", Name: "evidence", Version: "dev", DB: db, Logger: log})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	base.AddWorker(func(ctx context.Context) {
		if err := coord.Run(ctx, broker.SubscribeOptions{Prefetch: cfg.BrokerPrefetch}); err != nil {
			log.WithField("error", err).Error("evidence: coordinator run exited")
		}
	})

	if err := base.Start(ctx); err != nil {
		log.WithField("error", err).Fatal("evidence: start")
	}

	httpServer := &http.Server{
		Addr:              cfg.HealthAddr,
		Handler:           base.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("addr", cfg.HealthAddr).Info("evidence: ops surface listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithField("error", err).Fatal("evidence: ops surface failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("evidence: shutting down")
	cancel()
	_ = base.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithField("error", err).Warn("evidence: ops surface shutdown")
	}
}
