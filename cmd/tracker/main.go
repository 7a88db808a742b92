// Package main is the progress tracker process C4/C5 of spec.md §4.4-§4.5:
// one StageCoordinator per fan-out stage (collection and feature
// extraction), folding per-asset ready events and batch totals into
// pkg/progress, plus the watermark sweeper that forces completion when a
// job stalls past its TTL.
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
	"github.com/tudragon154203/product-video-matching-sub000/pkg/coordinator"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/domain"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/events"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/idempotency"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/progress"
)

func main() {
	cfg := config.Load("tracker")
	log := logging.New(cfg.ServiceName, cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		log.WithField("error", err).Fatal("tracker: connect to postgres")
	}
	defer db.Close()

	if err := database.Migrate(context.Background(), db); err != nil {
		log.WithField("error", err).Fatal("tracker: run migrations")
	}

	m := metrics.New(cfg.ServiceName)
	bus := broker.NewRedisBroker(broker.RedisBrokerConfig{
		Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB,
		MaxRedeliver: cfg.BrokerMaxRedeliver, MinBackoff: cfg.BrokerMinBackoff, MaxBackoff: cfg.BrokerMaxBackoff,
	}, events.NewRegistry(), m, log)
	defer bus.Close()

	store := progress.NewPostgresStore(db)
	ledger := idempotency.NewPostgresLedger(db)

	// The evidence stage is owned by cmd/evidence, which attaches its own
	// artifact-building ready hook; this process tracks every other stage.
	stageBus := make(map[domain.Stage]*coordinator.StageCoordinator)
	for _, stageCfg := range coordinator.DefaultStageConfigs() {
		if stageCfg.Stage == domain.StageEvidenceBuild {
			continue
		}
		stageBus[stageCfg.Stage] = coordinator.New(stageCfg, bus, store, ledger,
			cfg.CompletionThresholdPercentage, cfg.DefaultWatermarkTTL, m, log)
	}

	base := service.NewBase(service.Config{ID: "tracker", Name: "tracker", Version: "dev", DB: db, Logger: log})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for stage, sc := range stageBus {
		stage, sc := stage, sc
		base.AddWorker(func(ctx context.Context) {
			if err := sc.Run(ctx, broker.SubscribeOptions{Prefetch: cfg.BrokerPrefetch}); err != nil {
				log.WithField("error", err).WithField("stage", stage).Error("tracker: stage coordinator exited")
			}
		})
	}

	sweeper, err := coordinator.NewSweeper(ctx, cfg.WatermarkSweepInterval, store, stageBus, log)
	if err != nil {
		log.WithField("error", err).Fatal("tracker: schedule watermark sweep")
	}

	if err := base.Start(ctx); err != nil {
		log.WithField("error", err).Fatal("tracker: start")
	}
	sweeper.Start()

	httpServer := &http.Server{
		Addr:              cfg.HealthAddr,
		Handler:           base.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("addr", cfg.HealthAddr).Info("tracker: ops surface listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithField("error", err).Fatal("tracker: ops surface failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("tracker: shutting down")
	cancel()
	sweeper.Stop()
	_ = base.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithField("error", err).Warn("tracker: ops surface shutdown")
	}
}
