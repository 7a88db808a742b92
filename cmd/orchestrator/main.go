// Package main is the phase transition manager process C8: it owns the
// jobs table, consumes the eight job-level completion events, and advances
// each job's phase barrier. It exposes pkg/phasemachine.JobService for the
// out-of-scope HTTP API layer to call into, and an ops surface
// (/healthz, /readyz, /metrics) the way every teacher marble service does.
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
	"github.com/tudragon154203/product-video-matching-sub000/pkg/events"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/phasemachine"
)

func main() {
	cfg := config.Load("orchestrator")
	log := logging.New(cfg.ServiceName, cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		log.WithField("error", err).Fatal("orchestrator: connect to postgres")
	}
	defer db.Close()

	if err := database.Migrate(context.Background(), db); err != nil {
		log.WithField("error", err).Fatal("orchestrator: run migrations")
	}

	m := metrics.New(cfg.ServiceName)
	bus := broker.NewRedisBroker(broker.RedisBrokerConfig{
		Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB,
		MaxRedeliver: cfg.BrokerMaxRedeliver, MinBackoff: cfg.BrokerMinBackoff, MaxBackoff: cfg.BrokerMaxBackoff,
	}, events.NewRegistry(), m, log)
	defer bus.Close()

	jobs := phasemachine.NewPostgresJobStore(db)
	phaseEvents := phasemachine.NewPostgresPhaseEventStore(db)
	mgr := phasemachine.NewManager(jobs, phaseEvents, bus, m, log, cfg.RetrievalTopK)

	base := service.NewBase(service.Config{ID: "orchestrator", Name: "orchestrator", Version: "dev", DB: db, Logger: log})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	base.AddWorker(func(ctx context.Context) {
		if err := mgr.Run(ctx, bus, broker.SubscribeOptions{Prefetch: cfg.BrokerPrefetch}); err != nil {
			log.WithField("error", err).Error("orchestrator: manager run exited")
		}
	})

	if err := base.Start(ctx); err != nil {
		log.WithField("error", err).Fatal("orchestrator: start")
	}

	httpServer := &http.Server{
		Addr:              cfg.HealthAddr,
		Handler:           base.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("addr", cfg.HealthAddr).Info("orchestrator: ops surface listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithField("error", err).Fatal("orchestrator: ops surface failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("orchestrator: shutting down")
	cancel()
	_ = base.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithField("error", err).Warn("orchestrator: ops surface shutdown")
	}
}
