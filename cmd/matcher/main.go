// Package main is the matcher process C6 of spec.md §4.6: retrieval,
// scoring, geometric verification and acceptance gating for one
// match.request at a time, publishing match.result per accepted pair and
// match.request.completed once every pair has been scored.
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
	"github.com/tudragon154203/product-video-matching-sub000/pkg/events"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/idempotency"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/matching"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/phasemachine"
)

const matchRequestTopic = "match.request"

func main() {
	cfg := config.Load("matcher")
	log := logging.New(cfg.ServiceName, cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		log.WithField("error", err).Fatal("matcher: connect to postgres")
	}
	defer db.Close()

	if err := database.Migrate(context.Background(), db); err != nil {
		log.WithField("error", err).Fatal("matcher: run migrations")
	}

	m := metrics.New(cfg.ServiceName)
	bus := broker.NewRedisBroker(broker.RedisBrokerConfig{
		Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB,
		MaxRedeliver: cfg.BrokerMaxRedeliver, MinBackoff: cfg.BrokerMinBackoff, MaxBackoff: cfg.BrokerMaxBackoff,
	}, events.NewRegistry(), m, log)
	defer bus.Close()

	assets := matching.NewPostgresAssetStore(db)
	keypoints := matching.NewFileKeypointLoader(cfg.KeypointBlobRoot)
	matches := matching.NewPostgresMatchStore(db)
	ledger := idempotency.NewPostgresLedger(db)
	jobs := phasemachine.NewPostgresJobStore(db)
	cancelled := cancellation.NewChecker(jobs)

	thresholds := matching.Thresholds{
		SimDeepMin:      cfg.SimDeepMin,
		InliersMin:      cfg.InliersMin,
		MatchBestMin:    cfg.MatchBestMin,
		MatchConsMin:    cfg.MatchConsMin,
		MatchAccept:     cfg.MatchAccept,
		WeightRGB:       cfg.WeightRGB,
		WeightGray:      cfg.WeightGray,
		WeightDeep:      cfg.WeightDeep,
		WeightGeometric: cfg.WeightGeometric,
		TopK:            cfg.RetrievalTopK,
	}
	timeouts := matching.Timeouts{
		Geometric:    cfg.GeometricTimeout,
		VectorSearch: cfg.VectorSearchTimeout,
		Storage:      cfg.StorageTimeout,
	}
	engine := matching.NewEngine(assets, keypoints, matches, ledger, bus, m, log, cancelled, thresholds, timeouts)

	base := service.NewBase(service.Config{ID: "matcher", Name: "matcher", Version: "dev", DB: db, Logger: log})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	base.AddWorker(func(ctx context.Context) {
		opts := broker.SubscribeOptions{GroupName: "matcher", Prefetch: cfg.BrokerPrefetch}
		if err := bus.Subscribe(ctx, matchRequestTopic, opts, engine.ProcessMatchRequest); err != nil {
			log.WithField("error", err).Error("matcher: subscription exited")
		}
	})

	if err := base.Start(ctx); err != nil {
		log.WithField("error", err).Fatal("matcher: start")
	}

	httpServer := &http.Server{
		Addr:              cfg.HealthAddr,
		Handler:           base.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("addr", cfg.HealthAddr).Info("matcher: ops surface listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithField("error", err).Fatal("matcher: ops surface failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("matcher: shutting down")
	cancel()
	_ = base.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithField("error", err).Warn("matcher: ops surface shutdown")
	}
}
