// Package integrationsim replays spec.md §8's end-to-end scenarios (S1-S6)
// across the full C4-C8 pipeline wired over broker.MemoryBroker, without a
// live Postgres or Redis, grounded on the teacher's dispatcher_test.go /
// router_test.go style of driving a dispatcher end-to-end with fake
// handlers and in-memory stores instead of live transports.
package integrationsim

import (
	"context"
	"testing"
	"time"

	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/broker"
	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/logging"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/cancellation"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/coordinator"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/domain"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/events"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/evidence"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/idempotency"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/matching"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/phasemachine"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/progress"
)

const thresholdPct = 90

// harness wires one full pipeline instance: the phase transition manager,
// every coordinator.StageCoordinator but the evidence one, the matching
// engine, and the evidence coordinator, all sharing one MemoryBroker and
// one in-memory job store so the cancellation guard can see job state
// across packages exactly as the real processes do over Postgres.
type harness struct {
	t   *testing.T
	bus *broker.MemoryBroker

	jobs *phasemachine.MemoryJobStore
	mgr  *phasemachine.Manager

	assets  *matching.MemoryAssetStore
	matches *matching.MemoryMatchStore

	evidenceStore *evidence.MemoryStore

	stages map[domain.Stage]*coordinator.StageCoordinator

	cancel context.CancelFunc
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	log := logging.New("integrationsim", "error", "text")
	registry := events.NewRegistry()
	bus := broker.NewMemoryBroker(registry, 5)

	jobs := phasemachine.NewMemoryJobStore()
	phaseEvents := phasemachine.NewMemoryPhaseEventStore()
	mgr := phasemachine.NewManager(jobs, phaseEvents, bus, nil, log, 20)

	cancelled := cancellation.NewChecker(jobs)

	store := progress.NewMemoryStore()
	ledger := idempotency.NewMemoryLedger()

	stages := make(map[domain.Stage]*coordinator.StageCoordinator)
	for _, cfg := range coordinator.DefaultStageConfigs() {
		if cfg.Stage == domain.StageEvidenceBuild {
			continue
		}
		stages[cfg.Stage] = coordinator.New(cfg, bus, store, ledger, thresholdPct, 10*time.Minute, nil, log,
			coordinator.WithCancellationChecker(cancelled))
	}

	assets := matching.NewMemoryAssetStore()
	matches := matching.NewMemoryMatchStore()
	keypoints := matching.NewMemoryKeypointLoader(nil)
	matchLedger := idempotency.NewMemoryLedger()
	engine := matching.NewEngine(assets, keypoints, matches, matchLedger, bus, nil, log, cancelled, matching.DefaultThresholds(), matching.DefaultTimeouts())

	evidenceStore := evidence.NewMemoryStore()
	builder := evidence.NewBuilder(evidenceStore)
	evidenceCoord := evidence.NewCoordinator(bus, store, ledger, builder, thresholdPct, 10*time.Minute, nil, log, cancelled)
	stages[domain.StageEvidenceBuild] = evidenceCoord

	ctx, cancel := context.WithCancel(context.Background())

	go func() { _ = mgr.Run(ctx, bus, broker.SubscribeOptions{}) }()
	for _, sc := range stages {
		sc := sc
		go func() { _ = sc.Run(ctx, broker.SubscribeOptions{}) }()
	}
	go func() { _ = bus.Subscribe(ctx, "match.request", broker.SubscribeOptions{}, engine.ProcessMatchRequest) }()

	// Let every Subscribe goroutine register before anything is published.
	time.Sleep(30 * time.Millisecond)

	h := &harness{
		t: t, bus: bus, jobs: jobs, mgr: mgr,
		assets: assets, matches: matches, evidenceStore: evidenceStore,
		stages: stages, cancel: cancel,
	}
	t.Cleanup(cancel)
	return h
}

func (h *harness) publish(ctx context.Context, topic, jobID string, payload map[string]any) {
	h.t.Helper()
	_, err := h.bus.Publish(ctx, topic, jobID, payload)
	if err != nil {
		h.t.Fatalf("publish %s: %v", topic, err)
	}
}

// waitForPhase polls GetStatus until phase is reached or the timeout
// fires, returning the last observed phase on failure for a clearer
// assertion message.
func (h *harness) waitForPhase(ctx context.Context, jobID string, phase domain.Phase, timeout time.Duration) domain.Phase {
	h.t.Helper()
	deadline := time.Now().Add(timeout)
	var last domain.Phase
	for time.Now().Before(deadline) {
		status, err := h.mgr.GetStatus(ctx, jobID)
		if err == nil {
			last = status.Phase
			if last == phase {
				return last
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	return last
}
