package evidence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/broker"
	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/logging"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/events"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/idempotency"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/progress"
)

func TestEvidenceCoordinator_ZeroMatchFastPathCompletesImmediately(t *testing.T) {
	bus := broker.NewMemoryBroker(events.NewRegistry(), 5)
	store := progress.NewMemoryStore()
	ledger := idempotency.NewMemoryLedger()
	evStore := NewMemoryStore()
	builder := NewBuilder(evStore)
	log := logging.New("test", "error", "text")
	coord := NewCoordinator(bus, store, ledger, builder, 90, 10*time.Minute, nil, log, nil)
	ctx := context.Background()

	env, err := events.NewEnvelope("match.request.completed", "job-1", map[string]any{
		"job_id": "job-1", "event_id": "evt-1", "match_count": 0,
	})
	require.NoError(t, err)

	require.NoError(t, coord.HandleBatch(ctx, &broker.Message{Topic: "match.request.completed", Envelope: env}))
	require.Len(t, bus.Published("evidences.generation.completed"), 1)
}

func TestEvidenceCoordinator_BuildsArtifactBeforeCountingReady(t *testing.T) {
	bus := broker.NewMemoryBroker(events.NewRegistry(), 5)
	store := progress.NewMemoryStore()
	ledger := idempotency.NewMemoryLedger()
	evStore := NewMemoryStore()
	builder := NewBuilder(evStore)
	log := logging.New("test", "error", "text")
	coord := NewCoordinator(bus, store, ledger, builder, 90, 10*time.Minute, nil, log, nil)
	ctx := context.Background()

	batchEnv, err := events.NewEnvelope("match.request.completed", "job-1", map[string]any{
		"job_id": "job-1", "event_id": "evt-batch", "match_count": 1,
	})
	require.NoError(t, err)
	require.NoError(t, coord.HandleBatch(ctx, &broker.Message{Topic: "match.request.completed", Envelope: batchEnv}))
	require.Empty(t, bus.Published("evidences.generation.completed"), "1 pair pending, not complete yet")

	resultEnv, err := events.NewEnvelope("match.result", "job-1", map[string]any{
		"job_id": "job-1", "product_id": "p1", "video_id": "v1",
		"best_pair": map[string]any{"img_id": "img1", "frame_id": "f1", "score_pair": 0.9},
		"score": 0.9, "ts": 1.0,
	})
	require.NoError(t, err)
	require.NoError(t, coord.HandleReady(ctx, &broker.Message{Topic: "match.result", Envelope: resultEnv}))

	_, ok := evStore.PathFor("job-1", "p1", "v1")
	require.True(t, ok, "artifact must be built before completion fires")
	require.Len(t, bus.Published("evidences.generation.completed"), 1)
}
