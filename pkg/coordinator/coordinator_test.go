package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/broker"
	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/logging"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/cancellation"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/domain"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/events"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/idempotency"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/progress"
)

type fakeJobReader struct{ phase domain.Phase }

func (f fakeJobReader) Get(_ context.Context, _ string) (domain.Job, error) {
	return domain.Job{Phase: f.phase}, nil
}

func newTestCoordinator(t *testing.T, cfg StageConfig) (*StageCoordinator, *broker.MemoryBroker, progress.Store) {
	t.Helper()
	bus := broker.NewMemoryBroker(events.NewRegistry(), 5)
	store := progress.NewMemoryStore()
	ledger := idempotency.NewMemoryLedger()
	log := logging.New("test", "error", "text")
	coord := New(cfg, bus, store, ledger, 90, 10*time.Minute, nil, log)
	return coord, bus, store
}

func stageProductImagesConfig() StageConfig {
	for _, cfg := range DefaultStageConfigs() {
		if cfg.Stage == domain.StageProductImages {
			return cfg
		}
	}
	panic("missing stage config")
}

func TestStageCoordinator_EmitsCompletionAtFullCount(t *testing.T) {
	cfg := stageProductImagesConfig()
	coord, bus, store := newTestCoordinator(t, cfg)
	ctx := context.Background()

	require.NoError(t, coord.handleBatch(ctx, &broker.Message{
		Topic:    cfg.BatchTopic,
		Envelope: mustEnvelope(t, cfg.BatchTopic, "job-1", map[string]any{"job_id": "job-1", "event_id": "evt-batch", "total_images": 2}),
	}))

	for i := 0; i < 2; i++ {
		require.NoError(t, coord.handleReady(ctx, &broker.Message{
			Topic:    cfg.ReadyTopic,
			Envelope: mustEnvelope(t, cfg.ReadyTopic, "job-1", map[string]any{"job_id": "job-1", "event_id": "evt-ready-" + string(rune('a'+i)), "product_id": "p1", "image_id": "img1", "local_path": "/x"}),
		}))
	}

	require.Len(t, bus.Published(cfg.CompletedTopic), 1)

	p, err := store.Get(ctx, "job-1", cfg.Stage)
	require.NoError(t, err)
	require.True(t, p.CompletionEmitted)
	require.False(t, p.HasPartialCompletion)
}

func TestStageCoordinator_ZeroAssetFastPath(t *testing.T) {
	cfg := stageProductImagesConfig()
	coord, bus, _ := newTestCoordinator(t, cfg)
	ctx := context.Background()

	require.NoError(t, coord.handleBatch(ctx, &broker.Message{
		Topic:    cfg.BatchTopic,
		Envelope: mustEnvelope(t, cfg.BatchTopic, "job-1", map[string]any{"job_id": "job-1", "event_id": "evt-batch", "total_images": 0}),
	}))

	require.Len(t, bus.Published(cfg.CompletedTopic), 1)
}

func TestStageCoordinator_DuplicateReadyEventIsIgnored(t *testing.T) {
	cfg := stageProductImagesConfig()
	coord, _, store := newTestCoordinator(t, cfg)
	ctx := context.Background()

	env := mustEnvelope(t, cfg.ReadyTopic, "job-1", map[string]any{"job_id": "job-1", "event_id": "evt-ready-a", "product_id": "p1", "image_id": "img1", "local_path": "/x"})
	require.NoError(t, coord.handleReady(ctx, &broker.Message{Topic: cfg.ReadyTopic, Envelope: env}))
	require.NoError(t, coord.handleReady(ctx, &broker.Message{Topic: cfg.ReadyTopic, Envelope: env}))

	p, err := store.Get(ctx, "job-1", cfg.Stage)
	require.NoError(t, err)
	require.Equal(t, 1, p.Done, "replayed event_id must not double count")
}

func TestSweepWatermarks_CompletesStalledStageOnWatermarkExpiry(t *testing.T) {
	cfg := stageProductImagesConfig()
	bus := broker.NewMemoryBroker(events.NewRegistry(), 5)
	store := progress.NewMemoryStore()
	ledger := idempotency.NewMemoryLedger()
	log := logging.New("test", "error", "text")
	coord := New(cfg, bus, store, ledger, 90, 50*time.Millisecond, nil, log)
	ctx := context.Background()

	require.NoError(t, coord.handleBatch(ctx, &broker.Message{
		Topic:    cfg.BatchTopic,
		Envelope: mustEnvelope(t, cfg.BatchTopic, "job-1", map[string]any{"job_id": "job-1", "event_id": "evt-batch", "total_images": 10}),
	}))
	require.NoError(t, coord.handleReady(ctx, &broker.Message{
		Topic:    cfg.ReadyTopic,
		Envelope: mustEnvelope(t, cfg.ReadyTopic, "job-1", map[string]any{"job_id": "job-1", "event_id": "evt-ready-a", "product_id": "p1", "image_id": "img1", "local_path": "/x"}),
	}))
	require.Empty(t, bus.Published(cfg.CompletedTopic), "1/10 must not complete yet")

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, SweepWatermarks(ctx, store, map[domain.Stage]*StageCoordinator{cfg.Stage: coord}, log))

	require.Len(t, bus.Published(cfg.CompletedTopic), 1)
}

func TestStageCoordinator_DiscardsDeliveriesForCancelledJob(t *testing.T) {
	cfg := stageProductImagesConfig()
	bus := broker.NewMemoryBroker(events.NewRegistry(), 5)
	store := progress.NewMemoryStore()
	ledger := idempotency.NewMemoryLedger()
	log := logging.New("test", "error", "text")
	checker := cancellation.NewChecker(fakeJobReader{phase: domain.PhaseCancelled})
	coord := New(cfg, bus, store, ledger, 90, 10*time.Minute, nil, log, WithCancellationChecker(checker))
	ctx := context.Background()

	require.NoError(t, coord.handleBatch(ctx, &broker.Message{
		Topic:    cfg.BatchTopic,
		Envelope: mustEnvelope(t, cfg.BatchTopic, "job-1", map[string]any{"job_id": "job-1", "event_id": "evt-batch", "total_images": 1}),
	}))
	require.NoError(t, coord.handleReady(ctx, &broker.Message{
		Topic:    cfg.ReadyTopic,
		Envelope: mustEnvelope(t, cfg.ReadyTopic, "job-1", map[string]any{"job_id": "job-1", "event_id": "evt-ready-a", "product_id": "p1", "image_id": "img1", "local_path": "/x"}),
	}))

	require.Empty(t, bus.Published(cfg.CompletedTopic), "cancelled job's deliveries must be discarded, not counted")
	_, err := store.Get(ctx, "job-1", cfg.Stage)
	require.Error(t, err, "no progress row should be created for a cancelled job's discarded delivery")
}

func mustEnvelope(t *testing.T, topic, jobID string, payload map[string]any) *events.Envelope {
	t.Helper()
	env, err := events.NewEnvelope(topic, jobID, payload)
	require.NoError(t, err)
	return env
}
