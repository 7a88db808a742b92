package phasemachine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/broker"
	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/logging"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/domain"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/events"
)

func newTestManager(t *testing.T) (*Manager, *MemoryJobStore, *broker.MemoryBroker) {
	t.Helper()
	jobs := NewMemoryJobStore()
	phaseEvents := NewMemoryPhaseEventStore()
	bus := broker.NewMemoryBroker(events.NewRegistry(), 5)
	log := logging.New("test", "error", "text")
	return NewManager(jobs, phaseEvents, bus, nil, log, 20), jobs, bus
}

func TestManager_StartJobPublishesBothRequestsWhenFullyScoped(t *testing.T) {
	mgr, _, bus := newTestManager(t)
	ctx := context.Background()

	job, err := mgr.StartJob(ctx, StartJobRequest{
		Industry: "footwear", ProductSetID: "ps-1", VideoSetID: "vs-1",
		Queries: []string{"running shoes"}, Platforms: []string{"youtube"},
		TopAmz: 10, TopEbay: 10, RecencyDays: 30,
	})
	require.NoError(t, err)
	require.Equal(t, domain.PhaseCollection, job.Phase)

	require.Len(t, bus.Published("products.collect.request"), 1)
	require.Len(t, bus.Published("videos.search.request"), 1)
}

func TestManager_StartJobProductsOnlySkipsVideoRequest(t *testing.T) {
	mgr, _, bus := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.StartJob(ctx, StartJobRequest{Industry: "footwear", ProductSetID: "ps-1", Queries: []string{"running shoes"}})
	require.NoError(t, err)

	require.Len(t, bus.Published("products.collect.request"), 1)
	require.Empty(t, bus.Published("videos.search.request"))
}

func TestManager_HandleCompletionAdvancesThroughFullDAG(t *testing.T) {
	mgr, _, bus := newTestManager(t)
	ctx := context.Background()

	job, err := mgr.StartJob(ctx, StartJobRequest{
		Industry: "footwear", ProductSetID: "ps-1", VideoSetID: "vs-1",
	})
	require.NoError(t, err)

	require.NoError(t, mgr.HandleCompletion(ctx, job.ID, "products.collections.completed", "evt-1"))
	status, err := mgr.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseCollection, status.Phase, "must wait for both collection completions")

	require.NoError(t, mgr.HandleCompletion(ctx, job.ID, "videos.collections.completed", "evt-2"))
	status, err = mgr.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseFeatureExtraction, status.Phase)

	for _, topic := range []string{
		"image.embeddings.completed", "image.keypoints.completed",
		"video.embeddings.completed", "video.keypoints.completed",
	} {
		require.NoError(t, mgr.HandleCompletion(ctx, job.ID, topic, "evt-"+topic))
	}
	status, err = mgr.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseMatching, status.Phase)
	require.Len(t, bus.Published("match.request"), 1, "entering matching must publish exactly one match.request")

	require.NoError(t, mgr.HandleCompletion(ctx, job.ID, "match.request.completed", "evt-mr"))
	status, err = mgr.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseEvidence, status.Phase)

	require.NoError(t, mgr.HandleCompletion(ctx, job.ID, "evidences.generation.completed", "evt-ev"))
	status, err = mgr.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseCompleted, status.Phase)
	require.Len(t, bus.Published("job.completed"), 1)
}

func TestManager_DuplicateCompletionIsIgnored(t *testing.T) {
	mgr, _, bus := newTestManager(t)
	ctx := context.Background()

	job, err := mgr.StartJob(ctx, StartJobRequest{Industry: "footwear", ProductSetID: "ps-1"})
	require.NoError(t, err)

	require.NoError(t, mgr.HandleCompletion(ctx, job.ID, "products.collections.completed", "evt-1"))
	status, _ := mgr.GetStatus(ctx, job.ID)
	require.Equal(t, domain.PhaseFeatureExtraction, status.Phase)

	// Replaying the same completion after transition must be a no-op, not
	// re-trigger feature extraction's required completions prematurely.
	require.NoError(t, mgr.HandleCompletion(ctx, job.ID, "products.collections.completed", "evt-1-retry"))
	status, _ = mgr.GetStatus(ctx, job.ID)
	require.Equal(t, domain.PhaseFeatureExtraction, status.Phase)
	require.Empty(t, bus.Published("match.request"))
}

func TestManager_CancelIsIdempotentAndBlocksFurtherTransitions(t *testing.T) {
	mgr, _, bus := newTestManager(t)
	ctx := context.Background()

	job, err := mgr.StartJob(ctx, StartJobRequest{Industry: "footwear", ProductSetID: "ps-1", VideoSetID: "vs-1"})
	require.NoError(t, err)

	resp, err := mgr.CancelJob(ctx, job.ID, "user_requested", "")
	require.NoError(t, err)
	require.Equal(t, domain.PhaseCancelled, resp.Phase)

	resp2, err := mgr.CancelJob(ctx, job.ID, "user_requested", "")
	require.NoError(t, err)
	require.Equal(t, domain.PhaseCancelled, resp2.Phase)

	// Late completions after cancellation must be recorded but never advance phase.
	require.NoError(t, mgr.HandleCompletion(ctx, job.ID, "products.collections.completed", "evt-late"))
	require.NoError(t, mgr.HandleCompletion(ctx, job.ID, "videos.collections.completed", "evt-late-2"))
	status, err := mgr.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseCancelled, status.Phase)
	require.Empty(t, bus.Published("match.request"))
}

func TestManager_GetStatusUnknownJobReturnsZerosNotError(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	status, err := mgr.GetStatus(context.Background(), "does-not-exist")
	require.NoError(t, err)
	require.Equal(t, domain.Phase("unknown"), status.Phase)
	require.Zero(t, status.Percent)
}

func TestManager_DeleteJobRequiresForceWhileActive(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	job, err := mgr.StartJob(ctx, StartJobRequest{Industry: "footwear", ProductSetID: "ps-1"})
	require.NoError(t, err)

	err = mgr.DeleteJob(ctx, job.ID, false)
	require.ErrorIs(t, err, ErrActiveJobRequiresForce)

	require.NoError(t, mgr.DeleteJob(ctx, job.ID, true))
	_, err = mgr.GetStatus(ctx, job.ID)
	require.NoError(t, err) // deleted job reads back as unknown, not an error
}
