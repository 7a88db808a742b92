package phasemachine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/broker"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/domain"
)

func TestManager_RunAdvancesPhaseOnSubscribedCompletion(t *testing.T) {
	mgr, _, bus := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job, err := mgr.StartJob(ctx, StartJobRequest{Industry: "footwear", ProductSetID: "ps-1"})
	require.NoError(t, err)

	runErr := make(chan error, 1)
	go func() { runErr <- mgr.Run(ctx, bus, broker.SubscribeOptions{}) }()

	// Give the subscriber goroutines a moment to register before publishing.
	time.Sleep(20 * time.Millisecond)

	_, err = bus.Publish(ctx, "products.collections.completed", job.ID, map[string]any{
		"job_id": job.ID, "event_id": "evt-1",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, err := mgr.GetStatus(ctx, job.ID)
		return err == nil && status.Phase == domain.PhaseFeatureExtraction
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-runErr)
}
