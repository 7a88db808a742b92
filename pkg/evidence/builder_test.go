package evidence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/broker"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/events"
)

func TestBuilder_BuildForMatchResultPersistsDeterministicPath(t *testing.T) {
	store := NewMemoryStore()
	builder := NewBuilder(store)
	ctx := context.Background()

	env, err := events.NewEnvelope("match.result", "job-1", map[string]any{
		"job_id": "job-1", "product_id": "p1", "video_id": "v1",
		"best_pair": map[string]any{"img_id": "img1", "frame_id": "f1", "score_pair": 0.9},
		"score": 0.9, "ts": 1.5,
	})
	require.NoError(t, err)

	require.NoError(t, builder.BuildForMatchResult(ctx, &broker.Message{Topic: "match.result", Envelope: env}))

	path, ok := store.PathFor("job-1", "p1", "v1")
	require.True(t, ok)
	require.Equal(t, EvidencePath("job-1", "p1", "v1", "img1", "f1"), path)
}

func TestEvidencePath_IsDeterministic(t *testing.T) {
	a := EvidencePath("job-1", "p1", "v1", "img1", "f1")
	b := EvidencePath("job-1", "p1", "v1", "img1", "f1")
	require.Equal(t, a, b)
}
