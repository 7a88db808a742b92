package phasemachine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tudragon154203/product-video-matching-sub000/pkg/domain"
)

func TestEvaluate_CollectionRequiresBothScopedCompletions(t *testing.T) {
	scope := domain.AssetScope{HasProducts: true, HasVideos: true}

	result := Evaluate(domain.PhaseCollection, map[string]bool{"products.collections.completed": true}, scope)
	require.False(t, result.Transitioned)

	result = Evaluate(domain.PhaseCollection, map[string]bool{
		"products.collections.completed": true,
		"videos.collections.completed":   true,
	}, scope)
	require.True(t, result.Transitioned)
	require.Equal(t, domain.PhaseFeatureExtraction, result.NextPhase)
	require.False(t, result.PublishMatchRequest)
}

func TestEvaluate_ProductsOnlyScopeRelaxesRequiredSet(t *testing.T) {
	scope := domain.AssetScope{HasProducts: true, HasVideos: false}

	result := Evaluate(domain.PhaseCollection, map[string]bool{"products.collections.completed": true}, scope)
	require.True(t, result.Transitioned)

	result = Evaluate(domain.PhaseFeatureExtraction, map[string]bool{
		"image.embeddings.completed": true,
		"image.keypoints.completed":  true,
	}, scope)
	require.True(t, result.Transitioned)
	require.Equal(t, domain.PhaseMatching, result.NextPhase)
}

func TestEvaluate_FeatureExtractionRequiresAllFourWhenBothScopes(t *testing.T) {
	scope := domain.AssetScope{HasProducts: true, HasVideos: true}
	received := map[string]bool{
		"image.embeddings.completed": true,
		"image.keypoints.completed":  true,
		"video.embeddings.completed": true,
	}
	result := Evaluate(domain.PhaseFeatureExtraction, received, scope)
	require.False(t, result.Transitioned)

	received["video.keypoints.completed"] = true
	result = Evaluate(domain.PhaseFeatureExtraction, received, scope)
	require.True(t, result.Transitioned)
	require.Equal(t, domain.PhaseMatching, result.NextPhase)
	require.True(t, result.PublishMatchRequest, "transitioning into matching must guard match.request publication")
}

func TestEvaluate_MatchingToEvidenceToCompleted(t *testing.T) {
	scope := domain.AssetScope{HasProducts: true, HasVideos: true}

	result := Evaluate(domain.PhaseMatching, map[string]bool{"match.request.completed": true}, scope)
	require.True(t, result.Transitioned)
	require.Equal(t, domain.PhaseEvidence, result.NextPhase)
	require.False(t, result.PublishMatchRequest)

	result = Evaluate(domain.PhaseEvidence, map[string]bool{"evidences.generation.completed": true}, scope)
	require.True(t, result.Transitioned)
	require.Equal(t, domain.PhaseCompleted, result.NextPhase)
}

func TestEvaluate_TerminalPhaseNeverTransitions(t *testing.T) {
	scope := domain.AssetScope{HasProducts: true, HasVideos: true}
	for _, phase := range []domain.Phase{domain.PhaseCompleted, domain.PhaseFailed, domain.PhaseCancelled} {
		result := Evaluate(phase, map[string]bool{
			"products.collections.completed": true, "videos.collections.completed": true,
			"image.embeddings.completed": true, "image.keypoints.completed": true,
			"video.embeddings.completed": true, "video.keypoints.completed": true,
			"match.request.completed": true, "evidences.generation.completed": true,
		}, scope)
		require.False(t, result.Transitioned, "phase %q must never transition", phase)
	}
}

func TestStatusPercentMapping(t *testing.T) {
	cases := map[domain.Phase]int{
		domain.PhaseCollection:        20,
		domain.PhaseFeatureExtraction: 50,
		domain.PhaseMatching:          80,
		domain.PhaseEvidence:          90,
		domain.PhaseCompleted:         100,
		domain.PhaseFailed:            0,
		domain.PhaseCancelled:         0,
	}
	for phase, want := range cases {
		require.Equal(t, want, StatusPercent(phase), "phase %q", phase)
	}
}
