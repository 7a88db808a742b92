package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tudragon154203/product-video-matching-sub000/pkg/domain"
)

func TestRequiredForThreshold(t *testing.T) {
	cases := []struct {
		expected, pct, want int
	}{
		{10, 90, 9},
		{9, 90, 9},   // ceil(8.1) = 9
		{3, 90, 3},   // ceil(2.7) = 3
		{100, 50, 50},
		{0, 90, 0},
	}
	for _, c := range cases {
		got := RequiredForThreshold(c.expected, c.pct)
		require.Equal(t, c.want, got, "RequiredForThreshold(%d, %d)", c.expected, c.pct)
	}
}

func TestEvaluate_ZeroAssetFastPath(t *testing.T) {
	p := domain.JobProgress{JobID: "job-1", Stage: domain.StageProductImages, ExpectedKnown: true, ExpectedTotal: 0}
	out := Evaluate(p, 90, time.Now())
	require.True(t, out.ShouldEmit)
	require.False(t, out.HasPartial)
	require.True(t, out.Progress.CompletionEmitted)
}

func TestEvaluate_HundredPercentCompletes(t *testing.T) {
	p := domain.JobProgress{JobID: "job-1", Stage: domain.StageProductImages, ExpectedKnown: true, ExpectedTotal: 10, Done: 9, Failed: 1}
	out := Evaluate(p, 90, time.Now())
	require.True(t, out.ShouldEmit)
	require.False(t, out.HasPartial)
}

func TestEvaluate_DoesNotCompleteBeforeWatermarkOrThreshold(t *testing.T) {
	p := domain.JobProgress{JobID: "job-1", Stage: domain.StageProductImages, ExpectedKnown: true, ExpectedTotal: 10, Done: 5}
	out := Evaluate(p, 90, time.Now())
	require.False(t, out.ShouldEmit)
}

func TestEvaluate_ThresholdCompletesImmediatelyWithoutWatermarkExpiry(t *testing.T) {
	future := time.Now().Add(time.Hour)
	p := domain.JobProgress{
		JobID: "job-1", Stage: domain.StageProductImages,
		ExpectedKnown: true, ExpectedTotal: 10, Done: 9, Failed: 0,
		WatermarkExpiresAt: &future,
	}
	out := Evaluate(p, 90, time.Now())
	require.True(t, out.ShouldEmit)
	require.True(t, out.HasPartial)
}

func TestEvaluate_WatermarkExpiryCompletesAtThresholdAsPartial(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	p := domain.JobProgress{
		JobID: "job-1", Stage: domain.StageProductImages,
		ExpectedKnown: true, ExpectedTotal: 10, Done: 9, Failed: 0,
		WatermarkExpiresAt: &past,
	}
	out := Evaluate(p, 90, time.Now())
	require.True(t, out.ShouldEmit)
	require.True(t, out.HasPartial)
}

func TestEvaluate_WatermarkExpiryBelowThresholdCompletesAsPartial(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	p := domain.JobProgress{
		JobID: "job-1", Stage: domain.StageProductImages,
		ExpectedKnown: true, ExpectedTotal: 10, Done: 5,
		WatermarkExpiresAt: &past,
	}
	out := Evaluate(p, 90, time.Now())
	require.True(t, out.ShouldEmit)
	require.True(t, out.HasPartial)
}

func TestEvaluate_NeverReemitsOnceCompleted(t *testing.T) {
	p := domain.JobProgress{
		JobID: "job-1", Stage: domain.StageProductImages,
		ExpectedKnown: true, ExpectedTotal: 10, Done: 10, CompletionEmitted: true,
	}
	out := Evaluate(p, 90, time.Now())
	require.False(t, out.ShouldEmit)
}

func TestApplyBatchTotal_DuplicateUsesLatestValue(t *testing.T) {
	now := time.Now()
	p := domain.JobProgress{JobID: "job-1", Stage: domain.StageProductImages}
	p = ApplyBatchTotal(p, 10, 10*time.Minute, now)
	require.Equal(t, 10, p.ExpectedTotal)

	p = ApplyBatchTotal(p, 12, 10*time.Minute, now.Add(time.Second))
	require.Equal(t, 12, p.ExpectedTotal)
	require.True(t, p.ExpectedKnown)
}

func TestApplyAssetReadyAndFailed(t *testing.T) {
	p := domain.JobProgress{JobID: "job-1", Stage: domain.StageProductImages}
	p = ApplyAssetReady(p)
	p = ApplyAssetReady(p)
	p = ApplyAssetFailed(p)
	require.Equal(t, 2, p.Done)
	require.Equal(t, 1, p.Failed)
}
