package cancellation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tudragon154203/product-video-matching-sub000/pkg/domain"
)

type fakeReader struct {
	job domain.Job
	err error
}

func (f fakeReader) Get(_ context.Context, _ string) (domain.Job, error) {
	return f.job, f.err
}

func TestChecker_IsCancelled_TrueOnlyWhenPhaseCancelled(t *testing.T) {
	c := NewChecker(fakeReader{job: domain.Job{Phase: domain.PhaseCancelled}})
	require.True(t, c.IsCancelled(context.Background(), "job-1"))

	c = NewChecker(fakeReader{job: domain.Job{Phase: domain.PhaseMatching}})
	require.False(t, c.IsCancelled(context.Background(), "job-1"))
}

func TestChecker_IsCancelled_FailsOpenOnReadError(t *testing.T) {
	c := NewChecker(fakeReader{err: errors.New("boom")})
	require.False(t, c.IsCancelled(context.Background(), "job-1"))
}

func TestChecker_IsCancelled_NilCheckerAndNilReaderAreSafe(t *testing.T) {
	var c *Checker
	require.False(t, c.IsCancelled(context.Background(), "job-1"))

	c = NewChecker(nil)
	require.False(t, c.IsCancelled(context.Background(), "job-1"))
}
