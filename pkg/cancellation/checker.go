// Package cancellation implements the cross-cutting guard spec.md §4.10
// describes: "Workers SHOULD skip work whose job_id is cancelled; at
// minimum, cancelled jobs' published events are discarded upstream of side
// effects." Job lifecycle itself (Cancel/Delete) lives in pkg/phasemachine,
// which owns the jobs table; this package only adapts that state into a
// narrow read-only check pkg/coordinator and pkg/matching can consult
// without depending on the full phasemachine.JobService, avoiding an
// import cycle (phasemachine already depends on pkg/domain and
// infrastructure/broker, not the other way around).
package cancellation

import (
	"context"

	"github.com/tudragon154203/product-video-matching-sub000/pkg/domain"
)

// JobReader is the minimal read a Checker needs. phasemachine.JobStore
// satisfies this directly.
type JobReader interface {
	Get(ctx context.Context, jobID string) (domain.Job, error)
}

// Checker reports whether a job_id should be treated as cancelled for the
// purpose of discarding further work. A nil *Checker (or one built over a
// nil reader) always reports false, so callers can wire it optionally.
type Checker struct {
	reader JobReader
}

// NewChecker builds a Checker over reader.
func NewChecker(reader JobReader) *Checker {
	return &Checker{reader: reader}
}

// IsCancelled returns true only when the job's phase is definitively
// cancelled. A not-found job or a transient store error is treated as "not
// cancelled" (fail open): silently dropping a live job's work because of a
// read hiccup would violate the pipeline's own idempotency/retry
// guarantees more than an occasional redundant process of a job that turns
// out to already be cancelled.
func (c *Checker) IsCancelled(ctx context.Context, jobID string) bool {
	if c == nil || c.reader == nil {
		return false
	}
	job, err := c.reader.Get(ctx, jobID)
	if err != nil {
		return false
	}
	return job.Phase == domain.PhaseCancelled
}
