package phasemachine

import (
	"context"
	"time"

	"github.com/tudragon154203/product-video-matching-sub000/pkg/domain"
)

// JobStore persists the Job aggregate.
type JobStore interface {
	Create(ctx context.Context, job domain.Job) error
	Get(ctx context.Context, jobID string) (domain.Job, error)
	UpdatePhase(ctx context.Context, jobID string, phase domain.Phase, now time.Time) error
	Cancel(ctx context.Context, jobID, reason, notes string, now time.Time) (domain.Job, error)
	Delete(ctx context.Context, jobID string) error
}

// PhaseEventStore records the completion-arrival trail and answers "which
// required completions has this job already seen".
type PhaseEventStore interface {
	// RecordCompletion records that topic arrived for jobID, keyed by the
	// UNIQUE(job_id, trigger_topic) constraint spec.md §4.8 calls "the last line of
	// defense for duplicate transitions". Returns true if this call
	// performed the insert, false if it was already recorded.
	RecordCompletion(ctx context.Context, jobID, topic, eventID string) (bool, error)
	// ReceivedTopics returns the set of job-level completion topics already
	// recorded for jobID.
	ReceivedTopics(ctx context.Context, jobID string) (map[string]bool, error)
}

// ErrJobNotFound is returned by JobStore.Get when no row exists for jobID.
var ErrJobNotFound = jobNotFoundError{}

type jobNotFoundError struct{}

func (jobNotFoundError) Error() string { return "phasemachine: job not found" }
