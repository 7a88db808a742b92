package phasemachine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/logging"
	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/metrics"
	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/broker"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/domain"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/events"
)

// StartJobRequest carries the inputs needed to kick off a new job (spec.md
// §3: "query inputs (industry, top_amz, top_ebay, queries, platforms,
// recency_days)").
type StartJobRequest struct {
	Industry     string
	ProductSetID string
	VideoSetID   string
	Queries      []string
	Platforms    []string
	TopAmz       int
	TopEbay      int
	RecencyDays  int
	TopK         int
}

// StatusResponse is JobService.GetStatus's external shape (spec.md §7).
type StatusResponse struct {
	JobID     string
	Phase     domain.Phase
	Percent   int
	Counts    domain.AssetCounts
	UpdatedAt *time.Time
}

// CancelResponse is JobService.CancelJob's external shape (spec.md §7).
type CancelResponse struct {
	JobID       string
	Phase       domain.Phase
	CancelledAt time.Time
	Reason      string
	Notes       string
}

// ErrActiveJobRequiresForce is returned by DeleteJob when phase is still
// active and force=false (spec.md §4.10).
var ErrActiveJobRequiresForce = fmt.Errorf("phasemachine: job is active, delete requires force=true")

// JobService is the external interface other components and cmd/ entry
// points call into (spec.md §7).
type JobService interface {
	StartJob(ctx context.Context, req StartJobRequest) (domain.Job, error)
	GetStatus(ctx context.Context, jobID string) (StatusResponse, error)
	CancelJob(ctx context.Context, jobID, reason, notes string) (CancelResponse, error)
	DeleteJob(ctx context.Context, jobID string, force bool) error
}

// Manager is the stateful phase transition manager C8: it wraps the pure
// Evaluate function with persistence (JobStore, PhaseEventStore) and the
// event bus, and implements JobService.
type Manager struct {
	jobs        JobStore
	phaseEvents PhaseEventStore
	bus         broker.Broker
	metrics     *metrics.Metrics
	log         *logging.Logger
	defaultTopK int
}

// NewManager builds a Manager. defaultTopK seeds match.request's top_k
// (spec.md §6.1: RETRIEVAL_TOPK, default 20) since the job itself carries
// no per-request override.
func NewManager(jobs JobStore, phaseEvents PhaseEventStore, bus broker.Broker, m *metrics.Metrics, log *logging.Logger, defaultTopK int) *Manager {
	if defaultTopK <= 0 {
		defaultTopK = 20
	}
	return &Manager{jobs: jobs, phaseEvents: phaseEvents, bus: bus, metrics: m, log: log, defaultTopK: defaultTopK}
}

// StartJob implements JobService. It creates the job row in PhaseCollection
// and publishes the collection-stage requests for whichever asset types the
// caller scoped the job to.
func (m *Manager) StartJob(ctx context.Context, req StartJobRequest) (domain.Job, error) {
	now := time.Now().UTC()
	job := domain.Job{
		ID:           uuid.NewString(),
		Industry:     req.Industry,
		ProductSetID: req.ProductSetID,
		VideoSetID:   req.VideoSetID,
		Queries:      req.Queries,
		Platforms:    req.Platforms,
		TopAmz:       req.TopAmz,
		TopEbay:      req.TopEbay,
		RecencyDays:  req.RecencyDays,
		Phase:        domain.PhaseCollection,
		AssetScope:   domain.AssetScope{HasProducts: req.ProductSetID != "", HasVideos: req.VideoSetID != ""},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := m.jobs.Create(ctx, job); err != nil {
		return domain.Job{}, err
	}
	if m.metrics != nil {
		m.metrics.JobsActive.Inc()
	}

	if job.AssetScope.HasProducts {
		if _, err := m.bus.Publish(ctx, "products.collect.request", job.ID, map[string]any{
			"job_id":   job.ID,
			"queries":  req.Queries,
			"top_amz":  req.TopAmz,
			"top_ebay": req.TopEbay,
		}); err != nil {
			m.log.WithField("job_id", job.ID).WithField("error", err).Warn("phasemachine: publish products.collect.request failed")
		}
	}
	if job.AssetScope.HasVideos {
		if _, err := m.bus.Publish(ctx, "videos.search.request", job.ID, map[string]any{
			"job_id":       job.ID,
			"industry":     req.Industry,
			"queries":      req.Queries,
			"platforms":    req.Platforms,
			"recency_days": req.RecencyDays,
		}); err != nil {
			m.log.WithField("job_id", job.ID).WithField("error", err).Warn("phasemachine: publish videos.search.request failed")
		}
	}

	return job, nil
}

// GetStatus implements JobService. An unknown job_id returns phase=unknown
// with zero counts rather than an error, per spec.md §7.
func (m *Manager) GetStatus(ctx context.Context, jobID string) (StatusResponse, error) {
	job, err := m.jobs.Get(ctx, jobID)
	if err == ErrJobNotFound {
		return StatusResponse{JobID: jobID, Phase: "unknown", Percent: 0}, nil
	}
	if err != nil {
		return StatusResponse{}, err
	}

	return StatusResponse{
		JobID:     job.ID,
		Phase:     job.Phase,
		Percent:   StatusPercent(job.Phase),
		Counts:    job.Counts,
		UpdatedAt: &job.UpdatedAt,
	}, nil
}

// CancelJob implements JobService. Idempotent: cancelling an already
// cancelled job just returns its current state.
func (m *Manager) CancelJob(ctx context.Context, jobID, reason, notes string) (CancelResponse, error) {
	job, err := m.jobs.Get(ctx, jobID)
	if err != nil {
		return CancelResponse{}, err
	}

	if job.Phase == domain.PhaseCancelled {
		return CancelResponse{
			JobID: job.ID, Phase: job.Phase, Reason: job.CancellationReason, Notes: job.CancellationNotes,
			CancelledAt: derefOrZero(job.CancelledAt),
		}, nil
	}

	now := time.Now().UTC()
	cancelled, err := m.jobs.Cancel(ctx, jobID, reason, notes, now)
	if err != nil {
		return CancelResponse{}, err
	}
	if m.metrics != nil {
		m.metrics.JobsCancelled.Inc()
		m.metrics.JobsActive.Dec()
		m.metrics.PhaseTransitionsTotal.WithLabelValues(string(job.Phase), string(domain.PhaseCancelled)).Inc()
	}

	return CancelResponse{
		JobID: cancelled.ID, Phase: cancelled.Phase, Reason: reason, Notes: notes,
		CancelledAt: derefOrZero(cancelled.CancelledAt),
	}, nil
}

// DeleteJob implements JobService (spec.md §4.10).
func (m *Manager) DeleteJob(ctx context.Context, jobID string, force bool) error {
	job, err := m.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}

	if !job.Phase.Terminal() {
		if !force {
			return ErrActiveJobRequiresForce
		}
		if _, err := m.CancelJob(ctx, jobID, "deleted_while_active", ""); err != nil {
			return err
		}
	}

	return m.jobs.Delete(ctx, jobID)
}

// HandleCompletion processes one job-level *.completed delivery: it records
// the completion (duplicates ignored via the UNIQUE(job_id, topic) index),
// then re-evaluates the phase barrier. Cancelled/failed jobs still record
// the completion but never transition further (spec.md §4.10).
func (m *Manager) HandleCompletion(ctx context.Context, jobID, topic, eventID string) error {
	job, err := m.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}

	inserted, err := m.phaseEvents.RecordCompletion(ctx, jobID, topic, eventID)
	if err != nil {
		return err
	}
	if !inserted {
		m.log.WithField("job_id", jobID).WithField("topic", topic).Debug("phasemachine: duplicate completion ignored")
		return nil
	}

	if job.Phase.Terminal() {
		m.log.WithField("job_id", jobID).WithField("topic", topic).WithField("phase", job.Phase).
			Info("phasemachine: completion recorded for terminal job, no transition")
		return nil
	}

	received, err := m.phaseEvents.ReceivedTopics(ctx, jobID)
	if err != nil {
		return err
	}

	result := Evaluate(job.Phase, received, job.AssetScope)
	if !result.Transitioned {
		return nil
	}

	now := time.Now().UTC()
	if err := m.jobs.UpdatePhase(ctx, jobID, result.NextPhase, now); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.PhaseTransitionsTotal.WithLabelValues(string(job.Phase), string(result.NextPhase)).Inc()
		if result.NextPhase == domain.PhaseCompleted {
			m.metrics.JobsActive.Dec()
		}
	}

	if result.PublishMatchRequest {
		req := events.MatchRequestPayload{
			JobID:        jobID,
			Industry:     job.Industry,
			ProductSetID: job.ProductSetID,
			VideoSetID:   job.VideoSetID,
			TopK:         m.defaultTopK,
			EventID:      uuid.NewString(),
		}
		if err := events.ValidateStruct(req); err != nil {
			m.log.WithField("job_id", jobID).WithField("error", err).Warn("phasemachine: build match.request failed")
		} else if _, err := m.bus.Publish(ctx, "match.request", jobID, req); err != nil {
			m.log.WithField("job_id", jobID).WithField("error", err).Warn("phasemachine: publish match.request failed")
		}
	}

	if result.NextPhase == domain.PhaseCompleted {
		if _, err := m.bus.Publish(ctx, "job.completed", jobID, map[string]any{"job_id": jobID}); err != nil {
			m.log.WithField("job_id", jobID).WithField("error", err).Warn("phasemachine: publish job.completed failed")
		}
	}

	return nil
}

// MarkFailed transitions jobID straight to failed, bypassing the DAG
// Evaluate walks (spec.md §7: "Unrecoverable job error... stop publishing
// for this job").
func (m *Manager) MarkFailed(ctx context.Context, jobID, failureCode string) error {
	job, err := m.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Phase.Terminal() {
		return nil
	}
	now := time.Now().UTC()
	if err := m.jobs.UpdatePhase(ctx, jobID, domain.PhaseFailed, now); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.JobsFailed.Inc()
		m.metrics.JobsActive.Dec()
		m.metrics.PhaseTransitionsTotal.WithLabelValues(string(job.Phase), string(domain.PhaseFailed)).Inc()
	}
	return nil
}

func derefOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

var _ JobService = (*Manager)(nil)
