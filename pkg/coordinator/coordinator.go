// Package coordinator implements the per-phase progress tracker's broker
// binding, C4/C5 of spec.md §4.4-§4.5: one StageCoordinator per fan-out
// stage, subscribing to that stage's asset-ready and batch-total topics,
// folding them into pkg/progress, and emitting the stage's *.completed
// event exactly once. Grounded on the teacher's services/automation
// scheduler, which pairs a cron-driven sweep with event-driven triggers
// over the same state; here the sweep exists to fire watermark-expiry
// completions when no further asset events arrive.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/broker"
	pvmerrors "github.com/tudragon154203/product-video-matching-sub000/infrastructure/errors"
	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/logging"
	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/metrics"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/cancellation"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/domain"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/events"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/idempotency"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/progress"
)

// StageConfig binds one fan-out stage to its wire topics.
type StageConfig struct {
	Stage          domain.Stage
	ReadyTopic     string // per-asset ready event
	BatchTopic     string // *.ready.batch / *.masked.batch total event
	CompletedTopic string // job-level *.completed event this stage emits
	TotalField     string // the batch payload's total field name (e.g. "total_images")
	// Consumer scopes this stage's idempotency-ledger entries (pkg/idempotency)
	// and Redis consumer group (infrastructure/broker) so two stages
	// subscribing to the same topic - e.g. the evidence stage shares
	// match.request.completed with pkg/phasemachine - don't collide.
	Consumer string
}

// DefaultStageConfigs returns the seven stage bindings spec.md §6.1's schema
// table implies: two collection stages keyed off raw ready/batch events,
// four feature-extraction stages keyed off the masked-batch totals
// (embeddings/keypoints are computed per masked asset, not per raw asset),
// and the evidence-build stage (spec.md §4.7), which reuses this same
// ready/batch/completed shape: match.result is its per-pair "ready" event,
// match.request.completed carries the pair count as its "batch total"
// (field match_count), and it emits evidences.generation.completed.
func DefaultStageConfigs() []StageConfig {
	return []StageConfig{
		{Stage: domain.StageProductImages, ReadyTopic: "products.image.ready", BatchTopic: "products.images.ready.batch", CompletedTopic: "products.collections.completed", TotalField: "total_images", Consumer: "collector-products"},
		{Stage: domain.StageVideoFrames, ReadyTopic: "videos.keyframes.ready", BatchTopic: "videos.keyframes.ready.batch", CompletedTopic: "videos.collections.completed", TotalField: "total_keyframes", Consumer: "collector-videos"},
		{Stage: domain.StageImageEmbeddings, ReadyTopic: "image.embedding.ready", BatchTopic: "products.images.masked.batch", CompletedTopic: "image.embeddings.completed", TotalField: "total_images", Consumer: "tracker-image-embeddings"},
		{Stage: domain.StageVideoEmbeddings, ReadyTopic: "video.embedding.ready", BatchTopic: "video.keyframes.masked.batch", CompletedTopic: "video.embeddings.completed", TotalField: "total_keyframes", Consumer: "tracker-video-embeddings"},
		{Stage: domain.StageImageKeypoints, ReadyTopic: "image.keypoint.ready", BatchTopic: "products.images.masked.batch", CompletedTopic: "image.keypoints.completed", TotalField: "total_images", Consumer: "tracker-image-keypoints"},
		{Stage: domain.StageVideoKeypoints, ReadyTopic: "video.keypoint.ready", BatchTopic: "video.keyframes.masked.batch", CompletedTopic: "video.keypoints.completed", TotalField: "total_keyframes", Consumer: "tracker-video-keypoints"},
		{Stage: domain.StageEvidenceBuild, ReadyTopic: "match.result", BatchTopic: "match.request.completed", CompletedTopic: "evidences.generation.completed", TotalField: "match_count", Consumer: "evidence"},
	}
}

// StageCoordinator tracks one stage's fan-out completion.
type StageCoordinator struct {
	cfg          StageConfig
	bus          broker.Broker
	store        progress.Store
	ledger       idempotency.Ledger
	thresholdPct int
	watermarkTTL time.Duration
	metrics      *metrics.Metrics
	log          *logging.Logger
	onReady      func(ctx context.Context, msg *broker.Message) error
	cancelled    *cancellation.Checker
}

// Option configures optional StageCoordinator behavior.
type Option func(*StageCoordinator)

// WithReadyHook runs fn against every deduplicated ready-topic delivery
// before it is folded into progress tracking, letting a stage attach
// side effects (e.g. the evidence stage's per-pair artifact work, spec.md
// §4.7) to the same ready/batch/completion machinery every other stage
// uses. A non-nil error from fn aborts before progress is updated, so the
// message redelivers.
func WithReadyHook(fn func(ctx context.Context, msg *broker.Message) error) Option {
	return func(c *StageCoordinator) { c.onReady = fn }
}

// WithCancellationChecker discards ready/batch deliveries for jobs already
// cancelled, upstream of any side effect (spec.md §4.10). Omit it (the
// zero value) to process every delivery regardless of job phase.
func WithCancellationChecker(checker *cancellation.Checker) Option {
	return func(c *StageCoordinator) { c.cancelled = checker }
}

// New builds a StageCoordinator for one stage.
func New(cfg StageConfig, bus broker.Broker, store progress.Store, ledger idempotency.Ledger, thresholdPct int, watermarkTTL time.Duration, m *metrics.Metrics, log *logging.Logger, opts ...Option) *StageCoordinator {
	c := &StageCoordinator{
		cfg: cfg, bus: bus, store: store, ledger: ledger,
		thresholdPct: thresholdPct, watermarkTTL: watermarkTTL, metrics: m, log: log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run subscribes to both the ready and batch-total topics until ctx is
// cancelled. Each subscription gets its own handler pool, bounded by
// opts.Prefetch.
func (c *StageCoordinator) Run(ctx context.Context, opts broker.SubscribeOptions) error {
	opts.GroupName = c.cfg.Consumer

	errc := make(chan error, 2)
	go func() { errc <- c.bus.Subscribe(ctx, c.cfg.ReadyTopic, opts, c.handleReady) }()
	go func() { errc <- c.bus.Subscribe(ctx, c.cfg.BatchTopic, opts, c.handleBatch) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errc:
		return err
	}
}

// HandleReady processes one delivery of the stage's ready topic. Exported
// so other packages composing a StageCoordinator (e.g. pkg/evidence's
// tests) can drive it without a live broker subscription.
func (c *StageCoordinator) HandleReady(ctx context.Context, msg *broker.Message) error {
	return c.handleReady(ctx, msg)
}

// HandleBatch processes one delivery of the stage's batch-total topic. See
// HandleReady.
func (c *StageCoordinator) HandleBatch(ctx context.Context, msg *broker.Message) error {
	return c.handleBatch(ctx, msg)
}

func (c *StageCoordinator) handleReady(ctx context.Context, msg *broker.Message) error {
	if c.cancelled.IsCancelled(ctx, msg.Envelope.JobID) {
		return nil
	}

	inserted, err := c.ledger.MarkProcessed(ctx, c.cfg.Consumer, msg.Envelope.EventID, msg.Topic, msg.Envelope.JobID)
	if err != nil {
		return pvmerrors.Transient(err)
	}
	if !inserted {
		return pvmerrors.IdempotencyConflict(nil)
	}

	if c.onReady != nil {
		if err := c.onReady(ctx, msg); err != nil {
			return err
		}
	}

	updated, err := c.store.Mutate(ctx, msg.Envelope.JobID, c.cfg.Stage, progress.ApplyAssetReady)
	if err != nil {
		return pvmerrors.Transient(err)
	}
	return c.maybeEmitCompletion(ctx, msg.Envelope.JobID, updated)
}

func (c *StageCoordinator) handleBatch(ctx context.Context, msg *broker.Message) error {
	if c.cancelled.IsCancelled(ctx, msg.Envelope.JobID) {
		return nil
	}

	inserted, err := c.ledger.MarkProcessed(ctx, c.cfg.Consumer, msg.Envelope.EventID, msg.Topic, msg.Envelope.JobID)
	if err != nil {
		return pvmerrors.Transient(err)
	}
	if !inserted {
		return pvmerrors.IdempotencyConflict(nil)
	}

	total := gjsonInt(msg.Envelope.Payload, c.cfg.TotalField)
	now := time.Now().UTC()
	late := false
	updated, err := c.store.Mutate(ctx, msg.Envelope.JobID, c.cfg.Stage, func(p domain.JobProgress) domain.JobProgress {
		if p.CompletionEmitted {
			late = true
			return p
		}
		return progress.ApplyBatchTotal(p, total, c.watermarkTTL, now)
	})
	if err != nil {
		return pvmerrors.Transient(err)
	}
	if late {
		c.log.WithField("job_id", msg.Envelope.JobID).WithField("stage", c.cfg.Stage).
			Warn("coordinator: batch total after completion ignored")
		return nil
	}
	return c.maybeEmitCompletion(ctx, msg.Envelope.JobID, updated)
}

func (c *StageCoordinator) maybeEmitCompletion(ctx context.Context, jobID string, current domain.JobProgress) error {
	outcome := progress.Evaluate(current, c.thresholdPct, time.Now().UTC())
	if !outcome.ShouldEmit {
		// Persist the evaluated state (CompletionEmitted may still be false)
		// so later mutations see the same Done/Failed counters.
		_, err := c.store.Mutate(ctx, jobID, current.Stage, func(domain.JobProgress) domain.JobProgress { return outcome.Progress })
		return err
	}

	if _, err := c.store.Mutate(ctx, jobID, current.Stage, func(domain.JobProgress) domain.JobProgress { return outcome.Progress }); err != nil {
		return pvmerrors.Transient(err)
	}

	completed := events.CompletedPayload{
		JobID:                jobID,
		EventID:              uuid.NewString(),
		TotalAssets:          outcome.Progress.ExpectedTotal,
		ProcessedAssets:      outcome.Progress.Done,
		FailedAssets:         outcome.Progress.Failed,
		HasPartialCompletion: outcome.HasPartial,
		WatermarkTTL:         int(c.watermarkTTL.Seconds()),
	}
	if err := events.ValidateStruct(completed); err != nil {
		return pvmerrors.SchemaViolation(fmt.Errorf("coordinator: build %s: %w", c.cfg.CompletedTopic, err))
	}
	if _, err := c.bus.Publish(ctx, c.cfg.CompletedTopic, jobID, completed); err != nil {
		return pvmerrors.Transient(fmt.Errorf("coordinator: publish %s: %w", c.cfg.CompletedTopic, err))
	}

	if c.metrics != nil {
		c.metrics.StageCompletionsEmitted.WithLabelValues(string(c.cfg.Stage)).Inc()
		if outcome.HasPartial {
			c.metrics.StagePartialCompletions.WithLabelValues(string(c.cfg.Stage)).Inc()
		}
	}
	return nil
}

// SweepWatermarks re-evaluates every progress row whose watermark has been
// set but whose completion has not yet fired, so a stage whose last asset
// arrived just before the TTL window closes still completes without
// waiting on another event (spec.md §4.4). Intended to run on a
// robfig/cron ticker, e.g. every 30s.
func SweepWatermarks(ctx context.Context, store progress.Store, stageBus map[domain.Stage]*StageCoordinator, log *logging.Logger) error {
	rows, err := store.ListAwaitingWatermark(ctx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		coord, ok := stageBus[row.Stage]
		if !ok {
			continue
		}
		if err := coord.maybeEmitCompletion(ctx, row.JobID, row); err != nil {
			log.WithField("job_id", row.JobID).WithField("stage", row.Stage).WithField("error", err).
				Warn("coordinator: watermark sweep emit failed")
		}
	}
	return nil
}

func gjsonInt(payload []byte, field string) int {
	return int(gjson.GetBytes(payload, field).Int())
}
