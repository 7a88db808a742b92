package matching

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
)

// Engine is the matcher service C6: it turns one match.request into a set
// of accepted matches, persists them, emits one match.result per accepted
// pair, and finally emits exactly one match.request.completed.
type Engine struct {
	assets     AssetStore
	keypoints  KeypointLoader
	matches    MatchStore
	ledger     idempotency.Ledger
	bus        broker.Broker
	metrics    *metrics.Metrics
	log        *logging.Logger
	cancelled  *cancellation.Checker
	thresholds Thresholds
	timeouts   Timeouts
}

// NewEngine builds an Engine. cancelled may be nil (process every request
// regardless of job phase); pass one built over the phase store to honor
// spec.md §4.10's "workers SHOULD skip work whose job_id is cancelled".
// thresholds carries the operator-tunable gates from spec.md §6; pass
// DefaultThresholds() to fall back to the documented defaults. timeouts
// bounds storage/keypoint-load/geometric-verification work the same way;
// pass DefaultTimeouts() for the documented defaults.
func NewEngine(assets AssetStore, keypoints KeypointLoader, matches MatchStore, ledger idempotency.Ledger, bus broker.Broker, m *metrics.Metrics, log *logging.Logger, cancelled *cancellation.Checker, thresholds Thresholds, timeouts Timeouts) *Engine {
	return &Engine{assets: assets, keypoints: keypoints, matches: matches, ledger: ledger, bus: bus, metrics: m, log: log, cancelled: cancelled, thresholds: thresholds, timeouts: timeouts}
}

// parseMatchRequest reads the match.request payload's top_k/industry/
// product_set_id/video_set_id fields (spec.md §6.1's match_request schema
// requires top_k ∈ [1,100]); an out-of-range or absent top_k falls back to
// e.thresholds.TopK rather than rejecting the request, since retrieval
// fan-out is a tuning knob, not a correctness requirement.
func (e *Engine) parseMatchRequest(jobID, eventID string, payload []byte) MatchRequest {
	req := MatchRequest{
		JobID:        jobID,
		EventID:      eventID,
		Industry:     gjson.GetBytes(payload, "industry").String(),
		ProductSetID: gjson.GetBytes(payload, "product_set_id").String(),
		VideoSetID:   gjson.GetBytes(payload, "video_set_id").String(),
		TopK:         e.thresholds.TopK,
	}
	if req.TopK <= 0 {
		req.TopK = TopKDefault
	}
	if r := gjson.GetBytes(payload, "top_k"); r.Exists() {
		if topK := int(r.Int()); topK >= 1 && topK <= 100 {
			req.TopK = topK
		}
	}
	return req
}

// groupKey identifies one (product, video) pairing under evaluation.
type groupKey struct {
	productID, videoID string
}

// ProcessMatchRequest implements the broker.Handler bound to match.request.
// It is idempotent on the request's event_id: a replayed request is
// acked without reprocessing (spec.md §4.6, §7: "exactly-once effects over
// at-least-once delivery").
func (e *Engine) ProcessMatchRequest(ctx context.Context, msg *broker.Message) error {
	req := e.parseMatchRequest(msg.Envelope.JobID, msg.Envelope.EventID, msg.Envelope.Payload)

	if e.cancelled.IsCancelled(ctx, req.JobID) {
		return nil
	}

	inserted, err := e.ledger.MarkProcessed(ctx, "matcher", msg.Envelope.EventID, msg.Topic, msg.Envelope.JobID)
	if err != nil {
		return pvmerrors.Transient(err)
	}
	if !inserted {
		return pvmerrors.IdempotencyConflict(nil)
	}

	storageCtx, cancelStorage := context.WithTimeout(ctx, e.timeouts.Storage)
	images, err := e.assets.ImagesByJob(storageCtx, req.JobID)
	if err != nil {
		cancelStorage()
		return pvmerrors.Transient(fmt.Errorf("matching: load images: %w", err))
	}
	frames, err := e.assets.FramesByJob(storageCtx, req.JobID)
	cancelStorage()
	if err != nil {
		return pvmerrors.Transient(fmt.Errorf("matching: load frames: %w", err))
	}

	accepted := 0
	if len(images) > 0 && len(frames) > 0 {
		accepted, err = e.matchAll(ctx, req, images, frames)
		if err != nil {
			return pvmerrors.Transient(err)
		}
	}

	// match_count doubles as the evidence stage's batch total (pkg/coordinator's
	// StageEvidenceBuild config reads TotalField="match_count" off this very
	// event), so it stays a plain map rather than events.CompletedPayload,
	// which has no such field.
	if _, err := e.bus.Publish(ctx, "match.request.completed", req.JobID, map[string]any{
		"job_id":      req.JobID,
		"event_id":    uuid.NewString(),
		"match_count": accepted,
	}); err != nil {
		return pvmerrors.Transient(fmt.Errorf("matching: publish match.request.completed: %w", err))
	}

	if e.metrics != nil {
		e.metrics.MatchesAccepted.Add(float64(accepted))
	}
	e.log.WithField("job_id", req.JobID).WithField("accepted", accepted).Info("matching: request processed")
	return nil
}

// matchAll scores every (image, frame) pair surviving retrieval, groups
// surviving pairs by (product_id, video_id), applies the acceptance gate
// per group, and persists + publishes the accepted ones.
func (e *Engine) matchAll(ctx context.Context, req MatchRequest, images []ImageAsset, frames []FrameAsset) (int, error) {
	groups := make(map[groupKey][]PairCandidate)

	for _, image := range images {
		candidates := Retrieve(image, frames, req.TopK, e.thresholds)
		for i := range candidates {
			e.scoreGeometric(ctx, &candidates[i])
			key := groupKey{productID: candidates[i].Image.ProductID, videoID: candidates[i].Frame.VideoID}
			groups[key] = append(groups[key], candidates[i])
		}
	}

	accepted := 0
	for key, pairs := range groups {
		SortPairsDescending(pairs)
		ok, fused := GroupAccepted(pairs, e.thresholds)
		if !ok {
			continue
		}

		best := pairs[0]
		m := domain.Match{
			ID:             uuid.NewString(),
			JobID:          req.JobID,
			ProductID:      key.productID,
			VideoID:        key.videoID,
			BestImageID:    best.Image.ID,
			BestFrameID:    best.Frame.ID,
			BestFrameTS:    best.Frame.Timestamp,
			ScorePair:      best.ScorePair,
			ScoreDeep:      best.SDeep,
			ScoreGeometric: best.SKp,
			ScoreFused:     fused,
			Accepted:       true,
			CreatedAt:      time.Now().UTC(),
			UpdatedAt:      time.Now().UTC(),
		}
		upsertCtx, cancelUpsert := context.WithTimeout(ctx, e.timeouts.Storage)
		err := e.matches.Upsert(upsertCtx, m)
		cancelUpsert()
		if err != nil {
			return accepted, fmt.Errorf("matching: upsert match: %w", err)
		}

		result := events.MatchResultPayload{
			JobID:     req.JobID,
			ProductID: key.productID,
			VideoID:   key.videoID,
			BestPair: events.BestPairFields{
				ImgID: best.Image.ID, FrameID: best.Frame.ID, ScorePair: best.ScorePair,
			},
			Score: fused,
			TS:    best.Frame.Timestamp,
		}
		if err := events.ValidateStruct(result); err != nil {
			return accepted, pvmerrors.SchemaViolation(fmt.Errorf("matching: build match.result: %w", err))
		}
		if _, err := e.bus.Publish(ctx, "match.result", req.JobID, result); err != nil {
			return accepted, fmt.Errorf("matching: publish match.result: %w", err)
		}
		accepted++
	}
	return accepted, nil
}

// scoreGeometric fills in c.SKp and c.ScorePair, applying the s_kp -> s_deep
// fallback whenever either blob is missing or geometric verification is
// undefined (fewer than 4 matched correspondences).
func (e *Engine) scoreGeometric(ctx context.Context, c *PairCandidate) {
	loadCtx, cancelLoad := context.WithTimeout(ctx, e.timeouts.VectorSearch)
	defer cancelLoad()

	imgSet, imgOK, err := e.keypoints.Load(loadCtx, c.Image.KeypointBlobPath)
	if err != nil || !imgOK {
		c.ScorePair, c.SKp = ScorePair(c.SDeep, 0, false, e.thresholds)
		return
	}
	frameSet, frameOK, err := e.keypoints.Load(loadCtx, c.Frame.KeypointBlobPath)
	if err != nil || !frameOK {
		c.ScorePair, c.SKp = ScorePair(c.SDeep, 0, false, e.thresholds)
		return
	}

	score, defined := e.verifyGeometricBounded(ctx, imgSet, frameSet, geometricSeed(c.Image.ID, c.Frame.ID))
	c.ScorePair, c.SKp = ScorePair(c.SDeep, score, defined, e.thresholds)
}

// verifyGeometricBounded runs VerifyGeometric off the calling goroutine so a
// RANSAC pass that overruns GeometricTimeout can be abandoned rather than
// stalling the whole match.request - an overrun is treated the same as a
// missing blob: undefined, fall back to s_deep.
func (e *Engine) verifyGeometricBounded(ctx context.Context, a, b KeypointSet, seed int64) (float64, bool) {
	type result struct {
		score   float64
		defined bool
	}
	deadlineCtx, cancel := context.WithTimeout(ctx, e.timeouts.Geometric)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		score, defined := VerifyGeometric(a, b, seed, e.thresholds.InliersMin)
		done <- result{score, defined}
	}()

	select {
	case r := <-done:
		return r.score, r.defined
	case <-deadlineCtx.Done():
		return 0, false
	}
}

// geometricSeed derives a deterministic RANSAC seed from the pair's ids so
// repeated runs over the same assets reproduce the same inlier count.
func geometricSeed(imageID, frameID string) int64 {
	var h int64 = 1469598103934665603
	for _, r := range imageID + "|" + frameID {
		h ^= int64(r)
		h *= 1099511628211
	}
	return h
}

var _ broker.Handler = (*Engine)(nil).ProcessMatchRequest
