// Package evidence implements the evidence coordinator C7 of spec.md §4.7:
// per-pair artifact work against every match.result, completion tracking
// identical in shape to pkg/coordinator's fan-out stages (match.result is
// its "ready" event, match.request.completed carries the pair count as its
// batch total), and the zero-match fast path. Grounded on pkg/coordinator,
// generalized via its WithReadyHook option so the evidence-specific
// artifact step runs inline with the same idempotent ready/batch/watermark
// machinery every other stage uses.
package evidence

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/broker"
)

// Store persists the rendered evidence artifact's path against the match
// row it was built for, keyed the same way matches are upserted
// (job_id, product_id, video_id).
type Store interface {
	SetEvidencePath(ctx context.Context, jobID, productID, videoID, path string) error
}

// Builder renders (conceptually - the actual pixel composition is outside
// this module's scope) and records one evidence artifact per accepted
// match.result.
type Builder struct {
	store Store
}

// NewBuilder builds a Builder over store.
func NewBuilder(store Store) *Builder {
	return &Builder{store: store}
}

// BuildForMatchResult implements the per-pair artifact step: it derives a
// deterministic evidence path from the match.result payload's identifying
// fields and persists it.
func (b *Builder) BuildForMatchResult(ctx context.Context, msg *broker.Message) error {
	payload := msg.Envelope.Payload
	jobID := gjson.GetBytes(payload, "job_id").String()
	productID := gjson.GetBytes(payload, "product_id").String()
	videoID := gjson.GetBytes(payload, "video_id").String()
	imgID := gjson.GetBytes(payload, "best_pair.img_id").String()
	frameID := gjson.GetBytes(payload, "best_pair.frame_id").String()

	path := EvidencePath(jobID, productID, videoID, imgID, frameID)
	if err := b.store.SetEvidencePath(ctx, jobID, productID, videoID, path); err != nil {
		return fmt.Errorf("evidence: set evidence_path: %w", err)
	}
	return nil
}

// EvidencePath derives the on-disk location of one match's evidence image
// under the data root's evidence/ directory (spec.md §5: "Blob store ...
// evidence/"), deterministic so redelivery of the same match.result
// recomputes the same path instead of accumulating orphaned files.
func EvidencePath(jobID, productID, videoID, imgID, frameID string) string {
	return fmt.Sprintf("evidence/%s/%s_%s_%s_%s.png", jobID, productID, videoID, imgID, frameID)
}
