package matching

import (
	"context"

	"github.com/tudragon154203/product-video-matching-sub000/pkg/domain"
)

// AssetStore reads the feature-ready product images and video frames a
// match.request scopes over. Both are scoped by job_id: the product/video
// set identifiers a job was started with determine what gets collected
// into that job's rows, so retrieval only needs the job_id to find them.
type AssetStore interface {
	ImagesByJob(ctx context.Context, jobID string) ([]ImageAsset, error)
	FramesByJob(ctx context.Context, jobID string) ([]FrameAsset, error)
}

// KeypointLoader resolves a keypoint blob path to its decoded contents.
// Returning ok=false models a missing blob (spec.md §4.6: "if either blob
// missing, s_kp := s_deep").
type KeypointLoader interface {
	Load(ctx context.Context, blobPath string) (set KeypointSet, ok bool, err error)
}

// MatchStore persists accepted matches, upserted by (job_id, product_id,
// video_id) (spec.md §4.6).
type MatchStore interface {
	Upsert(ctx context.Context, m domain.Match) error
}
