package matching

import (
	"context"
	"sync"

	"github.com/tudragon154203/product-video-matching-sub000/pkg/domain"
)

// MemoryAssetStore is an in-process AssetStore fake for tests.
type MemoryAssetStore struct {
	Images map[string][]ImageAsset // keyed by job_id
	Frames map[string][]FrameAsset
}

// NewMemoryAssetStore builds an empty MemoryAssetStore.
func NewMemoryAssetStore() *MemoryAssetStore {
	return &MemoryAssetStore{Images: make(map[string][]ImageAsset), Frames: make(map[string][]FrameAsset)}
}

// ImagesByJob implements AssetStore.
func (s *MemoryAssetStore) ImagesByJob(_ context.Context, jobID string) ([]ImageAsset, error) {
	return s.Images[jobID], nil
}

// FramesByJob implements AssetStore.
func (s *MemoryAssetStore) FramesByJob(_ context.Context, jobID string) ([]FrameAsset, error) {
	return s.Frames[jobID], nil
}

// MemoryMatchStore is an in-process MatchStore fake for tests.
type MemoryMatchStore struct {
	mu      sync.Mutex
	matches map[string]domain.Match // keyed by job_id/product_id/video_id
}

// NewMemoryMatchStore builds an empty MemoryMatchStore.
func NewMemoryMatchStore() *MemoryMatchStore {
	return &MemoryMatchStore{matches: make(map[string]domain.Match)}
}

// Upsert implements MatchStore.
func (s *MemoryMatchStore) Upsert(_ context.Context, m domain.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[m.JobID+"/"+m.ProductID+"/"+m.VideoID] = m
	return nil
}

// All returns every upserted match, for test assertions.
func (s *MemoryMatchStore) All() []domain.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Match, 0, len(s.matches))
	for _, m := range s.matches {
		out = append(out, m)
	}
	return out
}

// MemoryKeypointLoader is an in-process KeypointLoader fake for tests.
type MemoryKeypointLoader struct {
	Blobs map[string]KeypointSet
}

// NewMemoryKeypointLoader builds a MemoryKeypointLoader over blobs.
func NewMemoryKeypointLoader(blobs map[string]KeypointSet) *MemoryKeypointLoader {
	return &MemoryKeypointLoader{Blobs: blobs}
}

// Load implements KeypointLoader.
func (l *MemoryKeypointLoader) Load(_ context.Context, blobPath string) (KeypointSet, bool, error) {
	if blobPath == "" {
		return KeypointSet{}, false, nil
	}
	set, ok := l.Blobs[blobPath]
	return set, ok, nil
}

var (
	_ AssetStore     = (*MemoryAssetStore)(nil)
	_ MatchStore     = (*MemoryMatchStore)(nil)
	_ KeypointLoader = (*MemoryKeypointLoader)(nil)
)
