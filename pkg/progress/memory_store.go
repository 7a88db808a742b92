package progress

import (
	"context"
	"sync"
	"time"

	"github.com/tudragon154203/product-video-matching-sub000/pkg/domain"
)

type progressKey struct {
	jobID string
	stage domain.Stage
}

// MemoryStore is an in-process Store fake used by pkg/coordinator and
// internal/integrationsim tests. A single mutex stands in for Postgres's
// per-row SELECT ... FOR UPDATE lock.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[progressKey]domain.JobProgress
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[progressKey]domain.JobProgress)}
}

// Mutate implements Store.
func (s *MemoryStore) Mutate(_ context.Context, jobID string, stage domain.Stage, fn func(domain.JobProgress) domain.JobProgress) (domain.JobProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := progressKey{jobID: jobID, stage: stage}
	current, ok := s.rows[key]
	if !ok {
		current = domain.JobProgress{JobID: jobID, Stage: stage}
	}

	updated := fn(current)
	updated.UpdatedAt = time.Now().UTC()
	s.rows[key] = updated
	return updated, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, jobID string, stage domain.Stage) (domain.JobProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.rows[progressKey{jobID: jobID, stage: stage}]
	if !ok {
		return domain.JobProgress{}, ErrNotFound
	}
	return p, nil
}

// ListAwaitingWatermark implements Store.
func (s *MemoryStore) ListAwaitingWatermark(_ context.Context) ([]domain.JobProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.JobProgress
	for _, p := range s.rows {
		if p.ExpectedKnown && !p.CompletionEmitted && p.WatermarkExpiresAt != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
