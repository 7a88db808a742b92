package evidence

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// PostgresStore persists evidence paths onto the matches table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore builds a PostgresStore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// SetEvidencePath implements Store.
func (s *PostgresStore) SetEvidencePath(ctx context.Context, jobID, productID, videoID, path string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE matches SET evidence_path = $1, updated_at = now()
		WHERE job_id = $2 AND product_id = $3 AND video_id = $4
	`, path, jobID, productID, videoID)
	if err != nil {
		return fmt.Errorf("evidence: update evidence_path: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store fake for tests.
type MemoryStore struct {
	mu    sync.Mutex
	paths map[string]string
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{paths: make(map[string]string)}
}

// SetEvidencePath implements Store.
func (s *MemoryStore) SetEvidencePath(_ context.Context, jobID, productID, videoID, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths[jobID+"/"+productID+"/"+videoID] = path
	return nil
}

// PathFor returns the path recorded for one match, for test assertions.
func (s *MemoryStore) PathFor(jobID, productID, videoID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.paths[jobID+"/"+productID+"/"+videoID]
	return p, ok
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
