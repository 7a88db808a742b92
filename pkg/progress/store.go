package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tudragon154203/product-video-matching-sub000/pkg/domain"
)

// ErrNotFound is returned by Store.Get when no row exists for (jobID, stage).
var ErrNotFound = errors.New("progress: not found")

// Store persists JobProgress rows. Mutate wraps a read-modify-write cycle
// under a single-writer lock (Postgres SELECT ... FOR UPDATE in production)
// so concurrent asset-ready deliveries for the same (job_id, stage) never
// race past each other's Done/Failed increments - spec.md §4.4 calls this
// "serialize progress updates per (job_id, stage)".
type Store interface {
	Mutate(ctx context.Context, jobID string, stage domain.Stage, fn func(domain.JobProgress) domain.JobProgress) (domain.JobProgress, error)
	Get(ctx context.Context, jobID string, stage domain.Stage) (domain.JobProgress, error)
	// ListAwaitingWatermark returns every row whose total is known, whose
	// completion has not yet emitted, and whose watermark has been set -
	// candidates the periodic sweep (spec.md §4.4) re-evaluates so a stalled
	// stage still completes even without further asset-ready arrivals.
	ListAwaitingWatermark(ctx context.Context) ([]domain.JobProgress, error)
}

// PostgresStore is the production Store, backed by the job_progress table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore builds a PostgresStore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Mutate implements Store using SELECT ... FOR UPDATE inside a transaction
// so the read-modify-write cycle is atomic per (job_id, stage).
func (s *PostgresStore) Mutate(ctx context.Context, jobID string, stage domain.Stage, fn func(domain.JobProgress) domain.JobProgress) (domain.JobProgress, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.JobProgress{}, fmt.Errorf("progress: begin tx: %w", err)
	}
	defer tx.Rollback()

	current, err := scanProgress(tx.QueryRowContext(ctx, `
		SELECT job_id, stage, expected_total, expected_known, done, failed,
		       completion_emitted, has_partial_completion, watermark_expires_at, updated_at
		FROM job_progress
		WHERE job_id = $1 AND stage = $2
		FOR UPDATE
	`, jobID, string(stage)))
	if errors.Is(err, sql.ErrNoRows) {
		current = domain.JobProgress{JobID: jobID, Stage: stage}
	} else if err != nil {
		return domain.JobProgress{}, fmt.Errorf("progress: select for update: %w", err)
	}

	updated := fn(current)
	updated.UpdatedAt = time.Now().UTC()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO job_progress (
			job_id, stage, expected_total, expected_known, done, failed,
			completion_emitted, has_partial_completion, watermark_expires_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (job_id, stage) DO UPDATE SET
			expected_total = EXCLUDED.expected_total,
			expected_known = EXCLUDED.expected_known,
			done = EXCLUDED.done,
			failed = EXCLUDED.failed,
			completion_emitted = EXCLUDED.completion_emitted,
			has_partial_completion = EXCLUDED.has_partial_completion,
			watermark_expires_at = EXCLUDED.watermark_expires_at,
			updated_at = EXCLUDED.updated_at
	`, updated.JobID, string(updated.Stage), updated.ExpectedTotal, updated.ExpectedKnown,
		updated.Done, updated.Failed, updated.CompletionEmitted, updated.HasPartialCompletion,
		nullableTime(updated.WatermarkExpiresAt), updated.UpdatedAt); err != nil {
		return domain.JobProgress{}, fmt.Errorf("progress: upsert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.JobProgress{}, fmt.Errorf("progress: commit: %w", err)
	}
	return updated, nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, jobID string, stage domain.Stage) (domain.JobProgress, error) {
	p, err := scanProgress(s.db.QueryRowContext(ctx, `
		SELECT job_id, stage, expected_total, expected_known, done, failed,
		       completion_emitted, has_partial_completion, watermark_expires_at, updated_at
		FROM job_progress
		WHERE job_id = $1 AND stage = $2
	`, jobID, string(stage)))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.JobProgress{}, ErrNotFound
	}
	if err != nil {
		return domain.JobProgress{}, fmt.Errorf("progress: select: %w", err)
	}
	return p, nil
}

// ListAwaitingWatermark implements Store.
func (s *PostgresStore) ListAwaitingWatermark(ctx context.Context) ([]domain.JobProgress, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, stage, expected_total, expected_known, done, failed,
		       completion_emitted, has_partial_completion, watermark_expires_at, updated_at
		FROM job_progress
		WHERE expected_known = true AND completion_emitted = false AND watermark_expires_at IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("progress: list awaiting watermark: %w", err)
	}
	defer rows.Close()

	var out []domain.JobProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("progress: scan awaiting watermark: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProgress(row rowScanner) (domain.JobProgress, error) {
	var p domain.JobProgress
	var stage string
	var watermark sql.NullTime

	if err := row.Scan(&p.JobID, &stage, &p.ExpectedTotal, &p.ExpectedKnown, &p.Done, &p.Failed,
		&p.CompletionEmitted, &p.HasPartialCompletion, &watermark, &p.UpdatedAt); err != nil {
		return domain.JobProgress{}, err
	}
	p.Stage = domain.Stage(stage)
	if watermark.Valid {
		t := watermark.Time
		p.WatermarkExpiresAt = &t
	}
	return p, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

var _ Store = (*PostgresStore)(nil)
