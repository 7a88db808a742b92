package phasemachine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tudragon154203/product-video-matching-sub000/pkg/domain"
)

// PostgresJobStore is the production JobStore, backed by the jobs table.
type PostgresJobStore struct {
	db *sql.DB
}

// NewPostgresJobStore builds a PostgresJobStore.
func NewPostgresJobStore(db *sql.DB) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

// Create implements JobStore.
func (s *PostgresJobStore) Create(ctx context.Context, job domain.Job) error {
	queries, err := json.Marshal(job.Queries)
	if err != nil {
		return fmt.Errorf("phasemachine: marshal queries: %w", err)
	}
	platforms, err := json.Marshal(job.Platforms)
	if err != nil {
		return fmt.Errorf("phasemachine: marshal platforms: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (job_id, phase, industry, top_amz, top_ebay, queries, platforms, recency_days, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, job.ID, string(job.Phase), job.Industry, job.TopAmz, job.TopEbay, queries, platforms, job.RecencyDays, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("phasemachine: insert job: %w", err)
	}
	return nil
}

// Get implements JobStore.
func (s *PostgresJobStore) Get(ctx context.Context, jobID string) (domain.Job, error) {
	var (
		job                      domain.Job
		phase                    string
		queries, platforms       []byte
		cancelledAt              sql.NullTime
		cancellationReason       sql.NullString
		cancellationNotes        sql.NullString
	)

	row := s.db.QueryRowContext(ctx, `
		SELECT job_id, phase, industry, top_amz, top_ebay, queries, platforms, recency_days,
		       products_count, videos_count, images_count, frames_count,
		       started_at, updated_at, cancelled_at, cancellation_reason, cancellation_notes
		FROM jobs WHERE job_id = $1
	`, jobID)

	if err := row.Scan(&job.ID, &phase, &job.Industry, &job.TopAmz, &job.TopEbay, &queries, &platforms, &job.RecencyDays,
		&job.Counts.Products, &job.Counts.Videos, &job.Counts.Images, &job.Counts.Frames,
		&job.CreatedAt, &job.UpdatedAt, &cancelledAt, &cancellationReason, &cancellationNotes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Job{}, ErrJobNotFound
		}
		return domain.Job{}, fmt.Errorf("phasemachine: select job: %w", err)
	}

	job.Phase = domain.Phase(phase)
	_ = json.Unmarshal(queries, &job.Queries)
	_ = json.Unmarshal(platforms, &job.Platforms)
	if cancelledAt.Valid {
		t := cancelledAt.Time
		job.CancelledAt = &t
	}
	job.CancellationReason = cancellationReason.String
	job.CancellationNotes = cancellationNotes.String
	job.AssetScope = domain.AssetScope{HasProducts: job.Counts.Products > 0 || job.ProductSetID != "", HasVideos: job.Counts.Videos > 0 || job.VideoSetID != ""}
	return job, nil
}

// UpdatePhase implements JobStore.
func (s *PostgresJobStore) UpdatePhase(ctx context.Context, jobID string, phase domain.Phase, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET phase = $1, updated_at = $2 WHERE job_id = $3`, string(phase), now, jobID)
	if err != nil {
		return fmt.Errorf("phasemachine: update phase: %w", err)
	}
	return nil
}

// Cancel implements JobStore.
func (s *PostgresJobStore) Cancel(ctx context.Context, jobID, reason, notes string, now time.Time) (domain.Job, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET phase = $1, cancelled_at = $2, cancellation_reason = $3, cancellation_notes = $4, updated_at = $2
		WHERE job_id = $5
	`, string(domain.PhaseCancelled), now, reason, notes, jobID)
	if err != nil {
		return domain.Job{}, fmt.Errorf("phasemachine: cancel job: %w", err)
	}
	return s.Get(ctx, jobID)
}

// Delete implements JobStore, cascading per spec.md §4.10's deletion order.
// The whole cascade runs in one transaction so a failure partway through
// never leaves the job half-deleted.
func (s *PostgresJobStore) Delete(ctx context.Context, jobID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("phasemachine: cascade delete: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmts := []string{
		`DELETE FROM matches WHERE job_id = $1`,
		`DELETE FROM video_frames WHERE job_id = $1`,
		`DELETE FROM product_images WHERE job_id = $1`,
		`DELETE FROM videos WHERE job_id = $1`,
		`DELETE FROM products WHERE job_id = $1`,
		`DELETE FROM phase_events WHERE job_id = $1`,
		`DELETE FROM processed_events WHERE job_id = $1`,
		`DELETE FROM jobs WHERE job_id = $1`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, jobID); err != nil {
			return fmt.Errorf("phasemachine: cascade delete: %w", err)
		}
	}
	return tx.Commit()
}

// PostgresPhaseEventStore is the production PhaseEventStore.
type PostgresPhaseEventStore struct {
	db *sql.DB
}

// NewPostgresPhaseEventStore builds a PostgresPhaseEventStore.
func NewPostgresPhaseEventStore(db *sql.DB) *PostgresPhaseEventStore {
	return &PostgresPhaseEventStore{db: db}
}

// RecordCompletion implements PhaseEventStore using the same
// INSERT...ON CONFLICT DO NOTHING pattern as the idempotency ledger, over
// phase_events' UNIQUE(job_id, trigger_topic) index - spec.md §4.8's "last
// line of defense for duplicate transitions".
func (s *PostgresPhaseEventStore) RecordCompletion(ctx context.Context, jobID, topic, eventID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO phase_events (job_id, from_phase, to_phase, trigger_topic, trigger_event_id, created_at)
		VALUES ($1, '', '', $2, $3, $4)
		ON CONFLICT (job_id, trigger_topic) DO NOTHING
	`, jobID, topic, eventID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("phasemachine: insert phase_events: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("phasemachine: rows affected: %w", err)
	}
	return rows == 1, nil
}

// ReceivedTopics implements PhaseEventStore.
func (s *PostgresPhaseEventStore) ReceivedTopics(ctx context.Context, jobID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT trigger_topic FROM phase_events WHERE job_id = $1`, jobID)
	if err != nil {
		return nil, fmt.Errorf("phasemachine: select phase_events: %w", err)
	}
	defer rows.Close()

	received := make(map[string]bool)
	for rows.Next() {
		var topic string
		if err := rows.Scan(&topic); err != nil {
			return nil, fmt.Errorf("phasemachine: scan phase_events: %w", err)
		}
		received[topic] = true
	}
	return received, rows.Err()
}

var (
	_ JobStore        = (*PostgresJobStore)(nil)
	_ PhaseEventStore = (*PostgresPhaseEventStore)(nil)
)
