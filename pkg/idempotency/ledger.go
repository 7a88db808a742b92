// Package idempotency implements the exactly-once-processing ledger C3 of
// spec.md §4.3: a UNIQUE(consumer, event_id) table that turns the broker's
// at-least-once delivery into effectively-once handling, per independent
// subscriber. Grounded on the teacher's
// services/requests/supabase.Repository.MarkProcessedEvent, which returns
// (inserted bool, err error) so callers can short-circuit a replayed
// delivery; here the existence check plus insert is replaced by a single
// "INSERT ... ON CONFLICT DO NOTHING" round trip against Postgres directly,
// since Postgres's RowsAffected gives the same answer atomically without
// the teacher's separate HasProcessedEvent probe. The consumer dimension
// exists because spec.md §6.1 has more than one service subscribe to the
// same topic (e.g. both the transition manager and the evidence
// coordinator consume match.request.completed) - without it, the first
// consumer to mark an event processed would silently hide it from the
// second.
package idempotency

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Ledger records which events have already been handled by which consumer.
type Ledger interface {
	// MarkProcessed attempts to insert (consumer, eventID) into the ledger.
	// It returns true if this call performed the insert (first delivery to
	// this consumer), false if the row already existed (a replay spec.md
	// §4.3 says must be a no-op).
	MarkProcessed(ctx context.Context, consumer, eventID, topic, jobID string) (bool, error)
}

// PostgresLedger is the production Ledger backed by the processed_events
// table (infrastructure/database/migrations/0001_init.up.sql).
type PostgresLedger struct {
	db Querier
}

// Querier is satisfied by *sql.DB and *sql.Tx, so MarkProcessed can run
// either standalone or inside the caller's transaction when the handler's
// side effects must commit atomically with the ledger insert.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// NewPostgresLedger builds a PostgresLedger over db.
func NewPostgresLedger(db Querier) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// MarkProcessed implements Ledger.
func (l *PostgresLedger) MarkProcessed(ctx context.Context, consumer, eventID, topic, jobID string) (bool, error) {
	if eventID == "" {
		return false, fmt.Errorf("idempotency: event_id is required")
	}
	if consumer == "" {
		return false, fmt.Errorf("idempotency: consumer is required")
	}

	res, err := l.db.ExecContext(ctx, `
		INSERT INTO processed_events (consumer, event_id, topic, job_id, processed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (consumer, event_id) DO NOTHING
	`, consumer, eventID, topic, jobID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("idempotency: insert processed_events: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("idempotency: rows affected: %w", err)
	}
	return rows == 1, nil
}

var _ Ledger = (*PostgresLedger)(nil)
