package idempotency

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestPostgresLedger_MarkProcessed_FirstDeliveryInserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO processed_events").
		WithArgs("transition-mgr", "evt-1", "job_completed", "job-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	ledger := NewPostgresLedger(db)
	inserted, err := ledger.MarkProcessed(context.Background(), "transition-mgr", "evt-1", "job_completed", "job-1")
	require.NoError(t, err)
	require.True(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_MarkProcessed_ReplayIsNoOp(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO processed_events").
		WithArgs("transition-mgr", "evt-1", "job_completed", "job-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ledger := NewPostgresLedger(db)
	inserted, err := ledger.MarkProcessed(context.Background(), "transition-mgr", "evt-1", "job_completed", "job-1")
	require.NoError(t, err)
	require.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_MarkProcessed_RequiresEventID(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ledger := NewPostgresLedger(db)
	_, err = ledger.MarkProcessed(context.Background(), "transition-mgr", "", "job_completed", "job-1")
	require.Error(t, err)
}

func TestPostgresLedger_MarkProcessed_RequiresConsumer(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ledger := NewPostgresLedger(db)
	_, err = ledger.MarkProcessed(context.Background(), "", "evt-1", "job_completed", "job-1")
	require.Error(t, err)
}

func TestMemoryLedger_SecondMarkIsNoOp(t *testing.T) {
	l := NewMemoryLedger()
	first, err := l.MarkProcessed(context.Background(), "transition-mgr", "evt-1", "job_completed", "job-1")
	require.NoError(t, err)
	require.True(t, first)

	second, err := l.MarkProcessed(context.Background(), "transition-mgr", "evt-1", "job_completed", "job-1")
	require.NoError(t, err)
	require.False(t, second)
	require.True(t, l.Seen("transition-mgr", "evt-1"))
}

func TestMemoryLedger_SameEventDifferentConsumersBothProcess(t *testing.T) {
	l := NewMemoryLedger()
	first, err := l.MarkProcessed(context.Background(), "transition-mgr", "evt-1", "match.request.completed", "job-1")
	require.NoError(t, err)
	require.True(t, first)

	second, err := l.MarkProcessed(context.Background(), "evidence", "evt-1", "match.request.completed", "job-1")
	require.NoError(t, err)
	require.True(t, second, "a distinct consumer must process the same event_id independently")
}
