package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pvmerrors "github.com/tudragon154203/product-video-matching-sub000/infrastructure/errors"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/events"
)

func TestMemoryBroker_PublishDeliversToBoundHandler(t *testing.T) {
	b := NewMemoryBroker(events.NewRegistry(), 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *Message, 1)
	go func() {
		_ = b.Subscribe(ctx, "job_completed", SubscribeOptions{}, func(_ context.Context, msg *Message) error {
			received <- msg
			return nil
		})
	}()
	// Give the subscriber goroutine a moment to register its handler.
	time.Sleep(10 * time.Millisecond)

	_, err := b.Publish(ctx, "job_completed", "job-1", map[string]any{"job_id": "job-1"})
	require.NoError(t, err)

	select {
	case msg := <-received:
		require.Equal(t, "job_completed", msg.Topic)
		require.Equal(t, int64(1), msg.DeliveryCount)
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestMemoryBroker_SchemaViolationGoesStraightToDeadLetter(t *testing.T) {
	b := NewMemoryBroker(events.NewRegistry(), 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = b.Subscribe(ctx, "job_completed", SubscribeOptions{}, func(_ context.Context, msg *Message) error {
			return pvmerrors.SchemaViolation(require.AnError)
		})
	}()
	time.Sleep(10 * time.Millisecond)

	_, err := b.Publish(ctx, "job_completed", "job-1", map[string]any{"job_id": "job-1"})
	require.NoError(t, err)

	dead := b.DeadLetters()
	require.Len(t, dead, 1)
	require.Equal(t, "schema_violation", dead[0].Reason)
}

func TestMemoryBroker_TransientFailureRetriesThenDeadLetters(t *testing.T) {
	b := NewMemoryBroker(events.NewRegistry(), 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := 0
	go func() {
		_ = b.Subscribe(ctx, "job_completed", SubscribeOptions{}, func(_ context.Context, msg *Message) error {
			attempts++
			return pvmerrors.Transient(require.AnError)
		})
	}()
	time.Sleep(10 * time.Millisecond)

	_, err := b.Publish(ctx, "job_completed", "job-1", map[string]any{"job_id": "job-1"})
	require.NoError(t, err)

	require.Equal(t, 3, attempts)
	dead := b.DeadLetters()
	require.Len(t, dead, 1)
	require.Equal(t, "max_redeliver_exceeded", dead[0].Reason)
}

func TestMemoryBroker_IdempotencyConflictIsSilentlyAcked(t *testing.T) {
	b := NewMemoryBroker(events.NewRegistry(), 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := 0
	go func() {
		_ = b.Subscribe(ctx, "job_completed", SubscribeOptions{}, func(_ context.Context, msg *Message) error {
			attempts++
			return pvmerrors.IdempotencyConflict(nil)
		})
	}()
	time.Sleep(10 * time.Millisecond)

	_, err := b.Publish(ctx, "job_completed", "job-1", map[string]any{"job_id": "job-1"})
	require.NoError(t, err)

	require.Equal(t, 1, attempts)
	require.Empty(t, b.DeadLetters())
}

func TestMemoryBroker_PublishRejectsUnknownTopic(t *testing.T) {
	b := NewMemoryBroker(events.NewRegistry(), 3)
	_, err := b.Publish(context.Background(), "not_a_real_topic", "job-1", map[string]any{})
	require.Error(t, err)
	require.Equal(t, pvmerrors.ClassSchemaViolation, pvmerrors.ClassOf(err))
}
