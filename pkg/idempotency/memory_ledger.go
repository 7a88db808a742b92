package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/tudragon154203/product-video-matching-sub000/pkg/domain"
)

// MemoryLedger is an in-process Ledger fake used by pkg/coordinator,
// pkg/matching and internal/integrationsim tests in place of Postgres.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]domain.ProcessedEvent // keyed by consumer+"/"+event_id
}

// NewMemoryLedger builds an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]domain.ProcessedEvent)}
}

// MarkProcessed implements Ledger.
func (l *MemoryLedger) MarkProcessed(_ context.Context, consumer, eventID, topic, jobID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := consumer + "/" + eventID
	if _, exists := l.entries[key]; exists {
		return false, nil
	}
	l.entries[key] = domain.ProcessedEvent{
		Consumer:    consumer,
		EventID:     eventID,
		Topic:       topic,
		JobID:       jobID,
		ProcessedAt: time.Now().UTC(),
	}
	return true, nil
}

// Seen reports whether (consumer, eventID) has already been marked processed.
func (l *MemoryLedger) Seen(consumer, eventID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[consumer+"/"+eventID]
	return ok
}

var _ Ledger = (*MemoryLedger)(nil)
