package broker

import (
	"context"
	"sync"

	pvmerrors "github.com/tudragon154203/product-video-matching-sub000/infrastructure/errors"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/events"
)

// DeadLetter records one message MemoryBroker routed to a topic's DLQ.
type DeadLetter struct {
	Topic    string
	Envelope *events.Envelope
	Reason   string
}

// MemoryBroker is an in-process Broker fake with the same ack/retry/DLQ
// semantics as RedisBroker, minus durability: Publish delivers synchronously
// to whatever handler is currently bound to the topic, retrying inline up to
// MaxRedeliver times before recording a DeadLetter. Used by pkg/coordinator,
// pkg/phasemachine, pkg/matching and internal/integrationsim tests so the S1-S6
// scenarios (spec.md §8) can be replayed without a live Redis, mirroring how
// the teacher's dispatcher_test.go drives a Dispatcher with plain function
// handlers instead of a live transport.
type MemoryBroker struct {
	mu           sync.Mutex
	registry     *events.Registry
	handlers     map[string][]subscriber // topic -> every bound logical subscriber, fanned out independently
	nextSubID    int64
	published    map[string][]*events.Envelope
	deadLetters  []DeadLetter
	maxRedeliver int
	closed       bool
}

type subscriber struct {
	id      int64
	handler Handler
}

// NewMemoryBroker builds a MemoryBroker validating against registry.
func NewMemoryBroker(registry *events.Registry, maxRedeliver int) *MemoryBroker {
	if maxRedeliver <= 0 {
		maxRedeliver = 5
	}
	return &MemoryBroker{
		registry:     registry,
		handlers:     make(map[string][]subscriber),
		published:    make(map[string][]*events.Envelope),
		maxRedeliver: maxRedeliver,
	}
}

// Publish implements Broker. Every handler currently bound to topic is
// invoked (retried inline on transient failure), independently of the
// others, modeling the topic exchange fanning out to each subscriber's own
// queue; if none are bound the envelope is only recorded for Published.
func (b *MemoryBroker) Publish(ctx context.Context, topic, jobID string, payload any) (*events.Envelope, error) {
	envelope, err := events.NewEnvelope(topic, jobID, payload)
	if err != nil {
		return nil, pvmerrors.SchemaViolation(err)
	}
	if err := b.registry.Validate(topic, envelope.Payload); err != nil {
		return nil, pvmerrors.SchemaViolation(err)
	}

	b.mu.Lock()
	b.published[topic] = append(b.published[topic], envelope)
	subs := make([]subscriber, len(b.handlers[topic]))
	copy(subs, b.handlers[topic])
	b.mu.Unlock()

	for _, sub := range subs {
		b.deliver(ctx, topic, envelope, sub.handler)
	}
	return envelope, nil
}

// Subscribe implements Broker. Each call registers an independent logical
// subscriber for topic - multiple Subscribe calls on the same topic each
// receive every message, matching RedisBroker's per-GroupName fan-out. It
// blocks until ctx is cancelled.
func (b *MemoryBroker) Subscribe(ctx context.Context, topic string, _ SubscribeOptions, handler Handler) error {
	b.mu.Lock()
	b.nextSubID++
	id := b.nextSubID
	b.handlers[topic] = append(b.handlers[topic], subscriber{id: id, handler: handler})
	b.mu.Unlock()

	<-ctx.Done()

	b.mu.Lock()
	subs := b.handlers[topic]
	for i, sub := range subs {
		if sub.id == id {
			b.handlers[topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	return nil
}

func (b *MemoryBroker) deliver(ctx context.Context, topic string, envelope *events.Envelope, handler Handler) {
	var deliveryCount int64 = 1
	for {
		err := handler(ctx, &Message{Topic: topic, Envelope: envelope, DeliveryCount: deliveryCount})
		if err == nil {
			return
		}
		if pvmerrors.ClassOf(err) == pvmerrors.ClassIdempotencyConflict {
			return
		}
		if pvmerrors.ClassOf(err) == pvmerrors.ClassSchemaViolation {
			b.recordDeadLetter(topic, envelope, "schema_violation")
			return
		}
		if deliveryCount >= int64(b.maxRedeliver) {
			b.recordDeadLetter(topic, envelope, "max_redeliver_exceeded")
			return
		}
		deliveryCount++
	}
}

func (b *MemoryBroker) recordDeadLetter(topic string, envelope *events.Envelope, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deadLetters = append(b.deadLetters, DeadLetter{Topic: topic, Envelope: envelope, Reason: reason})
}

// Published returns every envelope published to topic, in order. Intended
// for test assertions.
func (b *MemoryBroker) Published(topic string) []*events.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*events.Envelope, len(b.published[topic]))
	copy(out, b.published[topic])
	return out
}

// DeadLetters returns every message routed to a DLQ so far.
func (b *MemoryBroker) DeadLetters() []DeadLetter {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]DeadLetter, len(b.deadLetters))
	copy(out, b.deadLetters)
	return out
}

// Close implements Broker.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
