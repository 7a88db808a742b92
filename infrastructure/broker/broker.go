// Package broker implements the event bus contract of spec.md §4.2, §6.1: a
// durable topic exchange, per-subscriber queues, DLQ with retry backoff, and
// ack-after-success semantics. The production adapter (RedisBroker) backs
// the exchange with Redis Streams consumer groups; MemoryBroker is an
// in-process fake with the same delivery semantics used by unit and
// scenario tests (spec.md §8) so C4–C8 can be exercised without a live
// Redis, the way the teacher's dispatcher_test.go exercises its Dispatcher
// with fake handlers instead of a live chain.
package broker

import (
	"context"
	"time"

	"github.com/tudragon154203/product-video-matching-sub000/pkg/events"
)

// Message is a single delivery of an event to a subscriber.
type Message struct {
	Topic         string
	Envelope      *events.Envelope
	DeliveryCount int64
}

// Handler processes one delivered message. Returning nil acks the message.
// Returning an error classified via infrastructure/errors decides whether
// the broker retries, DLQs immediately, or (idempotency conflicts) simply
// acks without side effects.
type Handler func(ctx context.Context, msg *Message) error

// SubscribeOptions tunes a single Subscribe call.
type SubscribeOptions struct {
	// GroupName identifies the logical subscriber (e.g. "transition-mgr",
	// "evidence"). Independent services subscribing to the same topic MUST
	// set distinct GroupName values, or Redis Streams consumer-group
	// semantics will split deliveries between them instead of fanning the
	// topic out to both. Defaults to "default" if empty, which is only
	// correct when exactly one logical subscriber consumes the topic.
	GroupName string
	// ConsumerName identifies this process within the subscriber group,
	// e.g. hostname-pid. Defaults to a random value if empty.
	ConsumerName string
	// Prefetch bounds concurrent in-flight handler invocations for this
	// subscription (spec.md §5: "prefetch = 10 messages/consumer").
	Prefetch int
	// ClaimInterval controls how often pending (unacked) messages past
	// their backoff window are reclaimed and retried.
	ClaimInterval time.Duration
}

// Broker is the bus contract every C4–C8 component depends on.
type Broker interface {
	// Publish validates payload against the schema registry, wraps it in
	// an Envelope, and durably appends it to topic's exchange-bound stream.
	Publish(ctx context.Context, topic, jobID string, payload any) (*events.Envelope, error)

	// Subscribe declares queue.<topic> bound to the exchange and delivers
	// messages to handler at-least-once until ctx is cancelled.
	Subscribe(ctx context.Context, topic string, opts SubscribeOptions, handler Handler) error

	// Close releases broker resources.
	Close() error
}
