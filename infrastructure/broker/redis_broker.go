package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	pvmerrors "github.com/tudragon154203/product-video-matching-sub000/infrastructure/errors"
	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/logging"
	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/metrics"
	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/resilience"
	"github.com/tudragon154203/product-video-matching-sub000/pkg/events"
)

// RedisBroker backs the exchange contract of spec.md §4.2 with Redis
// Streams: each topic is a stream, each Subscribe call binds a consumer
// group ("queue.<topic>.<GroupName>") to it, and unacked entries are reclaimed and
// retried with exponential backoff before being routed to a per-topic DLQ
// stream. Grounded on the teacher's pkg/pgnotify bus (topic registration,
// handler dispatch, per-message ack) generalized from Postgres NOTIFY/LISTEN
// to Redis Streams so retries and a DLQ become expressible.
type RedisBroker struct {
	client   *redis.Client
	registry *events.Registry
	metrics  *metrics.Metrics
	log      *logging.Logger

	maxRedeliver int
	minBackoff   time.Duration
	maxBackoff   time.Duration

	mu     sync.Mutex
	closed bool
}

// RedisBrokerConfig configures a RedisBroker.
type RedisBrokerConfig struct {
	Addr         string
	Password     string
	DB           int
	MaxRedeliver int
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
}

// NewRedisBroker dials Redis and returns a ready-to-use broker.
func NewRedisBroker(cfg RedisBrokerConfig, registry *events.Registry, m *metrics.Metrics, log *logging.Logger) *RedisBroker {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	maxRedeliver := cfg.MaxRedeliver
	if maxRedeliver <= 0 {
		maxRedeliver = 5
	}
	minBackoff := cfg.MinBackoff
	if minBackoff <= 0 {
		minBackoff = time.Second
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 5 * time.Minute
	}

	return &RedisBroker{
		client:       client,
		registry:     registry,
		metrics:      m,
		log:          log,
		maxRedeliver: maxRedeliver,
		minBackoff:   minBackoff,
		maxBackoff:   maxBackoff,
	}
}

func streamKey(topic string) string { return "pvm.stream." + topic }
func dlqKey(topic string) string    { return "pvm.stream." + topic + ".dlq" }

// groupName derives the Redis consumer-group name for one logical
// subscriber of topic. Distinct subscribers of the same topic must pass
// distinct SubscribeOptions.GroupName so the topic fans out to each of
// them independently instead of load-balancing across them.
func groupName(topic, subscriber string) string {
	if subscriber == "" {
		subscriber = "default"
	}
	return "queue." + topic + "." + subscriber
}

// Publish implements Broker.
func (b *RedisBroker) Publish(ctx context.Context, topic, jobID string, payload any) (*events.Envelope, error) {
	envelope, err := events.NewEnvelope(topic, jobID, payload)
	if err != nil {
		return nil, pvmerrors.SchemaViolation(fmt.Errorf("broker: build envelope: %w", err))
	}

	if err := b.registry.Validate(topic, envelope.Payload); err != nil {
		return nil, pvmerrors.SchemaViolation(err)
	}

	raw, err := json.Marshal(envelope)
	if err != nil {
		return nil, pvmerrors.SchemaViolation(fmt.Errorf("broker: marshal envelope: %w", err))
	}

	if err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(topic),
		Values: map[string]any{"envelope": raw},
	}).Err(); err != nil {
		return nil, pvmerrors.Transient(fmt.Errorf("broker: xadd %s: %w", topic, err))
	}

	if b.metrics != nil {
		b.metrics.EventsPublished.WithLabelValues(topic).Inc()
	}
	return envelope, nil
}

// Subscribe implements Broker. It blocks until ctx is cancelled, running
// both a new-message loop and a pending-entry claim loop concurrently.
func (b *RedisBroker) Subscribe(ctx context.Context, topic string, opts SubscribeOptions, handler Handler) error {
	stream := streamKey(topic)
	group := groupName(topic, opts.GroupName)

	if err := b.client.XGroupCreateMkStream(ctx, stream, group, "0").Err(); err != nil {
		if !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("broker: create group %s: %w", group, err)
		}
	}

	consumer := opts.ConsumerName
	if consumer == "" {
		consumer = events.NewEventID()
	}
	prefetch := opts.Prefetch
	if prefetch <= 0 {
		prefetch = 10
	}
	claimInterval := opts.ClaimInterval
	if claimInterval <= 0 {
		claimInterval = 5 * time.Second
	}

	sem := make(chan struct{}, prefetch)
	var wg sync.WaitGroup

	claimTicker := time.NewTicker(claimInterval)
	defer claimTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-claimTicker.C:
			b.reclaimPending(ctx, topic, stream, group, consumer, handler, sem, &wg)
		default:
		}

		res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    int64(prefetch),
			Block:    time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			b.log.WithField("topic", topic).WithField("error", err).Warn("broker: xreadgroup failed")
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				msg := msg
				sem <- struct{}{}
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer func() { <-sem }()
					b.handleDelivery(ctx, topic, group, msg, 1, handler)
				}()
			}
		}
	}
}

func (b *RedisBroker) reclaimPending(
	ctx context.Context,
	topic, stream, group, consumer string,
	handler Handler,
	sem chan struct{},
	wg *sync.WaitGroup,
) {
	pending, err := b.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  100,
	}).Result()
	if err != nil {
		return
	}

	for _, p := range pending {
		deliveries := p.RetryCount
		backoff := resilience.BackoffForAttempt(int(deliveries-1), b.minBackoff, b.maxBackoff)
		if p.Idle < backoff {
			continue
		}

		claimed, err := b.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   stream,
			Group:    group,
			Consumer: consumer,
			MinIdle:  backoff,
			Messages: []string{p.ID},
		}).Result()
		if err != nil || len(claimed) == 0 {
			continue
		}

		if b.metrics != nil {
			b.metrics.RedeliveryTotal.WithLabelValues(topic).Inc()
		}

		msg := claimed[0]
		sem <- struct{}{}
		wg.Add(1)
		go func(deliveries int64) {
			defer wg.Done()
			defer func() { <-sem }()
			b.handleDelivery(ctx, topic, group, msg, deliveries+1, handler)
		}(deliveries)
	}
}

func (b *RedisBroker) handleDelivery(ctx context.Context, topic, group string, msg redis.XMessage, deliveryCount int64, handler Handler) {
	raw, _ := msg.Values["envelope"].(string)
	var envelope events.Envelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		b.deadLetter(ctx, topic, group, msg.ID, raw, "unmarshal_failed")
		return
	}

	timer := prometheusTimer(b.metrics, topic)
	err := handler(ctx, &Message{Topic: topic, Envelope: &envelope, DeliveryCount: deliveryCount})
	timer()

	switch {
	case err == nil:
		b.ack(ctx, topic, group, msg.ID)
		if b.metrics != nil {
			b.metrics.EventsConsumed.WithLabelValues(topic).Inc()
		}
	case pvmerrors.ClassOf(err) == pvmerrors.ClassIdempotencyConflict:
		b.ack(ctx, topic, group, msg.ID)
		if b.metrics != nil {
			b.metrics.EventsDuplicate.WithLabelValues(topic).Inc()
		}
	case pvmerrors.ClassOf(err) == pvmerrors.ClassSchemaViolation:
		b.deadLetter(ctx, topic, group, msg.ID, raw, "schema_violation")
	case deliveryCount >= int64(b.maxRedeliver):
		b.deadLetter(ctx, topic, group, msg.ID, raw, "max_redeliver_exceeded")
	default:
		b.log.WithField("topic", topic).WithField("delivery_count", deliveryCount).
			WithField("error", err).Warn("broker: handler failed, leaving pending for retry")
	}
}

func (b *RedisBroker) ack(ctx context.Context, topic, group, id string) {
	if err := b.client.XAck(ctx, streamKey(topic), group, id).Err(); err != nil {
		b.log.WithField("topic", topic).WithField("error", err).Warn("broker: xack failed")
	}
}

func (b *RedisBroker) deadLetter(ctx context.Context, topic, group, id, raw, reason string) {
	if err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: dlqKey(topic),
		Values: map[string]any{"envelope": raw, "reason": reason, "original_id": id},
	}).Err(); err != nil {
		b.log.WithField("topic", topic).WithField("error", err).Warn("broker: dlq xadd failed")
	}
	b.ack(ctx, topic, group, id)
	if b.metrics != nil {
		b.metrics.EventsDLQd.WithLabelValues(topic, reason).Inc()
	}
}

// Close implements Broker.
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.client.Close()
}

func prometheusTimer(m *metrics.Metrics, topic string) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.HandlerDuration.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	}
}
