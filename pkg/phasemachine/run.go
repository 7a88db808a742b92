package phasemachine

import (
	"context"

	"github.com/tudragon154203/product-video-matching-sub000/infrastructure/broker"
)

// CompletionTopics lists the eight job-level completion events spec.md §4.8
// says the transition manager "consumes only": the two collection-stage
// completions, the four feature-extraction-stage completions, the
// matcher's completion, and the evidence coordinator's completion.
func CompletionTopics() []string {
	return []string{
		"products.collections.completed",
		"videos.collections.completed",
		"image.embeddings.completed",
		"video.embeddings.completed",
		"image.keypoints.completed",
		"video.keypoints.completed",
		"match.request.completed",
		"evidences.generation.completed",
	}
}

// Run subscribes to every topic CompletionTopics lists until ctx is
// cancelled, folding each delivery into HandleCompletion. All eight
// subscriptions share one consumer group identity ("transition-mgr") since
// they're all owned by this single logical subscriber.
func (m *Manager) Run(ctx context.Context, bus broker.Broker, opts broker.SubscribeOptions) error {
	opts.GroupName = "transition-mgr"

	errc := make(chan error, len(CompletionTopics()))
	for _, topic := range CompletionTopics() {
		topic := topic
		go func() {
			errc <- bus.Subscribe(ctx, topic, opts, func(ctx context.Context, msg *broker.Message) error {
				return m.HandleCompletion(ctx, msg.Envelope.JobID, msg.Topic, msg.Envelope.EventID)
			})
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errc:
		return err
	}
}
