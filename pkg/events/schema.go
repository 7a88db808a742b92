package events

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Schema describes one topic's payload contract: its canonical underscore
// name, its dotted routing-key alias, and the fields that must be present
// (spec.md §4.1). additionalProperties are always allowed; only Required is
// enforced, matching "required fields are strict" / "forward-compat
// expected" from spec.md §4.1.
type Schema struct {
	Canonical string   // e.g. "image_embeddings_completed"
	Alias     string    // e.g. "image.embeddings.completed" (the routing key)
	Required  []string // top-level JSON fields that must be present and non-empty
	Kind      Kind
}

// Kind classifies a topic for the generic completion/ready/batch handling
// spec.md §4.1 describes.
type Kind int

const (
	KindOther Kind = iota
	KindJobCompleted
	KindAssetReady
	KindBatchTotal
)

// Registry resolves both canonical and alias topic names to their Schema
// and validates payloads against it.
type Registry struct {
	byName map[string]*Schema // canonical and alias both point here
}

// NewRegistry builds the canonical schema set for every topic in spec.md §6.1.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]*Schema)}
	for _, s := range defaultSchemas() {
		r.register(s)
	}
	return r
}

func (r *Registry) register(s Schema) {
	schema := s
	r.byName[schema.Canonical] = &schema
	if schema.Alias != "" {
		r.byName[schema.Alias] = &schema
	}
}

// Resolve returns the canonical routing key for name, which may be the
// dotted alias or the underscore canonical form (spec.md §9: "a single
// logical event admits two textual names").
func (r *Registry) Resolve(name string) (string, bool) {
	s, ok := r.byName[name]
	if !ok {
		return "", false
	}
	return s.Alias, true
}

// Lookup returns the Schema registered for name (canonical or alias).
func (r *Registry) Lookup(name string) (*Schema, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Validate checks payload against the schema registered for topic. An
// unknown topic name is itself a schema violation: spec.md §4.1 requires
// "reject unknown names at validation time".
func (r *Registry) Validate(topic string, payload []byte) error {
	schema, ok := r.Lookup(topic)
	if !ok {
		return fmt.Errorf("events: unknown topic %q", topic)
	}

	for _, field := range schema.Required {
		result := gjson.GetBytes(payload, field)
		if !result.Exists() || isBlank(result) {
			return fmt.Errorf("events: topic %q missing required field %q", topic, field)
		}
	}
	return nil
}

func isBlank(r gjson.Result) bool {
	switch r.Type {
	case gjson.String:
		return strings.TrimSpace(r.Str) == ""
	case gjson.Null:
		return true
	default:
		return false
	}
}

func defaultSchemas() []Schema {
	return []Schema{
		{Canonical: "products_collect_request", Alias: "products.collect.request", Kind: KindOther,
			Required: []string{"job_id", "queries", "top_amz", "top_ebay"}},
		{Canonical: "videos_search_request", Alias: "videos.search.request", Kind: KindOther,
			Required: []string{"job_id", "industry", "queries", "platforms", "recency_days"}},

		{Canonical: "products_image_ready", Alias: "products.image.ready", Kind: KindAssetReady,
			Required: []string{"job_id", "product_id", "image_id", "local_path", "event_id"}},
		{Canonical: "products_images_ready_batch", Alias: "products.images.ready.batch", Kind: KindBatchTotal,
			Required: []string{"job_id", "event_id", "total_images"}},
		{Canonical: "products_collections_completed", Alias: "products.collections.completed", Kind: KindJobCompleted,
			Required: []string{"job_id", "event_id"}},

		{Canonical: "videos_keyframes_ready", Alias: "videos.keyframes.ready", Kind: KindAssetReady,
			Required: []string{"job_id", "video_id", "frames", "event_id"}},
		{Canonical: "videos_keyframes_ready_batch", Alias: "videos.keyframes.ready.batch", Kind: KindBatchTotal,
			Required: []string{"job_id", "event_id", "total_keyframes"}},
		{Canonical: "videos_collections_completed", Alias: "videos.collections.completed", Kind: KindJobCompleted,
			Required: []string{"job_id", "event_id"}},

		{Canonical: "products_image_masked", Alias: "products.image.masked", Kind: KindAssetReady,
			Required: []string{"job_id", "event_id", "image_id", "mask_path"}},
		{Canonical: "products_images_masked_batch", Alias: "products.images.masked.batch", Kind: KindBatchTotal,
			Required: []string{"job_id", "event_id", "total_images"}},
		{Canonical: "video_keyframes_masked", Alias: "video.keyframes.masked", Kind: KindAssetReady,
			Required: []string{"job_id", "event_id", "video_id", "frames"}},
		{Canonical: "video_keyframes_masked_batch", Alias: "video.keyframes.masked.batch", Kind: KindBatchTotal,
			Required: []string{"job_id", "event_id", "total_keyframes"}},

		{Canonical: "image_embedding_ready", Alias: "image.embedding.ready", Kind: KindAssetReady,
			Required: []string{"job_id", "asset_id", "event_id"}},
		{Canonical: "image_embeddings_completed", Alias: "image.embeddings.completed", Kind: KindJobCompleted,
			Required: []string{"job_id", "event_id"}},
		{Canonical: "video_embedding_ready", Alias: "video.embedding.ready", Kind: KindAssetReady,
			Required: []string{"job_id", "asset_id", "event_id"}},
		{Canonical: "video_embeddings_completed", Alias: "video.embeddings.completed", Kind: KindJobCompleted,
			Required: []string{"job_id", "event_id"}},
		{Canonical: "image_keypoint_ready", Alias: "image.keypoint.ready", Kind: KindAssetReady,
			Required: []string{"job_id", "asset_id", "event_id"}},
		{Canonical: "image_keypoints_completed", Alias: "image.keypoints.completed", Kind: KindJobCompleted,
			Required: []string{"job_id", "event_id"}},
		{Canonical: "video_keypoint_ready", Alias: "video.keypoint.ready", Kind: KindAssetReady,
			Required: []string{"job_id", "asset_id", "event_id"}},
		{Canonical: "video_keypoints_completed", Alias: "video.keypoints.completed", Kind: KindJobCompleted,
			Required: []string{"job_id", "event_id"}},

		{Canonical: "match_request", Alias: "match.request", Kind: KindOther,
			Required: []string{"job_id", "industry", "product_set_id", "video_set_id", "top_k", "event_id"}},
		{Canonical: "match_result", Alias: "match.result", Kind: KindOther,
			Required: []string{"job_id", "product_id", "video_id", "best_pair", "score", "ts"}},
		{Canonical: "match_request_completed", Alias: "match.request.completed", Kind: KindJobCompleted,
			Required: []string{"job_id", "event_id"}},

		{Canonical: "evidences_generation_completed", Alias: "evidences.generation.completed", Kind: KindJobCompleted,
			Required: []string{"job_id", "event_id"}},

		{Canonical: "job_completed", Alias: "job.completed", Kind: KindOther,
			Required: []string{"job_id"}},
	}
}
