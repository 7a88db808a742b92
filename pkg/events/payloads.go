package events

import "github.com/go-playground/validator/v10"

var structValidator = validator.New()

// CompletedPayload is the shape every job-level *.completed event carries
// (spec.md §4.1: "Every job-level *.completed schema MUST require
// { job_id, event_id }").
type CompletedPayload struct {
	JobID               string `json:"job_id" validate:"required"`
	EventID             string `json:"event_id" validate:"required"`
	TotalAssets         int    `json:"total_assets"`
	ProcessedAssets     int    `json:"processed_assets"`
	FailedAssets        int    `json:"failed_assets"`
	HasPartialCompletion bool  `json:"has_partial_completion"`
	WatermarkTTL        int    `json:"watermark_ttl,omitempty"`
}

// BatchTotalPayload is a generic job_id/event_id/total shape (spec.md §4.1:
// "total_* >= 0"). The registered *.ready.batch / *.masked.batch topics carry
// their count as total_images or total_keyframes rather than total, and no
// publisher in this module builds this type.
type BatchTotalPayload struct {
	JobID   string `json:"job_id" validate:"required"`
	EventID string `json:"event_id" validate:"required"`
	Total   int    `json:"total" validate:"min=0"`
}

// MatchResultPayload is the match.result wire shape (spec.md §6.1).
type MatchResultPayload struct {
	JobID     string        `json:"job_id" validate:"required"`
	ProductID string        `json:"product_id" validate:"required"`
	VideoID   string        `json:"video_id" validate:"required"`
	BestPair  BestPairFields `json:"best_pair" validate:"required"`
	Score     float64       `json:"score" validate:"min=0,max=1"`
	TS        float64       `json:"ts" validate:"min=0"`
}

// BestPairFields is the nested best_pair object on match.result.
type BestPairFields struct {
	ImgID     string  `json:"img_id" validate:"required"`
	FrameID   string  `json:"frame_id" validate:"required"`
	ScorePair float64 `json:"score_pair" validate:"min=0,max=1"`
}

// MatchRequestPayload is the match.request wire shape (spec.md §6.1).
type MatchRequestPayload struct {
	JobID        string `json:"job_id" validate:"required"`
	Industry     string `json:"industry"`
	ProductSetID string `json:"product_set_id" validate:"required"`
	VideoSetID   string `json:"video_set_id" validate:"required"`
	TopK         int    `json:"top_k" validate:"min=1,max=100"`
	EventID      string `json:"event_id" validate:"required"`
}

// ValidateStruct runs go-playground/validator struct-tag validation over v,
// used for the strict, typed payloads this package constructs before they
// are handed to the schema Registry's looser field-presence check.
func ValidateStruct(v any) error {
	return structValidator.Struct(v)
}
