// Package domain holds the plain data model of spec.md §3: jobs, the phase
// state machine's persisted trail, the idempotency ledger, per-stage
// progress, and the product/video/match asset graph. Grounded on the
// teacher's domain/trigger and domain/automation packages: flat structs,
// string-typed enums, no behavior beyond simple predicates.
package domain

import "time"

// Phase is a job's position in the pipeline state machine (spec.md §4.8).
type Phase string

const (
	PhaseCollection       Phase = "collection"
	PhaseFeatureExtraction Phase = "feature_extraction"
	PhaseMatching         Phase = "matching"
	PhaseEvidence         Phase = "evidence"
	PhaseCompleted        Phase = "completed"
	PhaseFailed           Phase = "failed"
	PhaseCancelled        Phase = "cancelled"
)

// Terminal reports whether p admits no further transitions.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseCompleted, PhaseFailed, PhaseCancelled:
		return true
	default:
		return false
	}
}

// AssetScope records which asset types a job actually requested, since a
// products-only or videos-only job's required-completion set is narrower
// (spec.md §4.8: "asset-type-aware completion requirements").
type AssetScope struct {
	HasProducts bool
	HasVideos   bool
}

// AssetCounts is the running asset inventory a status response surfaces
// (spec.md §3: "asset counters (products, videos, images, frames)").
type AssetCounts struct {
	Products int
	Videos   int
	Images   int
	Frames   int
}

// Job is the root aggregate spec.md §3 describes.
type Job struct {
	ID           string
	Industry     string
	ProductSetID string
	VideoSetID   string
	Queries      []string
	Platforms    []string
	TopAmz       int
	TopEbay      int
	RecencyDays  int
	Phase        Phase
	AssetScope   AssetScope
	Counts       AssetCounts
	FailureCode  string
	CancellationReason string
	CancellationNotes  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
	CancelledAt  *time.Time
}

// StatusPercent maps Phase to the coarse progress percentage external
// callers see through JobService.GetStatus (spec.md §7).
func (j *Job) StatusPercent() int {
	switch j.Phase {
	case PhaseCollection:
		return 20
	case PhaseFeatureExtraction:
		return 50
	case PhaseMatching:
		return 80
	case PhaseEvidence:
		return 90
	case PhaseCompleted:
		return 100
	case PhaseFailed, PhaseCancelled:
		return 0
	default:
		return 0
	}
}
