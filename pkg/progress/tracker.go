// Package progress implements the per-(job_id, stage) completion tracker
// C4 of spec.md §4.4: it accumulates ready/failed asset counts against an
// expected total and decides, under a single-writer lock, when to emit the
// stage's *.completed event - at 100%, as soon as the configured
// partial-completion threshold is reached, or, once the watermark TTL
// expires, with whatever has arrived.
package progress

import (
	"math"
	"time"

	"github.com/tudragon154203/product-video-matching-sub000/pkg/domain"
)

// Outcome describes what happened to a JobProgress row update and what, if
// anything, the caller must now emit.
type Outcome struct {
	Progress        domain.JobProgress
	ShouldEmit       bool
	HasPartial       bool
	WatermarkStarted bool
}

// Evaluate is the pure completion predicate, independent of storage: given
// the current progress row, the threshold percentage, and "now", it decides
// whether a *.completed event should fire.
//
// Rules (spec.md §4.4):
//   - A stage with expected_total == 0 (zero-asset fast path) completes
//     immediately with has_partial_completion = false.
//   - Once expected is known and done+failed == expected, complete at 100%.
//   - Complete as soon as done >= ceil(expected * pct / 100), independent of
//     watermark state - a stage that reaches the threshold early does not
//     wait out the watermark TTL. Such a completion is flagged
//     has_partial_completion = true.
//   - Below the threshold, once now has reached the watermark expiry,
//     complete with whatever has arrived, flagged has_partial_completion =
//     true. SweepWatermarks re-evaluates stalled rows so this fires without
//     another asset-ready arrival.
//   - A completion already emitted for this stage never re-fires.
func Evaluate(p domain.JobProgress, thresholdPct int, now time.Time) Outcome {
	if p.CompletionEmitted {
		return Outcome{Progress: p}
	}

	if !p.ExpectedKnown {
		return Outcome{Progress: p}
	}

	if p.ExpectedTotal == 0 {
		p.CompletionEmitted = true
		p.HasPartialCompletion = false
		return Outcome{Progress: p, ShouldEmit: true}
	}

	settled := p.Done + p.Failed
	if settled >= p.ExpectedTotal {
		p.CompletionEmitted = true
		p.HasPartialCompletion = false
		return Outcome{Progress: p, ShouldEmit: true}
	}

	required := RequiredForThreshold(p.ExpectedTotal, thresholdPct)
	if p.Done >= required {
		p.CompletionEmitted = true
		p.HasPartialCompletion = true
		return Outcome{Progress: p, ShouldEmit: true, HasPartial: true}
	}

	// Below threshold: once the watermark TTL has elapsed, complete with
	// whatever has arrived; before that, stay pending.
	if p.WatermarkExpiresAt != nil && !now.Before(*p.WatermarkExpiresAt) {
		p.CompletionEmitted = true
		p.HasPartialCompletion = true
		return Outcome{Progress: p, ShouldEmit: true, HasPartial: true}
	}
	return Outcome{Progress: p}
}

// RequiredForThreshold returns ceil(expected * pct / 100), the minimum done
// count to satisfy the partial-completion threshold (spec.md §4.4).
func RequiredForThreshold(expected, pct int) int {
	if expected <= 0 {
		return 0
	}
	return int(math.Ceil(float64(expected) * float64(pct) / 100.0))
}

// ApplyBatchTotal folds a *.ready.batch / *.masked.batch total into p. A
// duplicate batch total for a stage already holding a total uses the later
// (most recently observed) value, per spec.md §4.4's "last write wins for
// duplicate batch-total events" rule - at-least-once delivery means the
// same batch total can arrive more than once, and there is no ordering
// guarantee beyond "use whatever arrived most recently".
func ApplyBatchTotal(p domain.JobProgress, total int, watermarkTTL time.Duration, now time.Time) domain.JobProgress {
	p.ExpectedTotal = total
	p.ExpectedKnown = true
	if p.WatermarkExpiresAt == nil {
		expiry := now.Add(watermarkTTL)
		p.WatermarkExpiresAt = &expiry
	}
	return p
}

// ApplyAssetReady records one successfully processed asset. If the stage's
// completion was already emitted, the caller must ignore the asset for
// phase-advancement purposes (spec.md §4.4: "late arrivals after a
// watermark completion are recorded but do not retrigger emission") - this
// function still increments Done so operators can see the eventual true
// count, it just never flips ShouldEmit for an already-completed stage.
func ApplyAssetReady(p domain.JobProgress) domain.JobProgress {
	p.Done++
	return p
}

// ApplyAssetFailed records one failed asset.
func ApplyAssetFailed(p domain.JobProgress) domain.JobProgress {
	p.Failed++
	return p
}
