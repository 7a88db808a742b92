// Package phasemachine implements the job phase transition manager C8 of
// spec.md §4.8: a pure transition table over (current phase, received
// completions, asset scope), wrapped by a stateful evaluator that persists
// phase_events and the job row. Grounded on the teacher's domain/automation
// trigger-evaluation split (a pure rule-matching function separate from the
// stateful scheduler that calls it), generalized from cron/webhook rule
// matching to job-level completion-set matching.
package phasemachine

import "github.com/tudragon154203/product-video-matching-sub000/pkg/domain"

// Result is the outcome of evaluating one phase against its received
// completion set.
type Result struct {
	NextPhase           domain.Phase
	Transitioned        bool
	PublishMatchRequest bool // true only when this evaluation transitions into PhaseMatching
}

// RequiredCompletions returns the job-level *.completed topics phase must
// observe before advancing, narrowed by scope for products-only/videos-only
// jobs (spec.md §4.8: "asset-type-aware completion requirements").
func RequiredCompletions(phase domain.Phase, scope domain.AssetScope) []string {
	switch phase {
	case domain.PhaseCollection:
		var req []string
		if scope.HasProducts {
			req = append(req, "products.collections.completed")
		}
		if scope.HasVideos {
			req = append(req, "videos.collections.completed")
		}
		return req
	case domain.PhaseFeatureExtraction:
		var req []string
		if scope.HasProducts {
			req = append(req, "image.embeddings.completed", "image.keypoints.completed")
		}
		if scope.HasVideos {
			req = append(req, "video.embeddings.completed", "video.keypoints.completed")
		}
		return req
	case domain.PhaseMatching:
		return []string{"match.request.completed"}
	case domain.PhaseEvidence:
		return []string{"evidences.generation.completed"}
	default:
		return nil
	}
}

func nextPhase(phase domain.Phase) domain.Phase {
	switch phase {
	case domain.PhaseCollection:
		return domain.PhaseFeatureExtraction
	case domain.PhaseFeatureExtraction:
		return domain.PhaseMatching
	case domain.PhaseMatching:
		return domain.PhaseEvidence
	case domain.PhaseEvidence:
		return domain.PhaseCompleted
	default:
		return phase
	}
}

// Evaluate is the pure barrier predicate: given the phase a job currently
// sits in, the set of job-level completion topics observed so far, and its
// asset scope, it decides whether every required completion has arrived
// and, if so, what the next phase is.
//
// A job's phase never regresses through this function; the caller (Cancel,
// unrecoverable-fault handling) is responsible for jumping straight to
// failed/cancelled outside the DAG Evaluate walks.
func Evaluate(phase domain.Phase, received map[string]bool, scope domain.AssetScope) Result {
	if phase.Terminal() {
		return Result{NextPhase: phase}
	}

	required := RequiredCompletions(phase, scope)
	if len(required) == 0 {
		return Result{NextPhase: phase}
	}

	for _, topic := range required {
		if !received[topic] {
			return Result{NextPhase: phase}
		}
	}

	next := nextPhase(phase)
	return Result{
		NextPhase:           next,
		Transitioned:        true,
		PublishMatchRequest: next == domain.PhaseMatching,
	}
}

// StatusPercent is the percent-complete mapping spec.md §4.8 defines for
// external status responses, duplicated here (rather than only living on
// domain.Job) so callers that only have a bare Phase - e.g. a status
// response builder that never loaded the full Job row - can still render
// it without a domain.Job value.
func StatusPercent(phase domain.Phase) int {
	switch phase {
	case domain.PhaseCollection:
		return 20
	case domain.PhaseFeatureExtraction:
		return 50
	case domain.PhaseMatching:
		return 80
	case domain.PhaseEvidence:
		return 90
	case domain.PhaseCompleted:
		return 100
	default:
		return 0
	}
}
