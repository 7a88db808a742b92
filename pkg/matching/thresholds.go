package matching

import "time"

// Timeouts bounds the three kinds of blocking work one ProcessMatchRequest
// call does: loading assets/persisting matches (Storage), loading keypoint
// blobs (VectorSearch - the keypoint store backs the same content-addressed
// blob layer the embedding search would), and RANSAC geometric verification
// (Geometric). Fields are used as given; a zero field is not replaced by
// its DefaultTimeouts() value.
type Timeouts struct {
	Geometric    time.Duration
	VectorSearch time.Duration
	Storage      time.Duration
}

// DefaultTimeouts returns the spec-documented defaults (GEOMETRIC_TIMEOUT=2s,
// VECTOR_SEARCH_TIMEOUT=5s, STORAGE_TIMEOUT=10s).
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Geometric:    2 * time.Second,
		VectorSearch: 5 * time.Second,
		Storage:      10 * time.Second,
	}
}

// Thresholds holds every operator-tunable gate the matcher engine applies
// during retrieval, scoring and acceptance (spec.md §4.6, §6's operational
// contract: "SIM_DEEP_MIN / INLIERS_MIN / MATCH_BEST_MIN / MATCH_CONS_MIN /
// MATCH_ACCEPT are environment-tunable"). Engine reads these instead of
// hardcoded constants so an operator can retune acceptance behavior per
// deployment without a rebuild.
type Thresholds struct {
	// SimDeepMin is the minimum deep-similarity score a retrieval candidate
	// must clear to survive into pair scoring.
	SimDeepMin float64
	// InliersMin is the minimum RANSAC inlier ratio a geometric verification
	// must clear to count as defined; below it, s_kp falls back to s_deep
	// exactly like a missing keypoint blob.
	InliersMin float64
	// MatchBestMin is the minimum score_pair the single best pair in a
	// (product, video) group must clear.
	MatchBestMin float64
	// MatchConsMin is both the minimum count of pairs at or above
	// SimDeepMin needed to call a match "consistent", and the width of the
	// top-N window FuseGroupScore averages over.
	MatchConsMin int
	// MatchAccept is the fused-score acceptance threshold for a group.
	MatchAccept float64
	// WeightRGB and WeightGray are the channel weights for deep similarity.
	WeightRGB, WeightGray float64
	// WeightDeep and WeightGeometric are the weights fusing s_deep and s_kp
	// into score_pair.
	WeightDeep, WeightGeometric float64
	// TopK is the retrieval fan-out per image when a match.request omits
	// top_k.
	TopK int
}

// DefaultThresholds returns the spec-documented defaults, used whenever a
// caller (tests, or a Config with unset fields) does not supply its own.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SimDeepMin:      0.82,
		InliersMin:      0.35,
		MatchBestMin:    0.88,
		MatchConsMin:    2,
		MatchAccept:     0.80,
		WeightRGB:       0.7,
		WeightGray:      0.3,
		WeightDeep:      0.6,
		WeightGeometric: 0.4,
		TopK:            TopKDefault,
	}
}
