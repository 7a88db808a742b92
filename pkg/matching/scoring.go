package matching

// ScorePair fuses deep similarity and geometric verification into one pair
// score (spec.md §4.6: "score_pair = WEIGHT_DEEP*s_deep + WEIGHT_GEOMETRIC*
// s_kp when s_kp is defined, else score_pair = s_deep"). kpDefined is false
// when either keypoint blob was missing or geometric verification never
// cleared t.InliersMin, in which case s_kp falls back to s_deep.
func ScorePair(sDeep, sKp float64, kpDefined bool, t Thresholds) (scorePair float64, effectiveSKp float64) {
	if !kpDefined {
		return sDeep, sDeep
	}
	return t.WeightDeep*sDeep + t.WeightGeometric*sKp, sKp
}

// FuseGroupScore combines a (product,video) group's best pair with the
// mean of its top-MATCH_CONS_MIN pairs into the final acceptance score
// (spec.md §4.6: "fused score = max*0.5 + mean(top-MATCH_CONS_MIN)*0.5").
func FuseGroupScore(pairs []PairCandidate, t Thresholds) float64 {
	if len(pairs) == 0 {
		return 0
	}

	max := pairs[0].ScorePair
	for _, p := range pairs {
		if p.ScorePair > max {
			max = p.ScorePair
		}
	}

	n := len(pairs)
	if t.MatchConsMin > 0 && n > t.MatchConsMin {
		n = t.MatchConsMin
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += pairs[i].ScorePair
	}
	mean := sum / float64(n)

	return max*0.5 + mean*0.5
}

// GroupAccepted applies the acceptance gate to a sorted (descending by
// ScorePair) set of pairs belonging to one (product,video) group
// (spec.md §4.6): the best pair must clear t.MatchBestMin, at least
// t.MatchConsMin pairs must clear t.SimDeepMin, and the fused group score
// must clear t.MatchAccept.
func GroupAccepted(sortedPairs []PairCandidate, t Thresholds) (accepted bool, fusedScore float64) {
	if len(sortedPairs) == 0 {
		return false, 0
	}

	best := sortedPairs[0]
	if best.ScorePair < t.MatchBestMin {
		return false, 0
	}

	consistent := 0
	for _, p := range sortedPairs {
		if p.SDeep >= t.SimDeepMin {
			consistent++
		}
	}
	if consistent < t.MatchConsMin {
		return false, 0
	}

	fused := FuseGroupScore(sortedPairs, t)
	if fused < t.MatchAccept {
		return false, fused
	}
	return true, fused
}
