package matching

import "sort"

// TopKDefault is used when a match.request omits top_k and no Thresholds
// override supplies its own TopK.
const TopKDefault = 20

// Retrieve scores every frame in frames against image by combined deep
// similarity, drops anything below t.SimDeepMin, and keeps the topK
// survivors sorted best-first (spec.md §4.6: "top-K=20").
func Retrieve(image ImageAsset, frames []FrameAsset, topK int, t Thresholds) []PairCandidate {
	if topK <= 0 {
		topK = t.TopK
	}
	if topK <= 0 {
		topK = TopKDefault
	}

	var candidates []PairCandidate
	for _, frame := range frames {
		sDeep := CombinedSimilarity(image.EmbRGB, image.EmbGray, frame.EmbRGB, frame.EmbGray, t.WeightRGB, t.WeightGray)
		if sDeep < t.SimDeepMin {
			continue
		}
		candidates = append(candidates, PairCandidate{Image: image, Frame: frame, SDeep: sDeep})
	}

	SortPairsDescending(candidates)
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates
}

// SortPairsDescending orders pairs by the deterministic tie-break chain
// spec.md §4.6 mandates for reproducible output: score_pair desc, s_deep
// desc, frame timestamp asc, then (image_id, frame_id) lexically asc.
func SortPairsDescending(pairs []PairCandidate) {
	sort.SliceStable(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if a.ScorePair != b.ScorePair {
			return a.ScorePair > b.ScorePair
		}
		if a.SDeep != b.SDeep {
			return a.SDeep > b.SDeep
		}
		if a.Frame.Timestamp != b.Frame.Timestamp {
			return a.Frame.Timestamp < b.Frame.Timestamp
		}
		if a.Image.ID != b.Image.ID {
			return a.Image.ID < b.Image.ID
		}
		return a.Frame.ID < b.Frame.ID
	})
}
