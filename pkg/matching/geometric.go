package matching

import (
	"math"
	"math/rand"
)

// Keypoint is one local feature: a 2D image-plane location plus its
// descriptor vector, as written by the upstream keypoint-extraction worker
// into a content-addressed blob (spec.md §5: "mask/embedding/keypoint blobs
// are content-addressed and write-once").
type Keypoint struct {
	X, Y       float64
	Descriptor []float64
}

// KeypointSet is the decoded contents of one keypoint blob.
type KeypointSet struct {
	Keypoints []Keypoint
}

const (
	ransacIterations     = 200
	ransacInlierTolerance = 3.0 // pixels, in the frame's keypoint coordinate space
	loweRatioThreshold    = 0.75
)

// VerifyGeometric runs descriptor matching followed by a RANSAC-style
// consensus fit to estimate how many correspondences agree on a single
// uniform-scale-plus-translation transform, the geometric verification spec.md §4.6 describes:
// "s_kp = inliers / total_matches; undefined if total_matches < 4". A ratio
// below inliersMin is also treated as undefined (spec.md §4.6 step 3:
// "reject pairs below INLIERS_MIN inlier ratio"), falling back to s_deep
// exactly like a missing blob or too few correspondences.
//
// The second return value reports whether the score is defined.
func VerifyGeometric(a, b KeypointSet, seed int64, inliersMin float64) (score float64, defined bool) {
	correspondences := matchDescriptors(a.Keypoints, b.Keypoints)
	if len(correspondences) < 4 {
		return 0, false
	}

	inliers := ransacInlierCount(correspondences, seed)
	ratio := float64(inliers) / float64(len(correspondences))
	if ratio < inliersMin {
		return 0, false
	}
	return ratio, true
}

type correspondence struct {
	a, b Keypoint
}

// matchDescriptors finds, for each keypoint in a, its nearest neighbor in b
// by Euclidean descriptor distance, keeping the match only if it passes
// Lowe's ratio test against the second-nearest neighbor - the standard
// way to discard ambiguous matches before geometric verification.
func matchDescriptors(a, b []Keypoint) []correspondence {
	var out []correspondence
	for _, kp := range a {
		bestDist, secondDist := math.MaxFloat64, math.MaxFloat64
		bestIdx := -1
		for j, candidate := range b {
			d := descriptorDistance(kp.Descriptor, candidate.Descriptor)
			if d < bestDist {
				secondDist = bestDist
				bestDist = d
				bestIdx = j
			} else if d < secondDist {
				secondDist = d
			}
		}
		if bestIdx < 0 {
			continue
		}
		if secondDist == 0 || bestDist/secondDist < loweRatioThreshold {
			out = append(out, correspondence{a: kp, b: b[bestIdx]})
		}
	}
	return out
}

func descriptorDistance(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return math.MaxFloat64
	}
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// ransacInlierCount fits a 2D similarity transform (translation + uniform
// scale, no rotation) from randomly sampled correspondence pairs over a
// fixed number of iterations and returns the largest inlier consensus
// found, the classic RANSAC loop specialized to a 2-point minimal sample.
func ransacInlierCount(correspondences []correspondence, seed int64) int {
	rng := rand.New(rand.NewSource(seed))
	best := 0

	for iter := 0; iter < ransacIterations; iter++ {
		i, j := samplePair(rng, len(correspondences))
		transform, ok := fitSimilarity(correspondences[i], correspondences[j])
		if !ok {
			continue
		}

		inliers := 0
		for _, c := range correspondences {
			px, py := transform.apply(c.a.X, c.a.Y)
			if math.Hypot(px-c.b.X, py-c.b.Y) <= ransacInlierTolerance {
				inliers++
			}
		}
		if inliers > best {
			best = inliers
		}
	}
	return best
}

func samplePair(rng *rand.Rand, n int) (int, int) {
	i := rng.Intn(n)
	j := rng.Intn(n)
	if j == i {
		j = (j + 1) % n
	}
	return i, j
}

type similarityTransform struct {
	scale          float64
	tx, ty         float64
}

func (t similarityTransform) apply(x, y float64) (float64, float64) {
	return t.scale*x + t.tx, t.scale*y + t.ty
}

// fitSimilarity solves for a uniform-scale translation transform mapping
// p.a -> p.b and q.a -> q.b using the distance ratio between the two pairs
// as the scale estimate.
func fitSimilarity(p, q correspondence) (similarityTransform, bool) {
	srcDist := math.Hypot(q.a.X-p.a.X, q.a.Y-p.a.Y)
	dstDist := math.Hypot(q.b.X-p.b.X, q.b.Y-p.b.Y)
	if srcDist == 0 {
		return similarityTransform{}, false
	}

	scale := dstDist / srcDist
	tx := p.b.X - scale*p.a.X
	ty := p.b.Y - scale*p.a.Y
	return similarityTransform{scale: scale, tx: tx, ty: ty}, true
}
