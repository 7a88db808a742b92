package matching

import "testing"

func TestRetrieve_DropsBelowSimDeepMin(t *testing.T) {
	image := ImageAsset{ID: "img1", EmbRGB: []float64{1, 0}, EmbGray: []float64{1, 0}}
	frames := []FrameAsset{
		{ID: "f1", EmbRGB: []float64{1, 0}, EmbGray: []float64{1, 0}},  // sDeep = 1.0
		{ID: "f2", EmbRGB: []float64{0, 1}, EmbGray: []float64{0, 1}}, // sDeep = 0.0, dropped
	}

	got := Retrieve(image, frames, 20, DefaultThresholds())
	if len(got) != 1 || got[0].Frame.ID != "f1" {
		t.Fatalf("expected only f1 to survive, got %+v", got)
	}
}

func TestRetrieve_CapsAtTopK(t *testing.T) {
	image := ImageAsset{ID: "img1", EmbRGB: []float64{1, 0}, EmbGray: []float64{1, 0}}
	var frames []FrameAsset
	for i := 0; i < 5; i++ {
		frames = append(frames, FrameAsset{ID: string(rune('a' + i)), EmbRGB: []float64{1, 0}, EmbGray: []float64{1, 0}})
	}

	got := Retrieve(image, frames, 3, DefaultThresholds())
	if len(got) != 3 {
		t.Fatalf("expected topK=3 cap, got %d", len(got))
	}
}

func TestRetrieve_ZeroTopKUsesDefault(t *testing.T) {
	image := ImageAsset{ID: "img1", EmbRGB: []float64{1, 0}, EmbGray: []float64{1, 0}}
	frames := []FrameAsset{{ID: "f1", EmbRGB: []float64{1, 0}, EmbGray: []float64{1, 0}}}

	got := Retrieve(image, frames, 0, DefaultThresholds())
	if len(got) != 1 {
		t.Fatalf("expected default top-K to still admit the one candidate")
	}
}

func TestSortPairsDescending_TieBreaksDeterministically(t *testing.T) {
	pairs := []PairCandidate{
		{ScorePair: 0.9, SDeep: 0.9, Frame: FrameAsset{ID: "fz", Timestamp: 2}, Image: ImageAsset{ID: "imgB"}},
		{ScorePair: 0.9, SDeep: 0.9, Frame: FrameAsset{ID: "fa", Timestamp: 1}, Image: ImageAsset{ID: "imgA"}},
	}
	SortPairsDescending(pairs)
	if pairs[0].Frame.Timestamp != 1 {
		t.Fatalf("expected earlier timestamp to sort first on a full tie, got %+v", pairs[0])
	}
}
