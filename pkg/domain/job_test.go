package domain

import "testing"

func TestPhaseTerminal(t *testing.T) {
	cases := map[Phase]bool{
		PhaseCollection:        false,
		PhaseFeatureExtraction: false,
		PhaseMatching:          false,
		PhaseEvidence:          false,
		PhaseCompleted:         true,
		PhaseFailed:            true,
		PhaseCancelled:         true,
	}
	for phase, want := range cases {
		if got := phase.Terminal(); got != want {
			t.Errorf("Phase(%q).Terminal() = %v, want %v", phase, got, want)
		}
	}
}

func TestJobStatusPercent(t *testing.T) {
	cases := []struct {
		phase Phase
		want  int
	}{
		{PhaseCollection, 20},
		{PhaseFeatureExtraction, 50},
		{PhaseMatching, 80},
		{PhaseEvidence, 90},
		{PhaseCompleted, 100},
		{PhaseFailed, 0},
		{PhaseCancelled, 0},
	}
	for _, c := range cases {
		j := &Job{Phase: c.phase}
		if got := j.StatusPercent(); got != c.want {
			t.Errorf("Job{Phase: %q}.StatusPercent() = %d, want %d", c.phase, got, c.want)
		}
	}
}

func TestJobProgressRemaining(t *testing.T) {
	p := &JobProgress{ExpectedKnown: false}
	if got := p.Remaining(); got != -1 {
		t.Errorf("Remaining() with unknown expected = %d, want -1", got)
	}

	p = &JobProgress{ExpectedKnown: true, ExpectedTotal: 10, Done: 7, Failed: 1}
	if got := p.Remaining(); got != 2 {
		t.Errorf("Remaining() = %d, want 2", got)
	}

	p = &JobProgress{ExpectedKnown: true, ExpectedTotal: 5, Done: 5, Failed: 2}
	if got := p.Remaining(); got != 0 {
		t.Errorf("Remaining() should clamp at 0, got %d", got)
	}
}
