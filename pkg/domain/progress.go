package domain

import "time"

// Stage identifies one of the fan-out completion groups spec.md §4.4 and
// §4.7 track independently: two collection stages, four feature-extraction
// stages, and the evidence-build stage, each keyed by (job_id, stage).
type Stage string

const (
	StageProductImages   Stage = "segmentor-images"
	StageVideoFrames     Stage = "segmentor-frames"
	StageImageEmbeddings Stage = "embedding-images"
	StageVideoEmbeddings Stage = "embedding-videos"
	StageImageKeypoints  Stage = "keypoints-images"
	StageVideoKeypoints  Stage = "keypoints-frames"
	StageEvidenceBuild   Stage = "evidence-build"
)

// PhaseEvent is one row of the job's append-only transition trail (spec.md
// §3: "phase_events records every transition with its trigger").
type PhaseEvent struct {
	ID        int64
	JobID     string
	FromPhase Phase
	ToPhase   Phase
	TriggerTopic string
	TriggerEventID string
	CreatedAt time.Time
}

// ProcessedEvent is one row of the idempotency ledger (spec.md §4.3, C3):
// a UNIQUE(consumer, event_id) row inserted before a handler's side effects commit,
// so replays of an at-least-once delivery are detected and skipped.
type ProcessedEvent struct {
	Consumer    string
	EventID     string
	Topic       string
	JobID       string
	ProcessedAt time.Time
}

// JobProgress is the per-(job_id, stage) completion tracker spec.md §4.4
// describes: an expected total (once known), a done/failed count, and the
// bookkeeping needed to decide when to emit the stage's *.completed event.
type JobProgress struct {
	JobID               string
	Stage               Stage
	ExpectedTotal        int
	ExpectedKnown        bool
	Done                int
	Failed              int
	CompletionEmitted    bool
	HasPartialCompletion bool
	WatermarkExpiresAt   *time.Time
	UpdatedAt            time.Time
}

// Remaining reports the outstanding asset count once the total is known.
func (p *JobProgress) Remaining() int {
	if !p.ExpectedKnown {
		return -1
	}
	remaining := p.ExpectedTotal - p.Done - p.Failed
	if remaining < 0 {
		return 0
	}
	return remaining
}
