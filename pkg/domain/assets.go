package domain

import "time"

// Product is one collected product listing (spec.md §3).
type Product struct {
	ID         string
	JobID      string
	Industry   string
	Title      string
	SourceURL  string
	CreatedAt  time.Time
}

// ProductImage is one image asset belonging to a Product, through the
// segmentation -> masking -> embedding/keypoint feature pipeline.
type ProductImage struct {
	ID            string
	JobID         string
	ProductID     string
	LocalPath     string
	MaskPath      string
	EmbeddingReady bool
	KeypointReady  bool
	CreatedAt     time.Time
}

// Video is one collected video (spec.md §3).
type Video struct {
	ID        string
	JobID     string
	Industry  string
	Title     string
	Platform  string
	SourceURL string
	CreatedAt time.Time
}

// VideoFrame is one extracted keyframe belonging to a Video.
type VideoFrame struct {
	ID             string
	JobID          string
	VideoID        string
	Timestamp      float64
	LocalPath      string
	MaskPath       string
	EmbeddingReady bool
	KeypointReady  bool
	CreatedAt      time.Time
}

// Match is one accepted (product, video) pairing produced by the matcher
// engine (spec.md §4.6), keyed uniquely by (job_id, product_id, video_id).
type Match struct {
	ID           string
	JobID        string
	ProductID    string
	VideoID      string
	BestImageID  string
	BestFrameID  string
	BestFrameTS  float64
	ScorePair    float64
	ScoreDeep    float64
	ScoreGeometric float64
	ScoreFused   float64
	Accepted     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
