package matching

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/tudragon154203/product-video-matching-sub000/pkg/domain"
)

// PostgresAssetStore reads feature-ready product images and video frames
// for the matcher engine's retrieval phase.
type PostgresAssetStore struct {
	db *sql.DB
}

// NewPostgresAssetStore builds a PostgresAssetStore.
func NewPostgresAssetStore(db *sql.DB) *PostgresAssetStore {
	return &PostgresAssetStore{db: db}
}

// ImagesByJob implements AssetStore.
func (s *PostgresAssetStore) ImagesByJob(ctx context.Context, jobID string) ([]ImageAsset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT img_id, product_id, emb_rgb, emb_gray, COALESCE(kp_blob_path, '')
		FROM product_images
		WHERE job_id = $1 AND emb_rgb IS NOT NULL
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("matching: select product_images: %w", err)
	}
	defer rows.Close()

	var out []ImageAsset
	for rows.Next() {
		var a ImageAsset
		var rgb, gray pq.Float64Array
		if err := rows.Scan(&a.ID, &a.ProductID, &rgb, &gray, &a.KeypointBlobPath); err != nil {
			return nil, fmt.Errorf("matching: scan product_images: %w", err)
		}
		a.EmbRGB, a.EmbGray = []float64(rgb), []float64(gray)
		out = append(out, a)
	}
	return out, rows.Err()
}

// FramesByJob implements AssetStore.
func (s *PostgresAssetStore) FramesByJob(ctx context.Context, jobID string) ([]FrameAsset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT frame_id, video_id, ts, emb_rgb, emb_gray, COALESCE(kp_blob_path, '')
		FROM video_frames
		WHERE job_id = $1 AND emb_rgb IS NOT NULL
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("matching: select video_frames: %w", err)
	}
	defer rows.Close()

	var out []FrameAsset
	for rows.Next() {
		var f FrameAsset
		var rgb, gray pq.Float64Array
		if err := rows.Scan(&f.ID, &f.VideoID, &f.Timestamp, &rgb, &gray, &f.KeypointBlobPath); err != nil {
			return nil, fmt.Errorf("matching: scan video_frames: %w", err)
		}
		f.EmbRGB, f.EmbGray = []float64(rgb), []float64(gray)
		out = append(out, f)
	}
	return out, rows.Err()
}

// PostgresMatchStore persists accepted matches.
type PostgresMatchStore struct {
	db *sql.DB
}

// NewPostgresMatchStore builds a PostgresMatchStore.
func NewPostgresMatchStore(db *sql.DB) *PostgresMatchStore {
	return &PostgresMatchStore{db: db}
}

// Upsert implements MatchStore, keyed by UNIQUE(job_id, product_id, video_id).
func (s *PostgresMatchStore) Upsert(ctx context.Context, m domain.Match) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO matches (match_id, job_id, product_id, video_id, best_img_id, best_frame_id, ts,
		                      score, score_pair, score_deep, score_geometric, accepted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		ON CONFLICT (job_id, product_id, video_id) DO UPDATE SET
			best_img_id = EXCLUDED.best_img_id,
			best_frame_id = EXCLUDED.best_frame_id,
			ts = EXCLUDED.ts,
			score = EXCLUDED.score,
			score_pair = EXCLUDED.score_pair,
			score_deep = EXCLUDED.score_deep,
			score_geometric = EXCLUDED.score_geometric,
			accepted = EXCLUDED.accepted,
			updated_at = EXCLUDED.updated_at
	`, m.ID, m.JobID, m.ProductID, m.VideoID, m.BestImageID, m.BestFrameID,
		m.BestFrameTS, m.ScoreFused, m.ScorePair, m.ScoreDeep, m.ScoreGeometric, m.Accepted, now)
	if err != nil {
		return fmt.Errorf("matching: upsert match: %w", err)
	}
	return nil
}

var (
	_ AssetStore = (*PostgresAssetStore)(nil)
	_ MatchStore = (*PostgresMatchStore)(nil)
)
