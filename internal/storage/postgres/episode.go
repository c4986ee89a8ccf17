package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"podcaster/internal/domain"
)

// EpisodeStore is the ledger of finished episode runs.
type EpisodeStore struct {
	db *sqlx.DB
}

func NewEpisodeStore(db *sqlx.DB) *EpisodeStore {
	return &EpisodeStore{db: db}
}

func (s *EpisodeStore) Record(ctx context.Context, rec *domain.EpisodeRecord) (int64, error) {
	query := `
		INSERT INTO episodes (
			run_id, series_id, title, storage_key, audio_size, duration_secs,
			outcome, episode_id, publish_url, publish_error, generated_at, published_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
		ON CONFLICT (run_id) DO UPDATE SET
			outcome = EXCLUDED.outcome,
			episode_id = EXCLUDED.episode_id,
			publish_url = EXCLUDED.publish_url,
			publish_error = EXCLUDED.publish_error,
			published_at = EXCLUDED.published_at
		RETURNING id`

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		rec.RunID,
		rec.SeriesID,
		rec.Title,
		rec.StorageKey,
		rec.AudioSize,
		rec.DurationSecs,
		rec.Outcome,
		rec.EpisodeID,
		rec.PublishURL,
		rec.PublishError,
		rec.GeneratedAt,
		rec.PublishedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("record episode: %w", err)
	}

	rec.ID = id
	return id, nil
}

// ListRecent returns the newest runs of a series, newest first.
func (s *EpisodeStore) ListRecent(ctx context.Context, seriesID string, limit int) ([]domain.EpisodeRecord, error) {
	query := `
		SELECT id, run_id, series_id, title, storage_key, audio_size, duration_secs,
			outcome, episode_id, publish_url, publish_error, generated_at, published_at
		FROM episodes
		WHERE series_id = $1
		ORDER BY generated_at DESC, id DESC
		LIMIT $2`

	records := []domain.EpisodeRecord{}
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &records, query, seriesID, limit); err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	return records, nil
}
