package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"podcaster/internal/domain"
)

type SeriesStateStore struct {
	db *sqlx.DB
}

func NewSeriesStateStore(db *sqlx.DB) *SeriesStateStore {
	return &SeriesStateStore{db: db}
}

func (s *SeriesStateStore) Get(ctx context.Context, seriesID string) (*domain.SeriesState, error) {
	var state domain.SeriesState
	query := `
		SELECT id, series_id, last_generated_at, last_published_at, total_generated, total_published
		FROM series_state
		WHERE series_id = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &state, query, seriesID)
	if errors.Is(err, sql.ErrNoRows) {
		// Series that never ran start from zero.
		return &domain.SeriesState{SeriesID: seriesID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *SeriesStateStore) Update(ctx context.Context, state *domain.SeriesState) error {
	query := `
		INSERT INTO series_state (series_id, last_generated_at, last_published_at, total_generated, total_published)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (series_id) DO UPDATE SET
			last_generated_at = EXCLUDED.last_generated_at,
			last_published_at = EXCLUDED.last_published_at,
			total_generated = EXCLUDED.total_generated,
			total_published = EXCLUDED.total_published`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		state.SeriesID,
		state.LastGeneratedAt,
		state.LastPublishedAt,
		state.TotalGenerated,
		state.TotalPublished,
	)
	return err
}
