package domain

import "time"

// EpisodeRecord is one ledger row describing a finished episode run.
type EpisodeRecord struct {
	ID           int64      `db:"id" json:"-"`
	RunID        string     `db:"run_id" json:"run_id"`
	SeriesID     string     `db:"series_id" json:"series_id"`
	Title        string     `db:"title" json:"title"`
	StorageKey   string     `db:"storage_key" json:"storage_key"`
	AudioSize    int64      `db:"audio_size" json:"audio_size"`
	DurationSecs int64      `db:"duration_secs" json:"duration_secs"`
	Outcome      Outcome    `db:"outcome" json:"outcome"`
	EpisodeID    *string    `db:"episode_id" json:"episode_id,omitempty"`
	PublishURL   *string    `db:"publish_url" json:"publish_url,omitempty"`
	PublishError *string    `db:"publish_error" json:"publish_error,omitempty"`
	GeneratedAt  time.Time  `db:"generated_at" json:"generated_at"`
	PublishedAt  *time.Time `db:"published_at" json:"published_at,omitempty"`
}

// SeriesState aggregates ledger totals per series.
type SeriesState struct {
	ID              int64      `db:"id" json:"-"`
	SeriesID        string     `db:"series_id" json:"series_id"`
	LastGeneratedAt time.Time  `db:"last_generated_at" json:"last_generated_at"`
	LastPublishedAt *time.Time `db:"last_published_at" json:"last_published_at,omitempty"`
	TotalGenerated  int64      `db:"total_generated" json:"total_generated"`
	TotalPublished  int64      `db:"total_published" json:"total_published"`
}

type SeriesStatus struct {
	SeriesID        string          `json:"series_id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Cadence         Cadence         `json:"publish_frequency"`
	Category        string          `json:"content_type"`
	RecentArtifacts []ArtifactInfo  `json:"recent_episodes"`
	ArtifactCount   int             `json:"episode_count"`
	RecentRuns      []EpisodeRecord `json:"recent_runs,omitempty"`
	State           *SeriesState    `json:"state,omitempty"`
	Error           string          `json:"error,omitempty"`
}
