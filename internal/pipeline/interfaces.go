package pipeline

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"podcaster/internal/domain"
)

type ContentGenerator interface {
	Generate(ctx context.Context, seriesID, promptOverride string) (domain.GeneratedContent, error)
	Validate(text string) bool
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text, seriesID, title string) (domain.AudioArtifact, error)
	Cleanup(ctx context.Context, seriesID string, keep int)
}

type Publisher interface {
	Publish(ctx context.Context, seriesID, title, storageKey, description string) (domain.Publication, error)
}

type Notifier interface {
	Notify(ctx context.Context, result domain.Result) error
	Ping(ctx context.Context) error
}

type ArtifactStore interface {
	List(ctx context.Context, prefix string) ([]domain.ArtifactInfo, error)
	Ping(ctx context.Context) error
}

type EpisodeStore interface {
	Record(ctx context.Context, rec *domain.EpisodeRecord) (int64, error)
	ListRecent(ctx context.Context, seriesID string, limit int) ([]domain.EpisodeRecord, error)
}

type SeriesStateStore interface {
	Get(ctx context.Context, seriesID string) (*domain.SeriesState, error)
	Update(ctx context.Context, state *domain.SeriesState) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
