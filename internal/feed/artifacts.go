package feed

import (
	"context"
	"fmt"
	"sort"

	"podcaster/internal/domain"
	"podcaster/internal/speech"
)

// ArtifactLister lists stored objects under a prefix.
type ArtifactLister interface {
	List(ctx context.Context, prefix string) ([]domain.ArtifactInfo, error)
}

// ArtifactSource serves feed entries straight from object storage when no
// episode ledger is configured.
type ArtifactSource struct {
	store   ArtifactLister
	catalog domain.SeriesLookup
}

func NewArtifactSource(store ArtifactLister, catalog domain.SeriesLookup) *ArtifactSource {
	return &ArtifactSource{store: store, catalog: catalog}
}

func (a *ArtifactSource) ListRecent(ctx context.Context, seriesID string, limit int) ([]domain.EpisodeRecord, error) {
	infos, err := a.store.List(ctx, domain.SeriesPrefix(seriesID))
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].LastModified.After(infos[j].LastModified)
	})
	if limit > 0 && len(infos) > limit {
		infos = infos[:limit]
	}

	name := seriesID
	if s, ok := a.catalog.Lookup(seriesID); ok {
		name = s.Name
	}

	out := make([]domain.EpisodeRecord, 0, len(infos))
	for _, info := range infos {
		out = append(out, domain.EpisodeRecord{
			SeriesID:     seriesID,
			Title:        fmt.Sprintf("%s - %s", name, info.LastModified.UTC().Format("January 2, 2006")),
			StorageKey:   info.Key,
			AudioSize:    info.Size,
			DurationSecs: int64(speech.EstimateDuration(info.Size).Seconds()),
			Outcome:      domain.OutcomeGeneratedUnpublished,
			GeneratedAt:  info.LastModified,
		})
	}
	return out, nil
}
