// Package feed renders series episodes as podcast RSS.
package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/eduncan911/podcast"

	"podcaster/internal/domain"
)

// Source lists the most recent episodes of a series, newest first.
type Source interface {
	ListRecent(ctx context.Context, seriesID string, limit int) ([]domain.EpisodeRecord, error)
}

// AudioURL is where the HTTP API serves a stored artifact.
func AudioURL(baseURL, storageKey string) string {
	return fmt.Sprintf("%s/audio/%s", strings.TrimRight(baseURL, "/"), storageKey)
}

func FeedURL(baseURL, seriesID string) string {
	return fmt.Sprintf("%s/feeds/%s.xml", strings.TrimRight(baseURL, "/"), seriesID)
}

// GenerateRSS builds the feed document for series.
func GenerateRSS(series domain.Series, episodes []domain.EpisodeRecord, baseURL string, now time.Time) (string, error) {
	description := series.Description
	if description == "" {
		description = series.Name
	}

	lastBuild := now
	if len(episodes) > 0 {
		lastBuild = episodes[0].GeneratedAt
	}

	p := podcast.New(series.Name, FeedURL(baseURL, series.ID), description, &now, &lastBuild)
	p.Language = "en-us"
	if series.Category != "" {
		p.AddCategory(series.Category, nil)
	}

	for _, ep := range episodes {
		if ep.StorageKey == "" {
			continue
		}

		item := podcast.Item{
			Title:       ep.Title,
			Description: fmt.Sprintf("Latest episode from %s", series.Name),
			GUID:        ep.StorageKey,
		}
		if ep.PublishURL != nil {
			item.Link = *ep.PublishURL
		}

		pubDate := ep.GeneratedAt
		if ep.PublishedAt != nil {
			pubDate = *ep.PublishedAt
		}
		item.AddPubDate(&pubDate)
		item.AddEnclosure(AudioURL(baseURL, ep.StorageKey), podcast.MP3, ep.AudioSize)
		if ep.DurationSecs > 0 {
			item.AddDuration(ep.DurationSecs)
		}

		if _, err := p.AddItem(item); err != nil {
			return "", fmt.Errorf("add item %s: %w", ep.StorageKey, err)
		}
	}

	return p.String(), nil
}
