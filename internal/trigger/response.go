package trigger

import (
	"time"

	"podcaster/internal/domain"
)

// Response is the envelope returned for every dispatched event.
type Response struct {
	StatusCode int `json:"statusCode"`
	Body       any `json:"body"`
}

type EpisodeSummary struct {
	SeriesID    string         `json:"series_id"`
	Title       string         `json:"title"`
	EpisodeID   string         `json:"episode_id,omitempty"`
	PublishURL  string         `json:"publish_url,omitempty"`
	StorageKey  string         `json:"storage_key"`
	Outcome     domain.Outcome `json:"outcome"`
	GeneratedAt time.Time      `json:"generated_at"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
}

type SuccessBody struct {
	Success           bool             `json:"success"`
	EpisodesGenerated int              `json:"episodes_generated"`
	Episodes          []EpisodeSummary `json:"episodes"`
	Timestamp         time.Time        `json:"timestamp"`
}

type StatusBody struct {
	Success   bool                  `json:"success"`
	Series    []domain.SeriesStatus `json:"series"`
	Timestamp time.Time             `json:"timestamp"`
}

type ValidateBody struct {
	Valid     bool      `json:"valid"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorBody struct {
	Error     string    `json:"error"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func summarize(results []domain.Result) []EpisodeSummary {
	out := make([]EpisodeSummary, 0, len(results))
	for _, r := range results {
		ep := r.Episode
		if ep == nil {
			continue
		}
		s := EpisodeSummary{
			SeriesID:    ep.SeriesID,
			Title:       ep.Title,
			StorageKey:  ep.StorageKey,
			Outcome:     r.Outcome,
			GeneratedAt: ep.GeneratedAt,
		}
		if ep.Published() {
			at := ep.Publication.PublishedAt
			s.EpisodeID = ep.Publication.EpisodeID
			s.PublishURL = ep.Publication.URL
			s.PublishedAt = &at
		}
		out = append(out, s)
	}
	return out
}
