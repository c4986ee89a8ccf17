package domain

import "time"

type GeneratedContent struct {
	SeriesID    string
	SeriesName  string
	Title       string
	Body        string
	FullText    string
	WordCount   int
	Category    string
	GeneratedAt time.Time
}

type AudioArtifact struct {
	SeriesID    string
	Title       string
	Bucket      string
	Key         string
	Filename    string
	Size        int64
	Duration    time.Duration
	GeneratedAt time.Time
}

type Publication struct {
	EpisodeID   string
	URL         string
	FileKey     string
	PublishedAt time.Time
}

type EpisodeMetadata struct {
	RunID       string
	SeriesID    string
	Title       string
	Content     string
	StorageKey  string
	AudioSize   int64
	Duration    time.Duration
	Publication *Publication
	GeneratedAt time.Time
}

// Published reports whether the hosting platform accepted the episode.
func (e *EpisodeMetadata) Published() bool {
	return e.Publication != nil &&
		e.Publication.EpisodeID != "" &&
		!e.Publication.PublishedAt.IsZero()
}

type Outcome string

const (
	OutcomeFailed               Outcome = "failed"
	OutcomeGeneratedUnpublished Outcome = "generated_unpublished"
	OutcomePublished            Outcome = "published"
)

// Result is the terminal state of one episode run. Episode is nil only for
// OutcomeFailed. Reason holds the fatal error for OutcomeFailed and the
// publish error, if any, for OutcomeGeneratedUnpublished.
type Result struct {
	Outcome Outcome
	Episode *EpisodeMetadata
	Reason  error
}

func Published(ep *EpisodeMetadata) Result {
	return Result{Outcome: OutcomePublished, Episode: ep}
}

func GeneratedUnpublished(ep *EpisodeMetadata, reason error) Result {
	return Result{Outcome: OutcomeGeneratedUnpublished, Episode: ep, Reason: reason}
}

func Failed(reason error) Result {
	return Result{Outcome: OutcomeFailed, Reason: reason}
}
