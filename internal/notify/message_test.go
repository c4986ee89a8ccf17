package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podcaster/internal/domain"
)

func TestNewEpisodeMessage_Published(t *testing.T) {
	generated := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	published := generated.Add(2 * time.Minute)
	now := generated.Add(3 * time.Minute)

	ep := &domain.EpisodeMetadata{
		RunID:       "run-1",
		SeriesID:    "tech_voice",
		Title:       "Gadgets",
		StorageKey:  "episodes/tech_voice/x.mp3",
		AudioSize:   2048,
		Duration:    90 * time.Second,
		GeneratedAt: generated,
		Publication: &domain.Publication{EpisodeID: "EP1", URL: "https://pod/ep1", PublishedAt: published},
	}

	msg, err := NewEpisodeMessage(domain.Published(ep), now)
	require.NoError(t, err)

	assert.Equal(t, "New Episode Generated: Gadgets", msg.Subject)
	assert.Equal(t, domain.OutcomePublished, msg.Outcome)
	assert.Equal(t, "EP1", msg.EpisodeID)
	assert.Equal(t, "https://pod/ep1", msg.PublishURL)
	require.NotNil(t, msg.PublishedAt)
	assert.Equal(t, published, *msg.PublishedAt)
	assert.Equal(t, int64(90), msg.DurationSecs)
	assert.Equal(t, now, msg.Timestamp)
	assert.Empty(t, msg.PublishError)
}

func TestNewEpisodeMessage_Unpublished(t *testing.T) {
	ep := &domain.EpisodeMetadata{SeriesID: "tech_voice", Title: "Gadgets"}

	msg, err := NewEpisodeMessage(domain.GeneratedUnpublished(ep, errors.New("upload slot denied")), time.Now())
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeGeneratedUnpublished, msg.Outcome)
	assert.Empty(t, msg.EpisodeID)
	assert.Nil(t, msg.PublishedAt)
	assert.Equal(t, "upload slot denied", msg.PublishError)
}

func TestNewEpisodeMessage_Failed(t *testing.T) {
	_, err := NewEpisodeMessage(domain.Failed(errors.New("boom")), time.Now())
	assert.Error(t, err)
}
