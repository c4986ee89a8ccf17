package domain

import (
	"fmt"
	"time"
)

const (
	episodesRoot   = "episodes"
	keyTimeLayout  = "20060102_150405"
	audioExtension = ".mp3"
	AudioMIMEType  = "audio/mpeg"
)

// SeriesPrefix is the storage prefix holding every artifact of a series.
func SeriesPrefix(seriesID string) string {
	return fmt.Sprintf("%s/%s/", episodesRoot, seriesID)
}

// EpisodeFilename names an artifact after its series and UTC creation second.
func EpisodeFilename(seriesID string, at time.Time) string {
	return fmt.Sprintf("%s_%s%s", seriesID, at.UTC().Format(keyTimeLayout), audioExtension)
}

func EpisodeKey(seriesID string, at time.Time) string {
	return SeriesPrefix(seriesID) + EpisodeFilename(seriesID, at)
}

type ArtifactInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}
