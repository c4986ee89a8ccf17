package pipeline

import (
	"fmt"

	"podcaster/internal/domain"
)

// Stage is a step of a single episode run.
type Stage string

const (
	StageGeneratingContent Stage = "generating_content"
	StageValidatingContent Stage = "validating_content"
	StageSynthesizingAudio Stage = "synthesizing_audio"
	StagePublishing        Stage = "publishing"
	StageCleaningUp        Stage = "cleaning_up"
	StageRecording         Stage = "recording"
	StageNotifying         Stage = "notifying"
)

// StageError is the fatal failure of one run. It matches domain.ErrPipeline
// and the cause's own markers.
type StageError struct {
	Stage    Stage
	SeriesID string
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("error in episode pipeline for %s at %s: %v", e.SeriesID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{domain.ErrPipeline, e.Err}
}
