package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownSeries     = errors.New("unknown series")
	ErrContentGeneration = errors.New("content generation error")
	ErrQualityValidation = errors.New("content quality validation failed")
	ErrSynthesis         = errors.New("speech synthesis error")
	ErrPublish           = errors.New("podcast publish error")
	ErrNotification      = errors.New("notification error")
	ErrPipeline          = errors.New("episode pipeline error")
	ErrConfiguration     = errors.New("configuration error")
	ErrArtifactNotFound  = errors.New("artifact not found")
)

// Wrap tags err with marker so callers can classify it with errors.Is while
// keeping the operation in the message.
func Wrap(marker error, op string, err error) error {
	op = strings.TrimSpace(op)
	switch {
	case err == nil && op == "":
		return marker
	case err == nil:
		return fmt.Errorf("%w: %s", marker, op)
	case op == "":
		return fmt.Errorf("%w: %w", marker, err)
	}
	return fmt.Errorf("%w: %s: %w", marker, op, err)
}

// Kind names the most specific marker carried by err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrQualityValidation):
		return "quality_validation"
	case errors.Is(err, ErrContentGeneration):
		return "content_generation"
	case errors.Is(err, ErrSynthesis):
		return "synthesis"
	case errors.Is(err, ErrPublish):
		return "publish"
	case errors.Is(err, ErrNotification):
		return "notification"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrPipeline):
		return "orchestration"
	}
	return "internal"
}
