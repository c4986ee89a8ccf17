// Package speech turns episode scripts into stored audio artifacts.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"podcaster/internal/domain"
)

const (
	defaultBaseURL  = "https://api.elevenlabs.io/v1"
	defaultModelID  = "eleven_multilingual_v2"
	defaultTimeout  = 5 * time.Minute
	chunkSize       = 1024
	metadataSource  = "metrovoice_podcast_automation"
	bytesPerMinute  = 1024 * 1024
	DefaultKeepLast = 10
)

type VoiceSettings struct {
	Stability       float64 `json:"stability" yaml:"stability"`
	SimilarityBoost float64 `json:"similarity_boost" yaml:"similarity_boost"`
	Style           float64 `json:"style" yaml:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost" yaml:"use_speaker_boost"`
}

func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.8,
		Style:           0,
		UseSpeakerBoost: true,
	}
}

type Config struct {
	APIKey   string
	BaseURL  string
	ModelID  string
	Timeout  time.Duration
	Settings VoiceSettings
}

// Store is the artifact storage the synthesizer writes to and prunes.
type Store interface {
	Bucket() string
	Put(ctx context.Context, key, contentType string, data []byte, metadata map[string]string) (domain.ArtifactInfo, error)
	List(ctx context.Context, prefix string) ([]domain.ArtifactInfo, error)
	Delete(ctx context.Context, key string) error
}

type Synthesizer struct {
	cfg        Config
	series     domain.SeriesLookup
	store      Store
	httpClient *http.Client
	now        func() time.Time
	logger     *slog.Logger
}

type Option func(*Synthesizer)

func WithHTTPClient(client *http.Client) Option {
	return func(s *Synthesizer) {
		if client != nil {
			s.httpClient = client
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Synthesizer) {
		if now != nil {
			s.now = now
		}
	}
}

func New(cfg Config, lookup domain.SeriesLookup, store Store, logger *slog.Logger, opts ...Option) *Synthesizer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.ModelID == "" {
		cfg.ModelID = defaultModelID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Settings == (VoiceSettings{}) {
		cfg.Settings = DefaultVoiceSettings()
	}

	s := &Synthesizer{
		cfg:        cfg,
		series:     lookup,
		store:      store,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
		logger:     logger.With("component", "speech"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// Synthesize renders text with the series voice and stores the audio.
func (s *Synthesizer) Synthesize(ctx context.Context, text, seriesID, title string) (domain.AudioArtifact, error) {
	var empty domain.AudioArtifact

	series, ok := s.series.Lookup(seriesID)
	if !ok {
		return empty, domain.Wrap(domain.ErrSynthesis, "invalid series id "+seriesID, domain.ErrUnknownSeries)
	}

	audio, err := s.stream(ctx, text, series.VoiceID)
	if err != nil {
		return empty, domain.Wrap(domain.ErrSynthesis, seriesID, err)
	}

	at := s.now().UTC()
	key := domain.EpisodeKey(seriesID, at)

	info, err := s.store.Put(ctx, key, domain.AudioMIMEType, audio, map[string]string{
		"generated_at": at.Format(time.RFC3339),
		"source":       metadataSource,
	})
	if err != nil {
		return empty, domain.Wrap(domain.ErrSynthesis, "upload audio", err)
	}

	s.logger.Info("audio stored",
		"series_id", seriesID,
		"key", key,
		"size", info.Size,
	)

	size := int64(len(audio))
	return domain.AudioArtifact{
		SeriesID:    seriesID,
		Title:       title,
		Bucket:      s.store.Bucket(),
		Key:         key,
		Filename:    domain.EpisodeFilename(seriesID, at),
		Size:        size,
		Duration:    EstimateDuration(size),
		GeneratedAt: at,
	}, nil
}

func (s *Synthesizer) stream(ctx context.Context, text, voiceID string) ([]byte, error) {
	endpoint, err := url.JoinPath(s.cfg.BaseURL, "text-to-speech", voiceID, "stream")
	if err != nil {
		return nil, fmt.Errorf("build url: %w", err)
	}

	payload, err := json.Marshal(ttsRequest{
		Text:          text,
		ModelID:       s.cfg.ModelID,
		VoiceSettings: s.cfg.Settings,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", s.cfg.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("tts api request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var buf bytes.Buffer
	if _, err := io.CopyBuffer(&buf, resp.Body, make([]byte, chunkSize)); err != nil {
		return nil, fmt.Errorf("read audio stream: %w", err)
	}
	if buf.Len() == 0 {
		return nil, errors.New("empty audio stream")
	}

	return buf.Bytes(), nil
}

// Cleanup keeps the keep most recent artifacts of a series and deletes the
// rest. Failures are logged only.
func (s *Synthesizer) Cleanup(ctx context.Context, seriesID string, keep int) {
	if keep < 0 {
		keep = 0
	}

	objects, err := s.store.List(ctx, domain.SeriesPrefix(seriesID))
	if err != nil {
		s.logger.Warn("cleanup list failed", "series_id", seriesID, "error", err)
		return
	}
	if len(objects) <= keep {
		return
	}

	SortNewestFirst(objects)

	deleted := 0
	for _, obj := range objects[keep:] {
		if err := s.store.Delete(ctx, obj.Key); err != nil {
			s.logger.Warn("cleanup delete failed", "series_id", seriesID, "key", obj.Key, "error", err)
			continue
		}
		deleted++
	}

	s.logger.Info("cleaned up old files", "series_id", seriesID, "deleted", deleted)
}

// EstimateDuration approximates playback length at one minute per MiB.
func EstimateDuration(size int64) time.Duration {
	if size <= 0 {
		return 0
	}
	return time.Duration(float64(size) / bytesPerMinute * float64(time.Minute))
}
