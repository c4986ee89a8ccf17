// Package pipeline sequences content generation, speech synthesis and
// publishing into episode runs.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"podcaster/internal/config"
	"podcaster/internal/domain"
)

type Dependencies struct {
	Catalog   domain.SeriesCatalog
	Content   ContentGenerator
	Speech    Synthesizer
	Publisher Publisher
	Notifier  Notifier
	Artifacts ArtifactStore

	// Ledger stores. Recording is skipped unless all three are set.
	Episodes EpisodeStore
	States   SeriesStateStore
	Tx       TransactionManager
}

// Request describes one episode run.
type Request struct {
	SeriesID       string
	PromptOverride string
	AutoPublish    bool
}

type Orchestrator struct {
	deps        Dependencies
	cfg         config.PipelineConfig
	credentials config.CredentialsConfig
	now         func() time.Time
	newRunID    func() string
	logger      *slog.Logger
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRunIDs overrides how run identifiers are minted.
func WithRunIDs(next func() string) Option {
	return func(o *Orchestrator) {
		if next != nil {
			o.newRunID = next
		}
	}
}

func New(deps Dependencies, cfg config.PipelineConfig, creds config.CredentialsConfig, logger *slog.Logger, opts ...Option) *Orchestrator {
	if cfg.KeepArtifacts <= 0 {
		cfg.KeepArtifacts = 10
	}
	if cfg.StatusLimit <= 0 {
		cfg.StatusLimit = 5
	}

	o := &Orchestrator{
		deps:        deps,
		cfg:         cfg,
		credentials: creds,
		now:         time.Now,
		newRunID:    uuid.NewString,
		logger:      logger.With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) SeriesIDs() []string {
	return o.deps.Catalog.IDs()
}

func (o *Orchestrator) ledgerEnabled() bool {
	return o.deps.Episodes != nil && o.deps.States != nil && o.deps.Tx != nil
}

// GenerateEpisode runs one episode through every stage. A publish failure
// yields OutcomeGeneratedUnpublished; any other stage failure aborts the run
// with a *StageError.
func (o *Orchestrator) GenerateEpisode(ctx context.Context, req Request) (domain.Result, error) {
	runID := o.newRunID()
	logger := o.logger.With("run_id", runID, "series_id", req.SeriesID)
	startTime := o.now()

	logger.Info("starting episode generation", "auto_publish", req.AutoPublish)

	generated, err := o.deps.Content.Generate(ctx, req.SeriesID, req.PromptOverride)
	if err != nil {
		return o.fail(logger, StageGeneratingContent, req.SeriesID, err)
	}

	if !o.deps.Content.Validate(generated.Body) {
		err := domain.Wrap(domain.ErrQualityValidation, fmt.Sprintf("%d words", generated.WordCount), nil)
		return o.fail(logger, StageValidatingContent, req.SeriesID, err)
	}
	logger.Info("content generated", "title", generated.Title, "word_count", generated.WordCount)

	audio, err := o.deps.Speech.Synthesize(ctx, generated.Body, req.SeriesID, generated.Title)
	if err != nil {
		return o.fail(logger, StageSynthesizingAudio, req.SeriesID, err)
	}
	logger.Info("audio generated", "key", audio.Key, "size", audio.Size)

	episode := &domain.EpisodeMetadata{
		RunID:       runID,
		SeriesID:    req.SeriesID,
		Title:       generated.Title,
		Content:     generated.Body,
		StorageKey:  audio.Key,
		AudioSize:   audio.Size,
		Duration:    audio.Duration,
		GeneratedAt: o.now().UTC(),
	}

	result := domain.GeneratedUnpublished(episode, nil)
	if req.AutoPublish {
		result = o.publish(ctx, logger, episode, generated.SeriesName)
	}

	logger.Debug("pruning artifacts", "stage", StageCleaningUp, "keep", o.cfg.KeepArtifacts)
	o.deps.Speech.Cleanup(ctx, req.SeriesID, o.cfg.KeepArtifacts)

	if o.ledgerEnabled() {
		if err := o.record(ctx, result); err != nil {
			logger.Warn("failed to record episode", "stage", StageRecording, "error", err)
		}
	}

	if err := o.deps.Notifier.Notify(ctx, result); err != nil {
		logger.Warn("failed to send notification", "stage", StageNotifying, "error", err)
	}

	logger.Info("episode generation completed",
		"outcome", result.Outcome,
		"duration", time.Since(startTime),
	)

	return result, nil
}

func (o *Orchestrator) publish(ctx context.Context, logger *slog.Logger, episode *domain.EpisodeMetadata, seriesName string) domain.Result {
	description := fmt.Sprintf("Latest episode from %s", seriesName)

	pub, err := o.deps.Publisher.Publish(ctx, episode.SeriesID, episode.Title, episode.StorageKey, description)
	if err != nil {
		logger.Warn("episode publishing failed, content and audio were generated",
			"stage", StagePublishing,
			"error", err,
		)
		return domain.GeneratedUnpublished(episode, err)
	}

	episode.Publication = &pub
	if !episode.Published() {
		logger.Warn("publisher returned an incomplete publication", "episode_id", pub.EpisodeID)
		return domain.GeneratedUnpublished(episode, domain.Wrap(domain.ErrPublish, "incomplete publication", nil))
	}

	logger.Info("episode published", "episode_id", pub.EpisodeID, "url", pub.URL)
	return domain.Published(episode)
}

func (o *Orchestrator) fail(logger *slog.Logger, stage Stage, seriesID string, err error) (domain.Result, error) {
	stageErr := &StageError{Stage: stage, SeriesID: seriesID, Err: err}
	logger.Error("episode generation failed", "stage", stage, "error", err)
	return domain.Failed(stageErr), stageErr
}

// GenerateBatch runs each series in order. Failed series are logged and left
// out of the returned results.
func (o *Orchestrator) GenerateBatch(ctx context.Context, seriesIDs []string, prompts map[string]string, autoPublish bool) []domain.Result {
	results := make([]domain.Result, 0, len(seriesIDs))

	for _, id := range seriesIDs {
		if ctx.Err() != nil {
			o.logger.Warn("batch interrupted", "remaining_from", id, "error", ctx.Err())
			break
		}

		result, err := o.GenerateEpisode(ctx, Request{
			SeriesID:       id,
			PromptOverride: prompts[id],
			AutoPublish:    autoPublish,
		})
		if err != nil {
			o.logger.Error("failed to generate episode", "series_id", id, "error", err)
			continue
		}
		results = append(results, result)
	}

	o.logger.Info("batch completed", "requested", len(seriesIDs), "succeeded", len(results))
	return results
}

// GenerateScheduled runs every series whose cadence is due today. With the
// ledger enabled, series already generated on today's UTC date are skipped.
func (o *Orchestrator) GenerateScheduled(ctx context.Context) []domain.Result {
	today := o.now().UTC()
	due := DueSeries(o.deps.Catalog, today)
	if o.ledgerEnabled() {
		due = o.notGeneratedOn(ctx, due, today)
	}
	if len(due) == 0 {
		o.logger.Info("no episodes scheduled for generation today", "date", today.Format(time.DateOnly))
		return []domain.Result{}
	}

	o.logger.Info("generating scheduled episodes", "series", due)
	return o.GenerateBatch(ctx, due, nil, true)
}

func (o *Orchestrator) notGeneratedOn(ctx context.Context, seriesIDs []string, day time.Time) []string {
	pending := make([]string, 0, len(seriesIDs))
	for _, id := range seriesIDs {
		state, err := o.deps.States.Get(ctx, id)
		if err != nil {
			o.logger.Warn("error reading series state, generating anyway", "series_id", id, "error", err)
			pending = append(pending, id)
			continue
		}
		if sameDay(state.LastGeneratedAt, day) {
			o.logger.Info("series already generated today", "series_id", id, "last_generated_at", state.LastGeneratedAt)
			continue
		}
		pending = append(pending, id)
	}
	return pending
}

func sameDay(a, b time.Time) bool {
	if a.IsZero() {
		return false
	}
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func (o *Orchestrator) record(ctx context.Context, result domain.Result) error {
	ep := result.Episode
	rec := &domain.EpisodeRecord{
		RunID:        ep.RunID,
		SeriesID:     ep.SeriesID,
		Title:        ep.Title,
		StorageKey:   ep.StorageKey,
		AudioSize:    ep.AudioSize,
		DurationSecs: int64(ep.Duration.Seconds()),
		Outcome:      result.Outcome,
		GeneratedAt:  ep.GeneratedAt,
	}
	if ep.Published() {
		id, url, at := ep.Publication.EpisodeID, ep.Publication.URL, ep.Publication.PublishedAt
		rec.EpisodeID = &id
		rec.PublishURL = &url
		rec.PublishedAt = &at
	}
	if result.Reason != nil {
		reason := result.Reason.Error()
		rec.PublishError = &reason
	}

	return o.deps.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := o.deps.Episodes.Record(ctx, rec); err != nil {
			return err
		}

		state, err := o.deps.States.Get(ctx, ep.SeriesID)
		if err != nil {
			return fmt.Errorf("get series state: %w", err)
		}
		state.LastGeneratedAt = ep.GeneratedAt
		state.TotalGenerated++
		if rec.PublishedAt != nil {
			state.LastPublishedAt = rec.PublishedAt
			state.TotalPublished++
		}

		if err := o.deps.States.Update(ctx, state); err != nil {
			return fmt.Errorf("update series state: %w", err)
		}
		return nil
	})
}

// SeriesStatus reports the most recent artifacts of every series. A series
// that cannot be inspected carries its error instead of failing the report.
func (o *Orchestrator) SeriesStatus(ctx context.Context) []domain.SeriesStatus {
	all := o.deps.Catalog.All()
	out := make([]domain.SeriesStatus, 0, len(all))

	for _, s := range all {
		status := domain.SeriesStatus{
			SeriesID:    s.ID,
			Name:        s.Name,
			Description: s.Description,
			Cadence:     s.Cadence,
			Category:    s.Category,
		}

		artifacts, err := o.deps.Artifacts.List(ctx, domain.SeriesPrefix(s.ID))
		if err != nil {
			o.logger.Warn("error getting status", "series_id", s.ID, "error", err)
			status.Error = err.Error()
			out = append(out, status)
			continue
		}

		sort.SliceStable(artifacts, func(i, j int) bool {
			return artifacts[i].LastModified.After(artifacts[j].LastModified)
		})
		if len(artifacts) > o.cfg.StatusLimit {
			artifacts = artifacts[:o.cfg.StatusLimit]
		}
		status.RecentArtifacts = artifacts
		status.ArtifactCount = len(artifacts)

		if o.ledgerEnabled() {
			if err := o.ledgerStatus(ctx, &status); err != nil {
				o.logger.Warn("error reading ledger", "series_id", s.ID, "error", err)
				status.Error = err.Error()
			}
		}

		out = append(out, status)
	}

	return out
}

func (o *Orchestrator) ledgerStatus(ctx context.Context, status *domain.SeriesStatus) error {
	runs, err := o.deps.Episodes.ListRecent(ctx, status.SeriesID, o.cfg.StatusLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	state, err := o.deps.States.Get(ctx, status.SeriesID)
	if err != nil {
		return fmt.Errorf("get series state: %w", err)
	}
	status.RecentRuns = runs
	status.State = state
	return nil
}

// ValidateConfiguration checks credentials and reachability of the artifact
// store and the notification channel. It never returns an error.
func (o *Orchestrator) ValidateConfiguration(ctx context.Context) bool {
	if missing := o.credentials.Missing(); len(missing) > 0 {
		o.logger.Error("missing required api keys in configuration", "missing", missing)
		return false
	}

	if err := o.deps.Artifacts.Ping(ctx); err != nil {
		o.logger.Error("configuration validation failed", "check", "storage", "error", err)
		return false
	}

	if err := o.deps.Notifier.Ping(ctx); err != nil {
		o.logger.Error("configuration validation failed", "check", "notification", "error", err)
		return false
	}

	o.logger.Info("configuration validation successful")
	return true
}
