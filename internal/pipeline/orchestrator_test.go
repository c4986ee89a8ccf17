package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"podcaster/internal/config"
	"podcaster/internal/domain"
	"podcaster/internal/pipeline/mocks"
	"podcaster/internal/series"
)

type OrchestratorTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	content   *mocks.MockContentGenerator
	speech    *mocks.MockSynthesizer
	publisher *mocks.MockPublisher
	notifier  *mocks.MockNotifier
	artifacts *mocks.MockArtifactStore
	episodes  *mocks.MockEpisodeStore
	states    *mocks.MockSeriesStateStore
	tx        *mocks.MockTransactionManager

	catalog *series.Registry
	now     time.Time
	creds   config.CredentialsConfig
	logger  *slog.Logger
}

func (s *OrchestratorTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.content = mocks.NewMockContentGenerator(s.ctrl)
	s.speech = mocks.NewMockSynthesizer(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.artifacts = mocks.NewMockArtifactStore(s.ctrl)
	s.episodes = mocks.NewMockEpisodeStore(s.ctrl)
	s.states = mocks.NewMockSeriesStateStore(s.ctrl)
	s.tx = mocks.NewMockTransactionManager(s.ctrl)

	catalog, err := series.New(
		domain.Series{ID: "daily_news", Name: "Daily News", Prompt: "p", VoiceID: "v1", Cadence: domain.CadenceDaily},
		domain.Series{ID: "tech_voice", Name: "Tech Voice", Prompt: "p", VoiceID: "v2", Cadence: domain.CadenceWeekly},
		domain.Series{ID: "month_end", Name: "Month End", Prompt: "p", VoiceID: "v3", Cadence: domain.CadenceMonthly},
	)
	s.Require().NoError(err)
	s.catalog = catalog

	s.now = time.Date(2025, 9, 1, 6, 0, 0, 0, time.UTC)
	s.creds = config.CredentialsConfig{
		ContentAPIKey:         "a",
		SpeechAPIKey:          "b",
		PublisherClientID:     "c",
		PublisherClientSecret: "d",
	}
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *OrchestratorTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestOrchestratorTestSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorTestSuite))
}

func (s *OrchestratorTestSuite) orchestrator(withLedger bool) *Orchestrator {
	deps := Dependencies{
		Catalog:   s.catalog,
		Content:   s.content,
		Speech:    s.speech,
		Publisher: s.publisher,
		Notifier:  s.notifier,
		Artifacts: s.artifacts,
	}
	if withLedger {
		deps.Episodes = s.episodes
		deps.States = s.states
		deps.Tx = s.tx
	}

	runs := 0
	return New(deps, config.PipelineConfig{KeepArtifacts: 10, StatusLimit: 5}, s.creds, s.logger,
		WithClock(func() time.Time { return s.now }),
		WithRunIDs(func() string {
			runs++
			return fmt.Sprintf("run-%d", runs)
		}),
	)
}

func (s *OrchestratorTestSuite) generated(seriesID, name string) domain.GeneratedContent {
	return domain.GeneratedContent{
		SeriesID:   seriesID,
		SeriesName: name,
		Title:      "Episode Title",
		Body:       "Paragraph one.\nParagraph two.",
		FullText:   "Episode Title\nParagraph one.\nParagraph two.",
		WordCount:  6,
	}
}

func (s *OrchestratorTestSuite) artifact(seriesID string) domain.AudioArtifact {
	return domain.AudioArtifact{
		SeriesID: seriesID,
		Title:    "Episode Title",
		Key:      domain.EpisodeKey(seriesID, s.now),
		Size:     2048,
		Duration: 2 * time.Second,
	}
}

func (s *OrchestratorTestSuite) expectGenerated(seriesID, name string) {
	gen := s.generated(seriesID, name)
	s.content.EXPECT().Generate(gomock.Any(), seriesID, "").Return(gen, nil)
	s.content.EXPECT().Validate(gen.Body).Return(true)
	s.speech.EXPECT().Synthesize(gomock.Any(), gen.Body, seriesID, gen.Title).Return(s.artifact(seriesID), nil)
}

func (s *OrchestratorTestSuite) TestGenerateEpisode_WithoutPublish() {
	ctx := context.Background()
	gen := s.generated("tech_voice", "Tech Voice")
	art := s.artifact("tech_voice")

	gomock.InOrder(
		s.content.EXPECT().Generate(ctx, "tech_voice", "custom").Return(gen, nil),
		s.content.EXPECT().Validate(gen.Body).Return(true),
		s.speech.EXPECT().Synthesize(ctx, gen.Body, "tech_voice", gen.Title).Return(art, nil),
		s.speech.EXPECT().Cleanup(ctx, "tech_voice", 10),
		s.notifier.EXPECT().Notify(ctx, gomock.Any()).Return(nil),
	)

	result, err := s.orchestrator(false).GenerateEpisode(ctx, Request{SeriesID: "tech_voice", PromptOverride: "custom"})
	s.Require().NoError(err)

	s.Equal(domain.OutcomeGeneratedUnpublished, result.Outcome)
	s.NoError(result.Reason)
	s.Require().NotNil(result.Episode)
	s.Equal("run-1", result.Episode.RunID)
	s.Equal("Episode Title", result.Episode.Title)
	s.Equal(gen.Body, result.Episode.Content)
	s.Equal(art.Key, result.Episode.StorageKey)
	s.Equal(s.now, result.Episode.GeneratedAt)
	s.Nil(result.Episode.Publication)
	s.False(result.Episode.Published())
}

func (s *OrchestratorTestSuite) TestGenerateEpisode_Published() {
	ctx := context.Background()
	s.expectGenerated("tech_voice", "Tech Voice")
	art := s.artifact("tech_voice")

	pub := domain.Publication{EpisodeID: "EP1", URL: "https://pod/ep1", FileKey: "fk", PublishedAt: s.now}
	gomock.InOrder(
		s.publisher.EXPECT().Publish(ctx, "tech_voice", "Episode Title", art.Key, "Latest episode from Tech Voice").Return(pub, nil),
		s.speech.EXPECT().Cleanup(ctx, "tech_voice", 10),
		s.notifier.EXPECT().Notify(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, r domain.Result) error {
			s.Equal(domain.OutcomePublished, r.Outcome)
			return nil
		}),
	)

	result, err := s.orchestrator(false).GenerateEpisode(ctx, Request{SeriesID: "tech_voice", AutoPublish: true})
	s.Require().NoError(err)

	s.Equal(domain.OutcomePublished, result.Outcome)
	s.True(result.Episode.Published())
	s.Equal("EP1", result.Episode.Publication.EpisodeID)
	s.Equal("https://pod/ep1", result.Episode.Publication.URL)
	s.Equal(s.now, result.Episode.Publication.PublishedAt)
}

func (s *OrchestratorTestSuite) TestGenerateEpisode_PublishFailureIsNotFatal() {
	ctx := context.Background()
	s.expectGenerated("tech_voice", "Tech Voice")

	publishErr := domain.Wrap(domain.ErrPublish, "upload file", errors.New("503"))
	s.publisher.EXPECT().Publish(ctx, "tech_voice", gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.Publication{}, publishErr)
	s.speech.EXPECT().Cleanup(ctx, "tech_voice", 10)
	s.notifier.EXPECT().Notify(ctx, gomock.Any()).Return(nil)

	result, err := s.orchestrator(false).GenerateEpisode(ctx, Request{SeriesID: "tech_voice", AutoPublish: true})
	s.Require().NoError(err)

	s.Equal(domain.OutcomeGeneratedUnpublished, result.Outcome)
	s.ErrorIs(result.Reason, domain.ErrPublish)
	s.False(result.Episode.Published())
	s.NotEmpty(result.Episode.StorageKey)
}

func (s *OrchestratorTestSuite) TestGenerateEpisode_ValidationFailureIsFatal() {
	ctx := context.Background()
	gen := s.generated("tech_voice", "Tech Voice")

	s.content.EXPECT().Generate(ctx, "tech_voice", "").Return(gen, nil)
	s.content.EXPECT().Validate(gen.Body).Return(false)

	result, err := s.orchestrator(false).GenerateEpisode(ctx, Request{SeriesID: "tech_voice", AutoPublish: true})
	s.Require().Error(err)

	s.Equal(domain.OutcomeFailed, result.Outcome)
	s.Nil(result.Episode)
	s.ErrorIs(err, domain.ErrPipeline)
	s.ErrorIs(err, domain.ErrQualityValidation)
	s.Equal("quality_validation", domain.Kind(err))

	var stageErr *StageError
	s.Require().ErrorAs(err, &stageErr)
	s.Equal(StageValidatingContent, stageErr.Stage)
}

func (s *OrchestratorTestSuite) TestGenerateEpisode_ContentFailureStopsRun() {
	ctx := context.Background()
	cause := domain.Wrap(domain.ErrContentGeneration, "invalid series id x", domain.ErrUnknownSeries)
	s.content.EXPECT().Generate(ctx, "x", "").Return(domain.GeneratedContent{}, cause)

	result, err := s.orchestrator(false).GenerateEpisode(ctx, Request{SeriesID: "x"})
	s.ErrorIs(err, domain.ErrPipeline)
	s.ErrorIs(err, domain.ErrUnknownSeries)
	s.Equal(domain.OutcomeFailed, result.Outcome)
	s.ErrorIs(result.Reason, domain.ErrContentGeneration)
}

func (s *OrchestratorTestSuite) TestGenerateEpisode_SynthesisFailureSkipsLaterStages() {
	ctx := context.Background()
	gen := s.generated("tech_voice", "Tech Voice")

	s.content.EXPECT().Generate(ctx, "tech_voice", "").Return(gen, nil)
	s.content.EXPECT().Validate(gen.Body).Return(true)
	s.speech.EXPECT().Synthesize(ctx, gen.Body, "tech_voice", gen.Title).
		Return(domain.AudioArtifact{}, domain.Wrap(domain.ErrSynthesis, "upload audio", errors.New("bucket offline")))

	_, err := s.orchestrator(false).GenerateEpisode(ctx, Request{SeriesID: "tech_voice", AutoPublish: true})
	s.ErrorIs(err, domain.ErrSynthesis)

	var stageErr *StageError
	s.Require().ErrorAs(err, &stageErr)
	s.Equal(StageSynthesizingAudio, stageErr.Stage)
}

func (s *OrchestratorTestSuite) TestGenerateEpisode_NotificationFailureIsLogged() {
	ctx := context.Background()
	s.expectGenerated("tech_voice", "Tech Voice")
	s.speech.EXPECT().Cleanup(ctx, "tech_voice", 10)
	s.notifier.EXPECT().Notify(ctx, gomock.Any()).Return(domain.Wrap(domain.ErrNotification, "publish message", errors.New("closed")))

	result, err := s.orchestrator(false).GenerateEpisode(ctx, Request{SeriesID: "tech_voice"})
	s.NoError(err)
	s.Equal(domain.OutcomeGeneratedUnpublished, result.Outcome)
}

func (s *OrchestratorTestSuite) passThroughTx() {
	s.tx.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		})
}

func (s *OrchestratorTestSuite) TestGenerateEpisode_RecordsLedger() {
	ctx := context.Background()
	s.expectGenerated("tech_voice", "Tech Voice")

	pub := domain.Publication{EpisodeID: "EP1", URL: "https://pod/ep1", PublishedAt: s.now}
	s.publisher.EXPECT().Publish(ctx, "tech_voice", gomock.Any(), gomock.Any(), gomock.Any()).Return(pub, nil)
	s.speech.EXPECT().Cleanup(ctx, "tech_voice", 10)
	s.passThroughTx()
	s.episodes.EXPECT().Record(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, rec *domain.EpisodeRecord) (int64, error) {
			s.Equal("run-1", rec.RunID)
			s.Equal(domain.OutcomePublished, rec.Outcome)
			s.Equal(int64(2048), rec.AudioSize)
			s.Equal(int64(2), rec.DurationSecs)
			s.Require().NotNil(rec.EpisodeID)
			s.Equal("EP1", *rec.EpisodeID)
			s.Nil(rec.PublishError)
			return 1, nil
		})
	s.states.EXPECT().Get(gomock.Any(), "tech_voice").Return(&domain.SeriesState{SeriesID: "tech_voice", TotalGenerated: 4, TotalPublished: 3}, nil)
	s.states.EXPECT().Update(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, st *domain.SeriesState) error {
			s.Equal(int64(5), st.TotalGenerated)
			s.Equal(int64(4), st.TotalPublished)
			s.Equal(s.now, st.LastGeneratedAt)
			s.Require().NotNil(st.LastPublishedAt)
			return nil
		})
	s.notifier.EXPECT().Notify(ctx, gomock.Any()).Return(nil)

	result, err := s.orchestrator(true).GenerateEpisode(ctx, Request{SeriesID: "tech_voice", AutoPublish: true})
	s.Require().NoError(err)
	s.Equal(domain.OutcomePublished, result.Outcome)
}

func (s *OrchestratorTestSuite) TestGenerateEpisode_LedgerFailureIsLogged() {
	ctx := context.Background()
	s.expectGenerated("tech_voice", "Tech Voice")
	s.speech.EXPECT().Cleanup(ctx, "tech_voice", 10)
	s.passThroughTx()
	s.episodes.EXPECT().Record(gomock.Any(), gomock.Any()).Return(int64(0), errors.New("db down"))
	s.notifier.EXPECT().Notify(ctx, gomock.Any()).Return(nil)

	result, err := s.orchestrator(true).GenerateEpisode(ctx, Request{SeriesID: "tech_voice"})
	s.NoError(err)
	s.Equal(domain.OutcomeGeneratedUnpublished, result.Outcome)
}

func (s *OrchestratorTestSuite) TestGenerateBatch_IsolatesFailures() {
	ctx := context.Background()

	s.expectGenerated("daily_news", "Daily News")
	s.content.EXPECT().Generate(ctx, "tech_voice", "override").
		Return(domain.GeneratedContent{}, domain.Wrap(domain.ErrContentGeneration, "429", nil))
	s.expectGenerated("month_end", "Month End")
	s.speech.EXPECT().Cleanup(ctx, gomock.Any(), 10).Times(2)
	s.notifier.EXPECT().Notify(ctx, gomock.Any()).Return(nil).Times(2)

	results := s.orchestrator(false).GenerateBatch(ctx,
		[]string{"daily_news", "tech_voice", "month_end"},
		map[string]string{"tech_voice": "override"},
		false,
	)

	s.Require().Len(results, 2)
	s.Equal("daily_news", results[0].Episode.SeriesID)
	s.Equal("month_end", results[1].Episode.SeriesID)
}

func (s *OrchestratorTestSuite) TestGenerateScheduled_MondayFirstRunsAllCadences() {
	ctx := context.Background()
	s.now = time.Date(2025, 9, 1, 6, 0, 0, 0, time.UTC)
	s.Require().Equal(time.Monday, s.now.Weekday())

	for _, id := range []string{"daily_news", "tech_voice", "month_end"} {
		s.expectGenerated(id, id)
		s.publisher.EXPECT().Publish(ctx, id, gomock.Any(), gomock.Any(), gomock.Any()).
			Return(domain.Publication{EpisodeID: "EP-" + id, PublishedAt: s.now}, nil)
	}
	s.speech.EXPECT().Cleanup(ctx, gomock.Any(), 10).Times(3)
	s.notifier.EXPECT().Notify(ctx, gomock.Any()).Return(nil).Times(3)

	results := s.orchestrator(false).GenerateScheduled(ctx)
	s.Len(results, 3)
	for _, r := range results {
		s.Equal(domain.OutcomePublished, r.Outcome)
	}
}

func (s *OrchestratorTestSuite) TestGenerateScheduled_TuesdayRunsDailyOnly() {
	ctx := context.Background()
	s.now = time.Date(2025, 9, 2, 6, 0, 0, 0, time.UTC)

	s.expectGenerated("daily_news", "Daily News")
	s.publisher.EXPECT().Publish(ctx, "daily_news", gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.Publication{EpisodeID: "EP", PublishedAt: s.now}, nil)
	s.speech.EXPECT().Cleanup(ctx, "daily_news", 10)
	s.notifier.EXPECT().Notify(ctx, gomock.Any()).Return(nil)

	results := s.orchestrator(false).GenerateScheduled(ctx)
	s.Require().Len(results, 1)
	s.Equal("daily_news", results[0].Episode.SeriesID)
}

func (s *OrchestratorTestSuite) TestGenerateScheduled_SkipsSeriesGeneratedToday() {
	ctx := context.Background()
	s.now = time.Date(2025, 9, 1, 18, 0, 0, 0, time.UTC)

	s.states.EXPECT().Get(ctx, "daily_news").Return(&domain.SeriesState{SeriesID: "daily_news", LastGeneratedAt: s.now.Add(-12 * time.Hour)}, nil)
	s.states.EXPECT().Get(ctx, "tech_voice").Return(&domain.SeriesState{SeriesID: "tech_voice", LastGeneratedAt: s.now.Add(-24 * time.Hour)}, nil)
	s.states.EXPECT().Get(ctx, "month_end").Return(nil, errors.New("db down"))

	for _, id := range []string{"tech_voice", "month_end"} {
		s.expectGenerated(id, id)
		s.publisher.EXPECT().Publish(ctx, id, gomock.Any(), gomock.Any(), gomock.Any()).
			Return(domain.Publication{EpisodeID: "EP-" + id, PublishedAt: s.now}, nil)
	}
	s.speech.EXPECT().Cleanup(ctx, gomock.Any(), 10).Times(2)
	s.tx.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	s.notifier.EXPECT().Notify(ctx, gomock.Any()).Return(nil).Times(2)

	results := s.orchestrator(true).GenerateScheduled(ctx)
	s.Require().Len(results, 2)
	s.Equal("tech_voice", results[0].Episode.SeriesID)
	s.Equal("month_end", results[1].Episode.SeriesID)
}

func (s *OrchestratorTestSuite) TestGenerateScheduled_AllGeneratedToday() {
	ctx := context.Background()
	s.now = time.Date(2025, 9, 2, 6, 0, 0, 0, time.UTC)

	s.states.EXPECT().Get(ctx, "daily_news").Return(&domain.SeriesState{SeriesID: "daily_news", LastGeneratedAt: s.now.Add(-time.Hour)}, nil)

	s.Empty(s.orchestrator(true).GenerateScheduled(ctx))
}

func (s *OrchestratorTestSuite) TestSameDayComparesUTCDates() {
	day := time.Date(2025, 9, 1, 23, 59, 0, 0, time.UTC)

	s.True(sameDay(day.Add(-23*time.Hour), day))
	s.False(sameDay(day.Add(2*time.Minute), day))
	s.False(sameDay(time.Time{}, day))

	// 01:30 at UTC+2 on Sept 2 is 23:30 UTC on Sept 1.
	local := time.Date(2025, 9, 2, 1, 30, 0, 0, time.FixedZone("UTC+2", 2*3600))
	s.True(sameDay(local, day))
}

func (s *OrchestratorTestSuite) TestSeriesStatus() {
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var many []domain.ArtifactInfo
	for i := 0; i < 7; i++ {
		many = append(many, domain.ArtifactInfo{Key: fmt.Sprintf("k%d", i), Size: int64(i), LastModified: base.Add(time.Duration(i) * time.Hour)})
	}

	s.artifacts.EXPECT().List(ctx, "episodes/daily_news/").Return(many, nil)
	s.artifacts.EXPECT().List(ctx, "episodes/tech_voice/").Return(nil, errors.New("access denied"))
	s.artifacts.EXPECT().List(ctx, "episodes/month_end/").Return([]domain.ArtifactInfo{}, nil)

	report := s.orchestrator(false).SeriesStatus(ctx)
	s.Require().Len(report, 3)

	s.Equal("Daily News", report[0].Name)
	s.Equal(domain.CadenceDaily, report[0].Cadence)
	s.Require().Len(report[0].RecentArtifacts, 5)
	s.Equal(5, report[0].ArtifactCount)
	s.Equal("k6", report[0].RecentArtifacts[0].Key)
	s.Equal("k2", report[0].RecentArtifacts[4].Key)
	s.Empty(report[0].Error)

	s.Equal("access denied", report[1].Error)
	s.Empty(report[1].RecentArtifacts)

	s.Zero(report[2].ArtifactCount)
}

func (s *OrchestratorTestSuite) TestSeriesStatus_IncludesLedger() {
	ctx := context.Background()

	for _, id := range s.catalog.IDs() {
		s.artifacts.EXPECT().List(ctx, domain.SeriesPrefix(id)).Return([]domain.ArtifactInfo{}, nil)
		s.episodes.EXPECT().ListRecent(ctx, id, 5).Return([]domain.EpisodeRecord{{RunID: "r-" + id, Outcome: domain.OutcomeGeneratedUnpublished}}, nil)
		s.states.EXPECT().Get(ctx, id).Return(&domain.SeriesState{SeriesID: id, TotalGenerated: 1}, nil)
	}

	report := s.orchestrator(true).SeriesStatus(ctx)
	s.Require().Len(report, 3)
	for _, st := range report {
		s.Len(st.RecentRuns, 1)
		s.Require().NotNil(st.State)
		s.Equal(int64(1), st.State.TotalGenerated)
	}
}

func (s *OrchestratorTestSuite) TestValidateConfiguration() {
	ctx := context.Background()

	s.Run("ok", func() {
		s.artifacts.EXPECT().Ping(ctx).Return(nil)
		s.notifier.EXPECT().Ping(ctx).Return(nil)
		s.True(s.orchestrator(false).ValidateConfiguration(ctx))
	})

	s.Run("storage unreachable", func() {
		s.artifacts.EXPECT().Ping(ctx).Return(errors.New("no bucket"))
		s.False(s.orchestrator(false).ValidateConfiguration(ctx))
	})

	s.Run("notification unreachable", func() {
		s.artifacts.EXPECT().Ping(ctx).Return(nil)
		s.notifier.EXPECT().Ping(ctx).Return(errors.New("no exchange"))
		s.False(s.orchestrator(false).ValidateConfiguration(ctx))
	})

	s.Run("missing credentials", func() {
		s.creds.SpeechAPIKey = ""
		s.False(s.orchestrator(false).ValidateConfiguration(ctx))
	})
}

func TestStageError(t *testing.T) {
	err := &StageError{Stage: StagePublishing, SeriesID: "tech_voice", Err: errors.New("boom")}

	if !errors.Is(err, domain.ErrPipeline) {
		t.Fatal("stage error must match ErrPipeline")
	}
	if !strings.Contains(err.Error(), "tech_voice") || !strings.Contains(err.Error(), "publishing") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
