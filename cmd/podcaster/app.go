package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"

	"podcaster/internal/config"
	"podcaster/internal/content"
	"podcaster/internal/feed"
	"podcaster/internal/notify"
	"podcaster/internal/pipeline"
	"podcaster/internal/podbean"
	"podcaster/internal/series"
	"podcaster/internal/speech"
	"podcaster/internal/storage/objectstore"
	"podcaster/internal/storage/postgres"
	"podcaster/internal/trigger"
)

// app holds every wired component and the connections to release on exit.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	catalog      *series.Registry
	artifacts    *objectstore.NatsObjectStore
	notifier     *notify.RabbitMQ
	publisher    *podbean.Client
	orchestrator *pipeline.Orchestrator
	dispatcher   *trigger.Dispatcher
	feeds        feed.Source

	nc *nats.Conn
	db *sqlx.DB
}

func loadCatalog(path string) (*series.Registry, error) {
	if path == "" {
		return series.Default()
	}
	return series.Load(path)
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	catalog, err := loadCatalog(cfg.SeriesCatalog)
	if err != nil {
		return nil, fmt.Errorf("load series catalog: %w", err)
	}
	a.catalog = catalog

	a.nc, err = nats.Connect(cfg.Storage.NATSURL, nats.Name("podcaster"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	js, err := a.nc.JetStream()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open jetstream: %w", err)
	}
	a.artifacts, err = objectstore.New(js, cfg.Storage.Bucket)
	if err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("connected to object store", "bucket", cfg.Storage.Bucket)

	a.notifier, err = notify.NewRabbitMQ(notify.Config{
		URL:        cfg.Notification.URL,
		Exchange:   cfg.Notification.Exchange,
		RoutingKey: cfg.Notification.RoutingKey,
		QueueName:  cfg.Notification.QueueName,
	}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	generator := content.New(content.Config{
		APIKey:      cfg.Credentials.ContentAPIKey,
		BaseURL:     cfg.Content.BaseURL,
		Model:       cfg.Content.Model,
		MaxRetries:  cfg.Content.MaxRetries,
		Timeout:     cfg.Content.Timeout,
		BackoffUnit: cfg.Content.BackoffUnit,
		MinWords:    cfg.Content.MinWords,
	}, catalog, logger)

	synthesizer := speech.New(speech.Config{
		APIKey:   cfg.Credentials.SpeechAPIKey,
		BaseURL:  cfg.Speech.BaseURL,
		ModelID:  cfg.Speech.ModelID,
		Timeout:  cfg.Speech.Timeout,
		Settings: voiceSettings(cfg.Speech.VoiceSettings),
	}, catalog, a.artifacts, logger)

	a.publisher = podbean.New(podbean.Config{
		ClientID:     cfg.Credentials.PublisherClientID,
		ClientSecret: cfg.Credentials.PublisherClientSecret,
		BaseURL:      cfg.Publisher.BaseURL,
		TokenTTL:     cfg.Publisher.TokenTTL,
		Timeout:      cfg.Publisher.Timeout,
		ScratchDir:   cfg.Publisher.ScratchDir,
		BrandTag:     cfg.Publisher.BrandTag,
	}, catalog, a.artifacts, logger)

	deps := pipeline.Dependencies{
		Catalog:   catalog,
		Content:   generator,
		Speech:    synthesizer,
		Publisher: a.publisher,
		Notifier:  a.notifier,
		Artifacts: a.artifacts,
	}
	a.feeds = feed.NewArtifactSource(a.artifacts, catalog)

	if cfg.Database.Enabled {
		a.db, err = sqlx.ConnectContext(ctx, "postgres", cfg.Database.DSN())
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		logger.Info("connected to database")

		episodes := postgres.NewEpisodeStore(a.db)
		deps.Episodes = episodes
		deps.States = postgres.NewSeriesStateStore(a.db)
		deps.Tx = postgres.NewTransactionManager(a.db)
		a.feeds = episodes
	}

	a.orchestrator = pipeline.New(deps, cfg.Pipeline, cfg.Credentials, logger)
	a.dispatcher = trigger.NewDispatcher(a.orchestrator, cfg.Trigger.FallbackSeriesID, logger)

	return a, nil
}

func (a *app) Close() {
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			a.logger.Warn("failed to close rabbitmq", "error", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.nc != nil {
		a.nc.Close()
	}
}

func voiceSettings(c config.VoiceSettings) speech.VoiceSettings {
	vs := speech.DefaultVoiceSettings()
	if c.Stability != nil {
		vs.Stability = *c.Stability
	}
	if c.SimilarityBoost != nil {
		vs.SimilarityBoost = *c.SimilarityBoost
	}
	if c.Style != nil {
		vs.Style = *c.Style
	}
	if c.UseSpeakerBoost != nil {
		vs.UseSpeakerBoost = *c.UseSpeakerBoost
	}
	return vs
}
