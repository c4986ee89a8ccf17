package scheduler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"podcaster/internal/trigger"
)

// Dispatcher handles trigger events.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev trigger.Event) trigger.Response
}

type Config struct {
	Interval   time.Duration
	RunTimeout time.Duration
	RunOnStart bool
}

type Scheduler struct {
	dispatcher Dispatcher
	cfg        Config
	logger     *slog.Logger
}

func NewScheduler(dispatcher Dispatcher, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 30 * time.Minute
	}
	return &Scheduler{
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger.With("component", "scheduler"),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.cfg.Interval, "run_on_start", s.cfg.RunOnStart)

	if s.cfg.RunOnStart {
		s.runScheduled(ctx)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runScheduled(ctx)
		}
	}
}

func (s *Scheduler) runScheduled(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	resp := s.dispatcher.Dispatch(runCtx, trigger.Event{Type: "schedule"})
	if resp.StatusCode != http.StatusOK {
		s.logger.Error("scheduled run failed", "status_code", resp.StatusCode, "body", resp.Body)
		return
	}

	if body, ok := resp.Body.(trigger.SuccessBody); ok {
		s.logger.Info("scheduled run completed", "episodes_generated", body.EpisodesGenerated)
	}
}
