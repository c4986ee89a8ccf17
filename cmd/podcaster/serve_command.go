package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"podcaster/internal/httpapi"
	"podcaster/internal/scheduler"
	"podcaster/internal/trigger"
)

type serveOptions struct {
	noScheduler bool
	noHTTP      bool
	noConsumer  bool
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, the HTTP trigger API and the queue consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			lock, err := ctx.lock()
			if err != nil {
				return err
			}
			defer ctx.unlock(lock)

			sigCtx, stop := signalContext()
			defer stop()

			return ctx.withApp(sigCtx, func(runCtx context.Context, a *app) error {
				return serve(runCtx, a, opts)
			})
		},
	}

	cmd.Flags().BoolVar(&opts.noScheduler, "no-scheduler", false, "Do not run scheduled generation")
	cmd.Flags().BoolVar(&opts.noHTTP, "no-http", false, "Do not serve the HTTP API")
	cmd.Flags().BoolVar(&opts.noConsumer, "no-consumer", false, "Do not consume the trigger queue")

	return cmd
}

func serve(ctx context.Context, a *app, opts serveOptions) error {
	cfg := a.cfg
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		name string
		err  error
	}
	results := make(chan result, 3)
	running := 0

	start := func(name string, fn func(context.Context) error) {
		running++
		go func() {
			results <- result{name: name, err: fn(ctx)}
		}()
	}

	if !opts.noScheduler {
		sched := scheduler.NewScheduler(a.dispatcher, scheduler.Config{
			Interval:   cfg.Schedule.Interval,
			RunTimeout: cfg.Schedule.RunTimeout,
			RunOnStart: cfg.Schedule.RunOnStart,
		}, a.logger)
		start("scheduler", sched.Start)
	}

	if !opts.noHTTP {
		server := httpapi.NewServer(httpapi.Config{
			Addr:           cfg.Trigger.HTTPAddr,
			PublicURL:      cfg.Trigger.PublicURL,
			RateLimit:      cfg.Trigger.RateLimit,
			RateBurst:      cfg.Trigger.RateBurst,
			RequestTimeout: cfg.Trigger.RequestTimeout,
		}, httpapi.Dependencies{
			Dispatcher: a.dispatcher,
			Catalog:    a.catalog,
			Feeds:      a.feeds,
			Audio:      a.artifacts,
			Episodes:   a.publisher,
		}, a.logger)
		start("http", server.ListenAndServe)
	}

	if !opts.noConsumer {
		consumer, err := trigger.NewConsumer(cfg.Notification.URL, cfg.Trigger.QueueName, a.dispatcher, a.logger)
		if err != nil {
			return err
		}
		defer consumer.Close()
		start("consumer", consumer.Run)
	}

	if running == 0 {
		return errors.New("nothing to serve: every component is disabled")
	}

	a.logger.Info("podcaster started", "series", a.catalog.IDs(), "components", running)

	var firstErr error
	for i := 0; i < running; i++ {
		r := <-results
		if r.err != nil && !errors.Is(r.err, context.Canceled) && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", r.name, r.err)
			a.logger.Error("component stopped", "component", r.name, "error", r.err)
		}
		cancel()
	}

	a.logger.Info("podcaster stopped")
	return firstErr
}
