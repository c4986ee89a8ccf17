package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"podcaster/internal/trigger"
)

type runOptions struct {
	series    []string
	prompt    string
	noPublish bool
	scheduled bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate episodes once and exit",
		Long: "Generate episodes once. Without flags every configured series runs; " +
			"--scheduled runs only the series due today.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := buildRunEvent(opts)
			if err != nil {
				return err
			}

			lock, err := ctx.lock()
			if err != nil {
				return err
			}
			defer ctx.unlock(lock)

			sigCtx, stop := signalContext()
			defer stop()

			return ctx.withApp(sigCtx, func(runCtx context.Context, a *app) error {
				resp := a.dispatcher.Dispatch(runCtx, ev)
				if err := writeJSON(cmd.OutOrStdout(), resp.Body); err != nil {
					return err
				}
				return checkRunResponse(ev, resp)
			})
		},
	}

	cmd.Flags().StringSliceVarP(&opts.series, "series", "s", nil, "Series to generate (repeatable)")
	cmd.Flags().StringVar(&opts.prompt, "prompt", "", "Prompt override, only with a single --series")
	cmd.Flags().BoolVar(&opts.noPublish, "no-publish", false, "Generate and store audio without publishing")
	cmd.Flags().BoolVar(&opts.scheduled, "scheduled", false, "Run the series due today")

	return cmd
}

func buildRunEvent(opts runOptions) (trigger.Event, error) {
	publish := !opts.noPublish

	switch {
	case opts.scheduled:
		if len(opts.series) > 0 || opts.prompt != "" {
			return trigger.Event{}, fmt.Errorf("--scheduled cannot be combined with --series or --prompt")
		}
		return trigger.Event{Type: "schedule"}, nil

	case len(opts.series) == 1:
		return trigger.Event{
			SeriesID:     opts.series[0],
			CustomPrompt: opts.prompt,
			AutoPublish:  &publish,
		}, nil

	case opts.prompt != "":
		return trigger.Event{}, fmt.Errorf("--prompt needs exactly one --series")

	case len(opts.series) > 1:
		return trigger.Event{SeriesIDs: opts.series, AutoPublish: &publish}, nil
	}

	if opts.noPublish {
		return trigger.Event{}, fmt.Errorf("--no-publish needs --series")
	}
	return trigger.Event{}, nil
}

// checkRunResponse fails a run that errored or that asked for one series and
// produced nothing.
func checkRunResponse(ev trigger.Event, resp trigger.Response) error {
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("run failed with status %d", resp.StatusCode)
	}
	body, ok := resp.Body.(trigger.SuccessBody)
	if ev.Kind() == trigger.KindSingle && ok && body.EpisodesGenerated == 0 {
		return fmt.Errorf("no episode generated for %s", ev.SeriesID)
	}
	return nil
}
