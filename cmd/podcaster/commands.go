package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"podcaster/internal/trigger"
)

func newValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check credentials, storage and notification connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(runCtx context.Context, a *app) error {
				resp := a.dispatcher.Dispatch(runCtx, trigger.Event{Action: trigger.ActionValidate})
				body, ok := resp.Body.(trigger.ValidateBody)
				if !ok || !body.Valid {
					return errors.New("configuration validation failed")
				}
				fmt.Fprintln(cmd.OutOrStdout(), "configuration valid")
				return nil
			})
		},
	}
}

func newEpisodeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "episode <episode-id>",
		Short: "Show an episode as reported by the hosting platform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(runCtx context.Context, a *app) error {
				status, err := a.publisher.EpisodeStatus(runCtx, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), status)
			})
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
