package main

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"podcaster/internal/domain"
	"podcaster/internal/trigger"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent episodes per series",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(runCtx context.Context, a *app) error {
				resp := a.dispatcher.Dispatch(runCtx, trigger.Event{Action: trigger.ActionStatus})
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), resp.Body)
				}

				body, ok := resp.Body.(trigger.StatusBody)
				if resp.StatusCode != http.StatusOK || !ok {
					return fmt.Errorf("status failed with status %d", resp.StatusCode)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderStatus(body.Series, time.Now()))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw report as JSON")
	return cmd
}

func renderStatus(statuses []domain.SeriesStatus, now time.Time) string {
	headers := []string{"Series", "Cadence", "Episodes", "Latest", "Size", "Stored", "Published", "Note"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft, alignRight, alignLeft}

	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		latest, size, stored := "-", "-", "-"
		if len(s.RecentArtifacts) > 0 {
			a := s.RecentArtifacts[0]
			latest = path.Base(a.Key)
			size = humanize.Bytes(uint64(a.Size))
			stored = humanize.RelTime(a.LastModified, now, "ago", "from now")
		}

		published := "-"
		if s.State != nil {
			published = strconv.FormatInt(s.State.TotalPublished, 10) + "/" + strconv.FormatInt(s.State.TotalGenerated, 10)
		}

		rows = append(rows, []string{
			s.SeriesID,
			string(s.Cadence),
			strconv.Itoa(s.ArtifactCount),
			latest,
			size,
			stored,
			published,
			s.Error,
		})
	}

	return renderTable(headers, rows, aligns)
}
