package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"gifwright/internal/learning"
)

func newModelCommand(ctx *commandContext) *cobra.Command {
	modelCmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect and rebuild the pattern learning model",
	}
	modelCmd.AddCommand(newModelShowCommand(ctx))
	modelCmd.AddCommand(newModelRebuildCommand(ctx))
	return modelCmd
}

type entryJSON struct {
	Pattern     string            `json:"pattern"`
	Settings    learning.Settings `json:"settings"`
	Confidence  float64           `json:"confidence"`
	MeanScore   float64           `json:"mean_score"`
	SampleCount int               `json:"sample_count"`
	LastUpdated string            `json:"last_updated"`
}

func formatSettings(s learning.Settings) string {
	out := fmt.Sprintf("%sfps %dc %dpx %s",
		strconv.FormatFloat(s.FrameRate, 'f', -1, 64), s.MaxColors, s.Width, orDash(s.DitherMode))
	if s.Lossy > 0 {
		out += fmt.Sprintf(" lossy=%d", s.Lossy)
	}
	return out
}

func newModelShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "List learned patterns and their confidence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := ctx.openModel(cmd.Context(), true)
			if err != nil {
				return err
			}
			entries := model.Entries()
			params := model.Params()

			if ctx.wantJSON() {
				items := make([]entryJSON, 0, len(entries))
				for _, e := range entries {
					items = append(items, entryJSON{
						Pattern:     e.Pattern.Key(),
						Settings:    e.Settings,
						Confidence:  e.Confidence,
						MeanScore:   e.MeanScore,
						SampleCount: e.SampleCount,
						LastUpdated: e.LastUpdated.UTC().Format("2006-01-02T15:04:05Z"),
					})
				}
				return writeJSON(cmd, map[string]any{
					"version": model.Version(),
					"path":    model.Path(),
					"entries": items,
				})
			}

			out := cmd.OutOrStdout()
			heading(out, fmt.Sprintf("Model v%d (%s)", model.Version(), model.Path()))
			if len(entries) == 0 {
				fmt.Fprintln(out, "No patterns learned yet")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				trusted := e.SampleCount >= params.MinSamples && e.Confidence >= params.MinConfidence
				rows = append(rows, []string{
					e.Pattern.Key(),
					strconv.Itoa(e.SampleCount),
					highlight(out, percent(e.Confidence), !trusted, ansiYellow),
					strconv.FormatFloat(e.MeanScore, 'f', 2, 64),
					formatSettings(e.Settings),
					humanAge(e.LastUpdated),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Pattern", "Samples", "Confidence", "Mean", "Settings", "Updated"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func newModelRebuildCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Replay the training log into a fresh model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := ctx.openModel(cmd.Context(), true)
			if err != nil {
				return err
			}
			res, err := model.Rebuild(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.wantJSON() {
				return writeJSON(cmd, map[string]int{
					"events":  res.Events,
					"entries": res.Entries,
					"version": res.Version,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Replayed %d events into %d patterns (model v%d)\n",
				res.Events, res.Entries, res.Version)
			return nil
		},
	}
}
