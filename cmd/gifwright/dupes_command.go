package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"gifwright/internal/workflow"
)

type decisionJSON struct {
	Tier        string `json:"tier"`
	Keep        string `json:"keep,omitempty"`
	Remove      string `json:"remove,omitempty"`
	Action      string `json:"action"`
	Rule        string `json:"rule,omitempty"`
	Reason      string `json:"reason,omitempty"`
	NeedsReview bool   `json:"needs_review"`
	Applied     bool   `json:"applied"`
	Destination string `json:"destination,omitempty"`
	Error       string `json:"error,omitempty"`
}

func dedupeJSON(result workflow.DedupeResult) map[string]any {
	decisions := make([]decisionJSON, 0, len(result.Outcomes))
	for _, o := range result.Outcomes {
		d := decisionJSON{
			Tier:        o.Decision.Candidate.Tier.String(),
			Keep:        o.Decision.Keep,
			Remove:      o.Decision.Remove,
			Action:      string(o.Decision.Action),
			Rule:        o.Decision.Rule,
			Reason:      o.Decision.Reason,
			NeedsReview: o.Decision.NeedsReview,
			Applied:     o.Applied,
			Destination: o.Destination,
		}
		if o.Decision.Err != nil {
			d.Error = o.Decision.Err.Error()
		}
		decisions = append(decisions, d)
	}
	groups := make([][]string, 0, len(result.Groups))
	for _, g := range result.Groups {
		groups = append(groups, g.Paths)
	}
	return map[string]any{
		"artifacts":  result.Artifacts,
		"candidates": len(result.Candidates),
		"groups":     groups,
		"decisions":  decisions,
		"removed":    result.Removed(),
		"flagged":    result.Flagged(),
		"cache":      result.Stats,
	}
}

func newDupesCommand(ctx *commandContext) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "dupes [path...]",
		Short: "Find and resolve duplicate GIFs (defaults to the output directory)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if mode != "" {
				cfg.Disposition.Mode = mode
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			runner, err := ctx.newRunner(cmd.Context(), nil)
			if err != nil {
				return err
			}

			paths := runner.OutputArtifacts()
			if len(args) > 0 {
				if paths, err = workflow.CollectArtifacts(args); err != nil {
					return err
				}
			}

			result, err := runner.Dedupe(cmd.Context(), paths)
			if ctx.wantJSON() {
				if jsonErr := writeJSON(cmd, dedupeJSON(result)); jsonErr != nil {
					return jsonErr
				}
				return err
			}
			printDedupe(cmd.OutOrStdout(), result)
			return err
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "Override the disposition mode (report, delete, quarantine)")
	return cmd
}

func printDedupe(out io.Writer, result workflow.DedupeResult) {
	if len(result.Candidates) == 0 {
		fmt.Fprintf(out, "Duplicates: none among %d artifacts\n", result.Artifacts)
		return
	}
	rows := make([][]string, 0, len(result.Outcomes))
	for _, o := range result.Outcomes {
		d := o.Decision
		action := string(d.Action)
		if o.Applied {
			action += " (applied)"
		}
		rows = append(rows, []string{
			d.Candidate.Tier.String(),
			baseOrDash(d.Keep),
			baseOrDash(d.Remove),
			highlight(out, action, d.NeedsReview, ansiYellow),
			orDash(d.Reason),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Tier", "Keep", "Remove", "Action", "Reason"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
	))
	fmt.Fprintf(out, "Duplicates: %d candidates in %d groups, %d removed, %d flagged for review\n",
		len(result.Candidates), len(result.Groups), result.Removed(), result.Flagged())
}

func baseOrDash(path string) string {
	if path == "" {
		return "-"
	}
	return filepath.Base(path)
}
