package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"gifwright/internal/config"
	"gifwright/internal/logging"
	"gifwright/internal/metrics"
	"gifwright/internal/notifications"
	"gifwright/internal/preflight"
	"gifwright/internal/workflow"
)

type fileJSON struct {
	Input    string  `json:"input"`
	Output   string  `json:"output,omitempty"`
	Status   string  `json:"status"`
	Source   string  `json:"source,omitempty"`
	Pattern  string  `json:"pattern,omitempty"`
	CacheHit bool    `json:"cache_hit"`
	FPS      float64 `json:"frame_rate,omitempty"`
	Colors   int     `json:"max_colors,omitempty"`
	Width    int     `json:"width,omitempty"`
	Attempts int     `json:"attempts,omitempty"`
	Size     int64   `json:"size_bytes,omitempty"`
	Elapsed  float64 `json:"elapsed_seconds,omitempty"`
	Error    string  `json:"error,omitempty"`
}

func toFileJSON(f workflow.FileResult) fileJSON {
	out := fileJSON{
		Input:    f.Input,
		Output:   f.Output,
		Status:   string(f.Status),
		Source:   f.Source,
		CacheHit: f.CacheHit,
		FPS:      f.Settings.FrameRate,
		Colors:   f.Settings.MaxColors,
		Width:    f.Settings.Width,
		Attempts: f.Attempts,
		Size:     f.Size,
		Elapsed:  f.Elapsed.Seconds(),
	}
	if f.Pattern.ContentType != "" {
		out.Pattern = f.Pattern.Key()
	}
	if f.Err != nil {
		out.Error = f.Err.Error()
	}
	return out
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var workers int
	var noDedupe bool
	var mode string

	cmd := &cobra.Command{
		Use:   "run <path>...",
		Short: "Convert videos to GIFs, then remove duplicates",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("workers") {
				cfg.Workflow.MaxWorkers = workers
			}
			if noDedupe {
				cfg.Duplicates.Enabled = false
			}
			if mode != "" {
				cfg.Disposition.Mode = mode
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			inputs, err := workflow.CollectInputs(args)
			if err != nil {
				return err
			}
			if len(inputs) == 0 {
				return fmt.Errorf("no video files found in %v", args)
			}

			if err := preflight.Error(preflight.RunAll(cmd.Context(), cfg)); err != nil {
				return err
			}

			caches, err := ctx.openCaches()
			if err != nil {
				return err
			}
			if cfg.Cache.CompactOnStart {
				if _, err := caches.Compact(cfg.CacheMaxAge()); err != nil {
					logging.WarnWithContext(ctx.log(), "cache compaction failed", "cache_compact_failed",
						logging.Error(err),
						logging.String(logging.FieldImpact, "stale cache records kept until the next compaction"),
					)
				}
			}

			recorder := metrics.New()
			runner, err := ctx.newRunner(cmd.Context(), recorder)
			if err != nil {
				return err
			}
			report, runErr := runner.Run(cmd.Context(), inputs)
			if err := recorder.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
				logging.WarnWithContext(ctx.log(), "metrics export failed", "metrics_export_failed",
					logging.Error(err),
					logging.String("path", cfg.Metrics.TextfilePath),
				)
			}

			notifyBatch(cmd.Context(), ctx, cfg, report, runErr)

			if ctx.wantJSON() {
				files := make([]fileJSON, 0, len(report.Files))
				for _, f := range report.Files {
					files = append(files, toFileJSON(f))
				}
				if err := writeJSON(cmd, map[string]any{
					"batch_id":   report.BatchID,
					"workers":    report.Workers,
					"elapsed":    report.Elapsed().Seconds(),
					"files":      files,
					"cache":      report.AnalysisStats,
					"duplicates": dedupeJSON(report.Dedupe),
					"cancelled":  report.Cancelled,
				}); err != nil {
					return err
				}
			} else {
				printRunReport(cmd.OutOrStdout(), report)
			}

			if runErr != nil {
				return runErr
			}
			if failed := report.Count(workflow.StatusFailed); failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(report.Files))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Worker cap (0 selects automatically)")
	cmd.Flags().BoolVar(&noDedupe, "no-dedupe", false, "Skip the duplicate pass")
	cmd.Flags().StringVar(&mode, "mode", "", "Override the disposition mode (report, delete, quarantine)")
	return cmd
}

// notifyBatch never fails the command; delivery problems are logged.
func notifyBatch(c context.Context, ctx *commandContext, cfg *config.Config, report workflow.Report, runErr error) {
	notifier := notifications.NewService(cfg)
	var err error
	switch {
	case runErr != nil && !errors.Is(runErr, context.Canceled):
		err = notifier.NotifyError(context.WithoutCancel(c), runErr, "batch "+report.BatchID)
	case len(report.Files) > 0:
		err = notifier.NotifyBatchCompleted(context.WithoutCancel(c), notifications.BatchSummary{
			Converted: report.Count(workflow.StatusOK),
			Retried:   report.Count(workflow.StatusRetried),
			Failed:    report.Count(workflow.StatusFailed),
			Cancelled: report.Count(workflow.StatusCancelled),
			Removed:   report.Dedupe.Removed(),
			Flagged:   report.Dedupe.Flagged(),
			Elapsed:   report.Elapsed(),
		})
	}
	if err != nil {
		logging.WarnWithContext(ctx.log(), "notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "batch summary was not delivered"),
		)
	}
}

func printRunReport(out io.Writer, report workflow.Report) {
	heading(out, fmt.Sprintf("Batch %s", report.BatchID))
	printFileTable(out, report.Files)
	fmt.Fprintf(out, "Files: %d ok, %d retried, %s, %d cancelled (%d workers, %s)\n",
		report.Count(workflow.StatusOK),
		report.Count(workflow.StatusRetried),
		highlight(out, fmt.Sprintf("%d failed", report.Count(workflow.StatusFailed)), report.Count(workflow.StatusFailed) > 0, ansiRed),
		report.Count(workflow.StatusCancelled),
		report.Workers,
		report.Elapsed().Round(time.Millisecond),
	)
	stats := report.AnalysisStats
	fmt.Fprintf(out, "Analysis cache: %d hits, %d misses, %d stale (%s hit rate)\n",
		stats.Hits, stats.Misses, stats.StaleMisses, percent(stats.HitRate()))
	printDedupe(out, report.Dedupe)
}

func printFileTable(out io.Writer, files []workflow.FileResult) {
	rows := make([][]string, 0, len(files))
	for _, f := range files {
		size := "-"
		if f.Size > 0 {
			size = humanSize(f.Size)
		}
		rows = append(rows, []string{
			filepath.Base(f.Input),
			highlight(out, string(f.Status), f.Status == workflow.StatusFailed, ansiRed),
			orDash(f.Source),
			strconv.FormatFloat(f.Settings.FrameRate, 'f', -1, 64),
			strconv.Itoa(f.Settings.MaxColors),
			strconv.Itoa(f.Settings.Width),
			strconv.Itoa(f.Attempts),
			size,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Input", "Status", "Settings", "FPS", "Colors", "Width", "Attempts", "Size"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
	))
}

func newPlanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <path>...",
		Short: "Show the settings a run would use, warming the analysis cache",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := workflow.CollectInputs(args)
			if err != nil {
				return err
			}
			runner, err := ctx.newRunner(cmd.Context(), nil)
			if err != nil {
				return err
			}
			results, stats, err := runner.Plan(cmd.Context(), inputs)
			if err != nil {
				return err
			}
			if ctx.wantJSON() {
				files := make([]fileJSON, 0, len(results))
				for _, f := range results {
					files = append(files, toFileJSON(f))
				}
				return writeJSON(cmd, map[string]any{"files": files, "cache": stats})
			}
			out := cmd.OutOrStdout()
			printFileTable(out, results)
			fmt.Fprintf(out, "Analysis cache: %d hits, %d recomputed\n", stats.Hits, stats.Recomputes)
			return nil
		},
	}
}
