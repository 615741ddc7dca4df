package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gifwright/internal/notifications"
	"gifwright/internal/preflight"
	"gifwright/internal/workflow"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var notify bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check directories and external tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			if notify {
				res := preflight.Result{Name: "Notifications", Passed: true, Detail: "test notification sent"}
				if cfg.Notifications.NtfyTopic == "" {
					res.Detail = "disabled"
				} else if err := notifications.NewService(cfg).TestNotification(cmd.Context()); err != nil {
					res.Passed = false
					res.Detail = err.Error()
				}
				results = append(results, res)
			}
			workers := workflow.PoolSize(cfg.Workflow.MaxWorkers, 0, cfg.Workflow.MemoryPerWorkerMiB)

			if ctx.wantJSON() {
				if err := writeJSON(cmd, map[string]any{"checks": results, "max_workers": workers}); err != nil {
					return err
				}
				return preflight.Error(results)
			}

			out := cmd.OutOrStdout()
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				status := "ok"
				switch {
				case !r.Passed && r.Optional:
					status = highlight(out, "missing", true, ansiYellow)
				case !r.Passed:
					status = highlight(out, "fail", true, ansiRed)
				}
				rows = append(rows, []string{r.Name, status, r.Detail})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Check", "Status", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft},
			))
			fmt.Fprintf(out, "Worker ceiling: %d\n", workers)
			return preflight.Error(results)
		},
	}
	cmd.Flags().BoolVar(&notify, "notify", false, "Also send a test notification")
	return cmd
}
