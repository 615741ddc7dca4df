package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"gifwright/internal/filecache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the fingerprint caches",
	}
	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheCompactCommand(ctx))
	cacheCmd.AddCommand(newCacheValidateCommand(ctx))
	cacheCmd.AddCommand(newCacheRebuildCommand(ctx))
	return cacheCmd
}

type cacheStatsJSON struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Keys     int    `json:"keys"`
	Records  int    `json:"records"`
	Bytes    int64  `json:"bytes"`
	Degraded bool   `json:"degraded"`
}

func collectCacheStats(caches *filecache.Set) []cacheStatsJSON {
	stores := caches.Stores()
	out := make([]cacheStatsJSON, 0, len(stores))
	for _, named := range stores {
		var size int64
		if info, err := os.Stat(named.Store.Path()); err == nil {
			size = info.Size()
		}
		out = append(out, cacheStatsJSON{
			Name:     named.Name,
			Path:     named.Store.Path(),
			Keys:     named.Store.Len(),
			Records:  named.Store.PhysicalRecords(),
			Bytes:    size,
			Degraded: named.Store.Degraded(),
		})
	}
	return out
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show key and record counts per cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			caches, err := ctx.openCaches()
			if err != nil {
				return err
			}
			stats := collectCacheStats(caches)
			if ctx.wantJSON() {
				return writeJSON(cmd, stats)
			}
			out := cmd.OutOrStdout()
			rows := make([][]string, 0, len(stats))
			for _, s := range stats {
				rows = append(rows, []string{
					s.Name,
					strconv.Itoa(s.Keys),
					strconv.Itoa(s.Records),
					humanSize(s.Bytes),
					highlight(out, yesNo(s.Degraded), s.Degraded, ansiRed),
					s.Path,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Cache", "Keys", "Records", "Size", "Degraded", "Path"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func newCacheCompactCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Drop superseded, expired, and orphaned cache records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			caches, err := ctx.openCaches()
			if err != nil {
				return err
			}
			results, compactErr := caches.Compact(cfg.CacheMaxAge())
			if ctx.wantJSON() {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
				return compactErr
			}
			out := cmd.OutOrStdout()
			rows := make([][]string, 0, len(results))
			for _, named := range caches.Stores() {
				res, ok := results[named.Name]
				if !ok {
					rows = append(rows, []string{named.Name, "-", "-", "-", "-", "-", "-"})
					continue
				}
				rows = append(rows, []string{
					named.Name,
					strconv.Itoa(res.Before),
					strconv.Itoa(res.Kept),
					strconv.Itoa(res.Superseded),
					strconv.Itoa(res.Expired),
					strconv.Itoa(res.Missing),
					strconv.Itoa(res.Malformed),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Cache", "Before", "Kept", "Superseded", "Expired", "Missing", "Malformed"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			return compactErr
		},
	}
}

func newCacheValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check every cache file for structural damage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			caches, err := ctx.openCaches()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			var errs []error
			for _, named := range caches.Stores() {
				if err := named.Store.Validate(); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", named.Name, err))
					fmt.Fprintf(out, "%s: %s\n", named.Name, highlight(out, err.Error(), true, ansiRed))
					continue
				}
				fmt.Fprintf(out, "%s: ok\n", named.Name)
			}
			return errors.Join(errs...)
		},
	}
}

func newCacheRebuildCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rewrite every cache from its readable records, keeping a backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			caches, err := ctx.openCaches()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			var errs []error
			for _, named := range caches.Stores() {
				res, err := named.Store.Rebuild()
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", named.Name, err))
					continue
				}
				fmt.Fprintf(out, "%s: kept %d, discarded %d", named.Name, res.Kept, res.Discarded)
				if res.BackupPath != "" {
					fmt.Fprintf(out, " (backup %s)", res.BackupPath)
				}
				fmt.Fprintln(out)
			}
			return errors.Join(errs...)
		},
	}
}
