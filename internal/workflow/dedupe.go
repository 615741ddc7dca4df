package workflow

import (
	"context"
	"sort"

	"gifwright/internal/disposition"
	"gifwright/internal/duplicates"
	"gifwright/internal/logging"
	"gifwright/internal/services"
)

// Dedupe annotates paths, classifies every pair and resolves the candidates
// under the configured disposition mode.
func (r *Runner) Dedupe(ctx context.Context, paths []string) (DedupeResult, error) {
	ctx = services.WithStage(ctx, "dedupe")
	logger := logging.WithContext(ctx, r.logger)
	paths = uniqueSorted(paths)

	var result DedupeResult
	annotator := duplicates.Annotator{
		Checksums:  r.caches.Checksums,
		Perceptual: r.caches.Perceptual,
		HashFunc:   r.hashFunc,
		Logger:     r.logger,
	}
	artifacts, err := annotator.Annotate(ctx, paths, &result.Stats)
	result.Artifacts = len(artifacts)
	if err != nil {
		return result, err
	}

	classifier := duplicates.NewClassifier(duplicates.ThresholdsFromConfig(r.cfg.Duplicates))
	result.Candidates = classifier.Classify(artifacts)
	result.Groups = duplicates.GroupCandidates(result.Candidates)
	if len(result.Candidates) == 0 {
		logger.Debug("no duplicates found", logging.Int("artifacts", len(artifacts)))
		return result, nil
	}

	resolver := disposition.NewResolver(disposition.Options{
		Policy:      disposition.PolicyFromConfig(r.cfg.Disposition),
		OutputDir:   r.cfg.Paths.OutputDir,
		RecoveryDir: r.cfg.Paths.RecoveryDir,
		Sources:     r.sourceIndex(),
		Logger:      r.logger,
		Now:         r.now,
	})
	outcomes, err := resolver.ResolveAll(ctx, result.Candidates)
	result.Outcomes = outcomes
	logger.Info("duplicate pass finished",
		logging.Int("artifacts", len(artifacts)),
		logging.Int("candidates", len(result.Candidates)),
		logging.Int("groups", len(result.Groups)),
		logging.Int("removed", result.Removed()),
		logging.Int("flagged", result.Flagged()),
		logging.String("mode", r.cfg.Disposition.Mode),
	)
	return result, err
}

func uniqueSorted(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok || p == "" {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
