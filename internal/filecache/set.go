package filecache

import (
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"gifwright/internal/config"
	"gifwright/internal/fpstore"
	"gifwright/internal/logging"
)

// Set bundles the caches configured for a run.
type Set struct {
	Analysis   *AnalysisCache
	Checksums  *ChecksumCache
	Perceptual *PerceptualCache

	backupRetention int
	logger          *slog.Logger
}

// NamedStore pairs a store with the cache name shown to operators.
type NamedStore struct {
	Name  string
	Store *fpstore.Store
}

// OpenSet opens every cache under the configured cache directory. Only a
// cache directory that cannot be created or written is an error.
func OpenSet(cfg *config.Config, logger *slog.Logger) (*Set, error) {
	opts := Options{Logger: logger, MaxPayloadBytes: cfg.Cache.MaxPayloadBytes}
	analysis, err := OpenAnalysis(cfg.StorePath(cfg.Cache.AnalysisStore), opts)
	if err != nil {
		return nil, err
	}
	checksums, err := OpenChecksums(cfg.StorePath(cfg.Cache.ChecksumStore), opts)
	if err != nil {
		_ = analysis.Close()
		return nil, err
	}
	perceptual, err := OpenPerceptual(cfg.StorePath(cfg.Cache.PerceptualStore), opts)
	if err != nil {
		_ = analysis.Close()
		_ = checksums.Close()
		return nil, err
	}
	return &Set{
		Analysis:        analysis,
		Checksums:       checksums,
		Perceptual:      perceptual,
		backupRetention: cfg.Cache.BackupRetentionDays,
		logger:          logging.NewComponentLogger(logger, "filecache"),
	}, nil
}

// Stores lists the underlying stores in a stable order.
func (s *Set) Stores() []NamedStore {
	return []NamedStore{
		{Name: "analysis", Store: s.Analysis.base.Store()},
		{Name: "checksum", Store: s.Checksums.Store()},
		{Name: "perceptual", Store: s.Perceptual.Store()},
	}
}

// Compact compacts every store and prunes expired corruption backups.
func (s *Set) Compact(maxAge time.Duration) (map[string]fpstore.CompactResult, error) {
	results := make(map[string]fpstore.CompactResult, 3)
	var errs []error
	for _, named := range s.Stores() {
		res, err := named.Store.Compact(maxAge)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results[named.Name] = res
	}
	s.PruneBackups()
	return results, errors.Join(errs...)
}

// PruneBackups removes .corrupt snapshots older than the retention window.
func (s *Set) PruneBackups() []string {
	targets := make([]logging.RetentionTarget, 0, 3)
	for _, named := range s.Stores() {
		targets = append(targets, logging.RetentionTarget{
			Dir:     filepath.Dir(named.Store.Path()),
			Pattern: named.Store.BackupPattern(),
		})
	}
	return logging.PruneOldFiles(s.logger, s.backupRetention, targets...)
}

// Close releases every store.
func (s *Set) Close() error {
	if s == nil {
		return nil
	}
	return errors.Join(s.Analysis.Close(), s.Checksums.Close(), s.Perceptual.Close())
}
