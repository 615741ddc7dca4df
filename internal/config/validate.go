package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateLearning(); err != nil {
		return err
	}
	if err := c.validateDuplicates(); err != nil {
		return err
	}
	if err := c.validateDisposition(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateTranscode(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateNotifications()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		return errors.New("paths.cache_dir must be set")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.MaxAgeDays < 0 {
		return errors.New("cache.max_age_days must be >= 0")
	}
	if c.Cache.BackupRetentionDays < 0 {
		return errors.New("cache.backup_retention_days must be >= 0")
	}
	names := map[string]string{
		"cache.analysis_store":   c.Cache.AnalysisStore,
		"cache.checksum_store":   c.Cache.ChecksumStore,
		"cache.perceptual_store": c.Cache.PerceptualStore,
	}
	seen := make(map[string]string, len(names))
	for key, name := range names {
		if other, dup := seen[name]; dup {
			return fmt.Errorf("%s and %s must name different files", other, key)
		}
		seen[name] = key
	}
	return nil
}

func (c *Config) validateLearning() error {
	if c.Learning.LearningRate <= 0 || c.Learning.LearningRate > 1 {
		return errors.New("learning.learning_rate must be in (0, 1]")
	}
	if c.Learning.MinSamples < 1 {
		return errors.New("learning.min_samples must be at least 1")
	}
	if c.Learning.MinConfidence < 0 || c.Learning.MinConfidence > 1 {
		return errors.New("learning.min_confidence must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateDuplicates() error {
	for key, value := range map[string]float64{
		"duplicates.content_size_ratio":          c.Duplicates.ContentSizeRatio,
		"duplicates.near_hash_distance":          c.Duplicates.NearHashDistance,
		"duplicates.near_size_ratio":             c.Duplicates.NearSizeRatio,
		"duplicates.heuristic_prefix_similarity": c.Duplicates.HeuristicPrefixSimilarity,
		"duplicates.heuristic_size_ratio":        c.Duplicates.HeuristicSizeRatio,
	} {
		if value < 0 || value > 1 {
			return fmt.Errorf("%s must be between 0 and 1", key)
		}
	}
	return nil
}

func (c *Config) validateDisposition() error {
	switch c.Disposition.Mode {
	case "report", "delete", "quarantine":
	default:
		return fmt.Errorf("disposition.mode must be report, delete, or quarantine (got %q)", c.Disposition.Mode)
	}
	if c.Disposition.Mode == "quarantine" && strings.TrimSpace(c.Paths.RecoveryDir) == "" {
		return errors.New("paths.recovery_dir must be set when disposition.mode is quarantine")
	}
	if c.Disposition.MtimeToleranceSeconds < 0 || c.Disposition.CreationToleranceSeconds < 0 {
		return errors.New("disposition tolerances must be >= 0")
	}
	if c.Disposition.SizeNoiseFloorBytes < 0 {
		return errors.New("disposition.size_noise_floor_bytes must be >= 0")
	}
	if c.Disposition.DurationTolerance < 0 || c.Disposition.DurationTolerance > 1 {
		return errors.New("disposition.duration_tolerance must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.MaxWorkers < 0 {
		return errors.New("workflow.max_workers must be >= 0 (0 selects automatically)")
	}
	if c.Workflow.MemoryPerWorkerMiB <= 0 {
		return errors.New("workflow.memory_per_worker_mib must be positive")
	}
	if c.Workflow.RetryAttempts < 0 {
		return errors.New("workflow.retry_attempts must be >= 0")
	}
	return nil
}

func (c *Config) validateTranscode() error {
	if err := ensurePositiveMap(map[string]int{
		"transcode.probe_timeout_seconds":     c.Transcode.ProbeTimeoutSeconds,
		"transcode.transcode_timeout_seconds": c.Transcode.TranscodeTimeoutSeconds,
		"transcode.breaker_failure_threshold": c.Transcode.BreakerFailureThreshold,
		"transcode.breaker_cooldown_seconds":  c.Transcode.BreakerCooldownSeconds,
		"transcode.default_frame_rate":        c.Transcode.DefaultFrameRate,
		"transcode.default_width":             c.Transcode.DefaultWidth,
	}); err != nil {
		return err
	}
	if c.Transcode.DefaultMaxColors < 2 || c.Transcode.DefaultMaxColors > 256 {
		return errors.New("transcode.default_max_colors must be between 2 and 256")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeoutSeconds < 0 {
		return errors.New("notifications.request_timeout_seconds must be >= 0")
	}
	topic := strings.TrimSpace(c.Notifications.NtfyTopic)
	if topic != "" && !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be an http(s) URL (got %q)", topic)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
