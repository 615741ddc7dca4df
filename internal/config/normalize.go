package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCache()
	c.normalizeLearning()
	c.normalizeDisposition()
	c.normalizeTranscode()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("GIFWRIGHT_CACHE_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.CacheDir = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir()
	}
	var err error
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.RecoveryDir) == "" {
		c.Paths.RecoveryDir = defaultRecoveryDir
	}
	if c.Paths.RecoveryDir, err = expandPath(c.Paths.RecoveryDir); err != nil {
		return fmt.Errorf("paths.recovery_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	sources := make([]string, 0, len(c.Paths.SourceDirs))
	for _, dir := range c.Paths.SourceDirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		expanded, err := expandPath(strings.TrimSpace(dir))
		if err != nil {
			return fmt.Errorf("paths.source_dirs: %w", err)
		}
		sources = append(sources, expanded)
	}
	c.Paths.SourceDirs = sources
	return nil
}

func (c *Config) normalizeCache() {
	c.Cache.AnalysisStore = strings.TrimSpace(c.Cache.AnalysisStore)
	if c.Cache.AnalysisStore == "" {
		c.Cache.AnalysisStore = defaultAnalysisStore
	}
	c.Cache.ChecksumStore = strings.TrimSpace(c.Cache.ChecksumStore)
	if c.Cache.ChecksumStore == "" {
		c.Cache.ChecksumStore = defaultChecksumStore
	}
	c.Cache.PerceptualStore = strings.TrimSpace(c.Cache.PerceptualStore)
	if c.Cache.PerceptualStore == "" {
		c.Cache.PerceptualStore = defaultPerceptualStore
	}
	if c.Cache.MaxPayloadBytes <= 0 {
		c.Cache.MaxPayloadBytes = defaultCacheMaxPayloadBytes
	}
}

func (c *Config) normalizeLearning() {
	c.Learning.DatabasePath = strings.TrimSpace(c.Learning.DatabasePath)
	if c.Learning.DatabasePath == "" {
		c.Learning.DatabasePath = defaultModelDatabase
	}
	if c.Learning.MaxPayloadBytes <= 0 {
		c.Learning.MaxPayloadBytes = defaultLearningMaxPayloadBytes
	}
}

func (c *Config) normalizeDisposition() {
	c.Disposition.Mode = strings.ToLower(strings.TrimSpace(c.Disposition.Mode))
	if c.Disposition.Mode == "" {
		c.Disposition.Mode = defaultDispositionMode
	}
}

func (c *Config) normalizeTranscode() {
	c.Transcode.FFprobeBinary = strings.TrimSpace(c.Transcode.FFprobeBinary)
	if c.Transcode.FFprobeBinary == "" {
		c.Transcode.FFprobeBinary = "ffprobe"
	}
	c.Transcode.FFmpegBinary = strings.TrimSpace(c.Transcode.FFmpegBinary)
	if c.Transcode.FFmpegBinary == "" {
		c.Transcode.FFmpegBinary = "ffmpeg"
	}
	c.Transcode.DefaultDither = strings.ToLower(strings.TrimSpace(c.Transcode.DefaultDither))
	if c.Transcode.DefaultDither == "" {
		c.Transcode.DefaultDither = defaultDither
	}
}

func (c *Config) normalizeLogging() {
	if value, ok := os.LookupEnv("GIFWRIGHT_LOG_LEVEL"); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
