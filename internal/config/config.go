package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	CacheDir    string   `toml:"cache_dir"`
	OutputDir   string   `toml:"output_dir"`
	WorkDir     string   `toml:"work_dir"`
	RecoveryDir string   `toml:"recovery_dir"`
	LogDir      string   `toml:"log_dir"`
	SourceDirs  []string `toml:"source_dirs"`
}

// Cache contains configuration for the fingerprint-backed caches.
type Cache struct {
	AnalysisStore       string `toml:"analysis_store"`
	ChecksumStore       string `toml:"checksum_store"`
	PerceptualStore     string `toml:"perceptual_store"`
	MaxAgeDays          int    `toml:"max_age_days"`
	MaxPayloadBytes     int    `toml:"max_payload_bytes"`
	BackupRetentionDays int    `toml:"backup_retention_days"`
	CompactOnStart      bool   `toml:"compact_on_start"`
}

// Learning contains configuration for the pattern learning model.
type Learning struct {
	Enabled         bool    `toml:"enabled"`
	DatabasePath    string  `toml:"database_path"`
	LearningRate    float64 `toml:"learning_rate"`
	MinSamples      int     `toml:"min_samples"`
	MinConfidence   float64 `toml:"min_confidence"`
	MaxPayloadBytes int     `toml:"max_payload_bytes"`
}

// Duplicates contains the similarity thresholds used by the classifier.
// They are empirical values; tune them for the content mix at hand.
type Duplicates struct {
	Enabled                   bool    `toml:"enabled"`
	ContentSizeRatio          float64 `toml:"content_size_ratio"`
	NearHashDistance          float64 `toml:"near_hash_distance"`
	NearSizeRatio             float64 `toml:"near_size_ratio"`
	HeuristicPrefixSimilarity float64 `toml:"heuristic_prefix_similarity"`
	HeuristicSizeRatio        float64 `toml:"heuristic_size_ratio"`
}

// Disposition contains configuration for duplicate removal.
type Disposition struct {
	// Mode is one of "report", "delete", or "quarantine".
	Mode                     string  `toml:"mode"`
	MtimeToleranceSeconds    int     `toml:"mtime_tolerance_seconds"`
	CreationToleranceSeconds int     `toml:"creation_tolerance_seconds"`
	SizeNoiseFloorBytes      int64   `toml:"size_noise_floor_bytes"`
	DurationTolerance        float64 `toml:"duration_tolerance"`
}

// Workflow contains configuration for the batch worker pool.
type Workflow struct {
	MaxWorkers         int `toml:"max_workers"`
	MemoryPerWorkerMiB int `toml:"memory_per_worker_mib"`
	RetryAttempts      int `toml:"retry_attempts"`
}

// Transcode contains configuration for the external probe/transcode tools.
type Transcode struct {
	FFprobeBinary           string `toml:"ffprobe_binary"`
	FFmpegBinary            string `toml:"ffmpeg_binary"`
	ProbeTimeoutSeconds     int    `toml:"probe_timeout_seconds"`
	TranscodeTimeoutSeconds int    `toml:"transcode_timeout_seconds"`
	BreakerFailureThreshold int    `toml:"breaker_failure_threshold"`
	BreakerCooldownSeconds  int    `toml:"breaker_cooldown_seconds"`
	DefaultFrameRate        int    `toml:"default_frame_rate"`
	DefaultMaxColors        int    `toml:"default_max_colors"`
	DefaultDither           string `toml:"default_dither"`
	DefaultWidth            int    `toml:"default_width"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Metrics contains configuration for batch metrics export.
type Metrics struct {
	TextfilePath string `toml:"textfile_path"`
}

// Notifications contains configuration for batch notifications.
type Notifications struct {
	// NtfyTopic is the full ntfy topic URL; empty disables notifications.
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Config encapsulates all configuration values for gifwright.
//
// Configuration sections by subsystem:
//   - Paths: cache, output, work, recovery, and log directories
//   - Cache: fingerprint store files, age horizon, payload ceiling
//   - Learning: pattern model rate, sample and confidence floors
//   - Duplicates: classifier thresholds
//   - Disposition: removal mode and plausibility tolerances
//   - Workflow: worker pool sizing and retries
//   - Transcode: ffprobe/ffmpeg binaries, timeouts, static fallback settings
//   - Logging: log format, level, and retention
//   - Metrics: Prometheus textfile export
//   - Notifications: ntfy batch summaries
type Config struct {
	Paths         Paths         `toml:"paths"`
	Cache         Cache         `toml:"cache"`
	Learning      Learning      `toml:"learning"`
	Duplicates    Duplicates    `toml:"duplicates"`
	Disposition   Disposition   `toml:"disposition"`
	Workflow      Workflow      `toml:"workflow"`
	Transcode     Transcode     `toml:"transcode"`
	Logging       Logging       `toml:"logging"`
	Metrics       Metrics       `toml:"metrics"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/gifwright/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("gifwright.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the caches and logger write to.
// OutputDir and RecoveryDir are created on a best-effort basis; they may live
// on removable storage.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.CacheDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.RecoveryDir} {
		if strings.TrimSpace(dir) != "" {
			_ = os.MkdirAll(dir, 0o755)
		}
	}
	return nil
}

// StorePath resolves a cache store file name inside CacheDir.
func (c *Config) StorePath(name string) string {
	name = strings.TrimSpace(name)
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Paths.CacheDir, name)
}

// ModelPath returns the learning model database location.
func (c *Config) ModelPath() string {
	return c.StorePath(c.Learning.DatabasePath)
}

// CacheMaxAge returns the compaction age horizon (0 disables age purging).
func (c *Config) CacheMaxAge() time.Duration {
	if c.Cache.MaxAgeDays <= 0 {
		return 0
	}
	return time.Duration(c.Cache.MaxAgeDays) * 24 * time.Hour
}

// ProbeTimeout returns the per-call probe deadline.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Transcode.ProbeTimeoutSeconds) * time.Second
}

// TranscodeTimeout returns the per-call transcode deadline.
func (c *Config) TranscodeTimeout() time.Duration {
	return time.Duration(c.Transcode.TranscodeTimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultCacheDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "gifwright")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.cache/gifwright"
	}
	return filepath.Join(home, ".cache", "gifwright")
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
