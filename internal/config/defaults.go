package config

const (
	defaultOutputDir                = "~/gifs"
	defaultWorkDir                  = "~/.local/share/gifwright/work"
	defaultRecoveryDir              = "~/.local/share/gifwright/recovery"
	defaultLogDir                   = "~/.local/share/gifwright/logs"
	defaultAnalysisStore            = "analysis.fps"
	defaultChecksumStore            = "checksums.fps"
	defaultPerceptualStore          = "phash.fps"
	defaultModelDatabase            = "model.db"
	defaultCacheMaxAgeDays          = 90
	defaultCacheMaxPayloadBytes     = 16 * 1024
	defaultBackupRetentionDays      = 30
	defaultLearningRate             = 0.25
	defaultMinSamples               = 3
	defaultMinConfidence            = 0.5
	defaultLearningMaxPayloadBytes  = 4 * 1024
	defaultDispositionMode          = "report"
	defaultMtimeToleranceSeconds    = 60
	defaultCreationToleranceSeconds = 5
	defaultSizeNoiseFloorBytes      = 1024
	defaultDurationTolerance        = 0.20
	defaultMemoryPerWorkerMiB       = 512
	defaultRetryAttempts            = 1
	defaultProbeTimeoutSeconds      = 30
	defaultTranscodeTimeoutSeconds  = 600
	defaultBreakerFailureThreshold  = 5
	defaultBreakerCooldownSeconds   = 60
	defaultFrameRate                = 12
	defaultMaxColors                = 256
	defaultDither                   = "sierra2_4a"
	defaultWidth                    = 480
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	defaultLogRetentionDays         = 30
	defaultNotifyTimeoutSeconds     = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CacheDir:    defaultCacheDir(),
			OutputDir:   defaultOutputDir,
			WorkDir:     defaultWorkDir,
			RecoveryDir: defaultRecoveryDir,
			LogDir:      defaultLogDir,
		},
		Cache: Cache{
			AnalysisStore:       defaultAnalysisStore,
			ChecksumStore:       defaultChecksumStore,
			PerceptualStore:     defaultPerceptualStore,
			MaxAgeDays:          defaultCacheMaxAgeDays,
			MaxPayloadBytes:     defaultCacheMaxPayloadBytes,
			BackupRetentionDays: defaultBackupRetentionDays,
			CompactOnStart:      true,
		},
		Learning: Learning{
			Enabled:         true,
			DatabasePath:    defaultModelDatabase,
			LearningRate:    defaultLearningRate,
			MinSamples:      defaultMinSamples,
			MinConfidence:   defaultMinConfidence,
			MaxPayloadBytes: defaultLearningMaxPayloadBytes,
		},
		Duplicates: Duplicates{
			Enabled:                   true,
			ContentSizeRatio:          0.05,
			NearHashDistance:          0.02,
			NearSizeRatio:             0.10,
			HeuristicPrefixSimilarity: 0.50,
			HeuristicSizeRatio:        0.15,
		},
		Disposition: Disposition{
			Mode:                     defaultDispositionMode,
			MtimeToleranceSeconds:    defaultMtimeToleranceSeconds,
			CreationToleranceSeconds: defaultCreationToleranceSeconds,
			SizeNoiseFloorBytes:      defaultSizeNoiseFloorBytes,
			DurationTolerance:        defaultDurationTolerance,
		},
		Workflow: Workflow{
			MemoryPerWorkerMiB: defaultMemoryPerWorkerMiB,
			RetryAttempts:      defaultRetryAttempts,
		},
		Transcode: Transcode{
			FFprobeBinary:           "ffprobe",
			FFmpegBinary:            "ffmpeg",
			ProbeTimeoutSeconds:     defaultProbeTimeoutSeconds,
			TranscodeTimeoutSeconds: defaultTranscodeTimeoutSeconds,
			BreakerFailureThreshold: defaultBreakerFailureThreshold,
			BreakerCooldownSeconds:  defaultBreakerCooldownSeconds,
			DefaultFrameRate:        defaultFrameRate,
			DefaultMaxColors:        defaultMaxColors,
			DefaultDither:           defaultDither,
			DefaultWidth:            defaultWidth,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNotifyTimeoutSeconds,
		},
	}
}
