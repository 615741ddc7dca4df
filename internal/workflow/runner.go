package workflow

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"gifwright/internal/config"
	"gifwright/internal/disposition"
	"gifwright/internal/filecache"
	"gifwright/internal/learning"
	"gifwright/internal/logging"
	"gifwright/internal/media"
	"gifwright/internal/media/ffmpeg"
	"gifwright/internal/media/ffprobe"
	"gifwright/internal/metrics"
	"gifwright/internal/services"
	"gifwright/internal/textutil"
)

// Options wires a Runner's collaborators. Caches is required; a nil Model
// disables learning; nil Prober and Transcoder select the ffprobe and ffmpeg
// adapters from config.
type Options struct {
	Caches     *filecache.Set
	Model      *learning.Model
	Prober     media.Prober
	Transcoder media.Transcoder
	Sources    *disposition.SourceIndex
	Recorder   *metrics.Recorder
	Logger     *slog.Logger
	// HashFunc overrides the perceptual hash used by the duplicate pass.
	HashFunc filecache.HashFunc
	Now      func() time.Time
}

// Runner processes batches. It is safe to run one batch at a time.
type Runner struct {
	cfg        *config.Config
	caches     *filecache.Set
	model      *learning.Model
	prober     *media.GuardedProber
	transcoder media.Transcoder
	recorder   *metrics.Recorder
	hashFunc   filecache.HashFunc
	logger     *slog.Logger
	now        func() time.Time

	sourcesOnce sync.Once
	sources     *disposition.SourceIndex
}

// NewRunner validates opts and builds a Runner.
func NewRunner(cfg *config.Config, opts Options) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("workflow: config is required")
	}
	if opts.Caches == nil {
		return nil, errors.New("workflow: caches are required")
	}
	logger := logging.NewComponentLogger(opts.Logger, "workflow")
	prober := opts.Prober
	if prober == nil {
		prober = ffprobe.Prober{Binary: cfg.Transcode.FFprobeBinary, Timeout: cfg.ProbeTimeout()}
	}
	transcoder := opts.Transcoder
	if transcoder == nil {
		transcoder = ffmpeg.Transcoder{Binary: cfg.Transcode.FFmpegBinary, Timeout: cfg.TranscodeTimeout(), Logger: opts.Logger}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	guarded := media.NewGuardedProber(prober, media.BreakerConfig{
		Name:             "ffprobe",
		FailureThreshold: uint32(max(cfg.Transcode.BreakerFailureThreshold, 1)),
		Cooldown:         time.Duration(cfg.Transcode.BreakerCooldownSeconds) * time.Second,
	}, opts.Logger)
	return &Runner{
		cfg:        cfg,
		caches:     opts.Caches,
		model:      opts.Model,
		prober:     guarded,
		transcoder: transcoder,
		recorder:   opts.Recorder,
		hashFunc:   opts.HashFunc,
		logger:     logger,
		now:        now,
		sources:    opts.Sources,
	}, nil
}

// Run processes inputs and then runs the duplicate pass over the output
// directory. A failing file never aborts the batch; the returned error is
// non-nil only when the batch could not start or ctx was cancelled.
func (r *Runner) Run(ctx context.Context, inputs []string) (Report, error) {
	batchID := uuid.NewString()
	ctx = services.WithBatchID(ctx, batchID)
	logger := logging.WithContext(ctx, r.logger)

	report := Report{
		BatchID: batchID,
		Started: r.now(),
		Files:   make([]FileResult, len(inputs)),
	}
	if err := os.MkdirAll(r.cfg.Paths.OutputDir, 0o755); err != nil {
		report.Finished = r.now()
		return report, services.Wrap(services.ErrConfiguration, "workflow", "prepare", "create output directory", err)
	}

	workers := PoolSize(r.cfg.Workflow.MaxWorkers, len(inputs), r.cfg.Workflow.MemoryPerWorkerMiB)
	report.Workers = workers
	logger.Info("batch started",
		logging.Int("files", len(inputs)),
		logging.Int("workers", workers),
		logging.Bool("learning", r.model != nil),
	)

	stats := make([]filecache.Stats, workers)
	jobs := make(chan int)
	var wg sync.WaitGroup
	for slot := 0; slot < workers; slot++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			workerCtx := services.WithWorker(ctx, slot)
			for idx := range jobs {
				input := inputs[idx]
				report.Files[idx] = r.processFile(services.WithFile(workerCtx, input), input, &stats[slot])
			}
		}()
	}

	dispatched := 0
dispatch:
	for idx := range inputs {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- idx:
			dispatched++
		}
	}
	close(jobs)
	wg.Wait()

	for idx := dispatched; idx < len(inputs); idx++ {
		report.Files[idx] = FileResult{Input: inputs[idx], Status: StatusCancelled, Err: ctx.Err()}
	}
	for i := range stats {
		report.AnalysisStats.Merge(stats[i])
	}

	var runErr error
	if ctx.Err() != nil {
		report.Cancelled = true
		runErr = ctx.Err()
	} else if r.cfg.Duplicates.Enabled {
		paths := append(report.Outputs(), listGIFs(r.cfg.Paths.OutputDir)...)
		dd, err := r.Dedupe(ctx, paths)
		report.Dedupe = dd
		if err != nil {
			report.Cancelled = ctx.Err() != nil
			runErr = err
		}
	}

	report.Finished = r.now()
	r.record(report)
	logger.Info("batch finished",
		logging.Int("ok", report.Count(StatusOK)),
		logging.Int("retried", report.Count(StatusRetried)),
		logging.Int("failed", report.Count(StatusFailed)),
		logging.Int("cancelled", report.Count(StatusCancelled)),
		logging.Float64("cache_hit_rate", report.AnalysisStats.HitRate()),
		logging.Int("duplicates", len(report.Dedupe.Candidates)),
		logging.Duration("elapsed", report.Elapsed()),
	)
	return report, runErr
}

// Plan resolves settings for every input without transcoding. Fresh analyses
// are written to the analysis cache, so a later Run skips probing them.
func (r *Runner) Plan(ctx context.Context, inputs []string) ([]FileResult, filecache.Stats, error) {
	var stats filecache.Stats
	results := make([]FileResult, 0, len(inputs))
	for _, input := range inputs {
		if err := ctx.Err(); err != nil {
			return results, stats, err
		}
		fileCtx := services.WithFile(ctx, input)
		res := FileResult{Input: input, Output: r.outputPath(input), Source: SourceCache}
		analysis, hit, err := r.caches.Analysis.LookupOrAnalyze(fileCtx, input, func(ctx context.Context, path string) (filecache.AnalysisResult, error) {
			a, source, pattern, err := r.analyze(ctx, path)
			res.Source, res.Pattern = source, pattern
			return a, err
		}, &stats)
		res.CacheHit = hit
		if err != nil {
			res.Status, res.Err = StatusFailed, err
		} else {
			res.Status = StatusOK
			res.Settings = settingsFromAnalysis(analysis)
			if hit {
				res.Pattern, _ = learning.PatternFromTags(analysis.ContentTags)
			}
		}
		results = append(results, res)
	}
	return results, stats, nil
}

func (r *Runner) record(report Report) {
	if r.recorder == nil {
		return
	}
	for _, f := range report.Files {
		r.recorder.RecordFile(string(f.Status), f.Elapsed)
		if f.Source != "" {
			r.recorder.RecordPrediction(f.Source)
		}
		for i := 1; i < f.Attempts; i++ {
			r.recorder.RecordRetry()
		}
	}
	r.recorder.RecordCache("analysis", report.AnalysisStats)
	r.recorder.RecordCache("dedupe", report.Dedupe.Stats)
	for _, c := range report.Dedupe.Candidates {
		r.recorder.RecordDuplicate(c.Tier.String())
	}
	for _, o := range report.Dedupe.Outcomes {
		r.recorder.RecordDecision(string(o.Decision.Action), o.Applied)
	}
	r.recorder.RecordBreakerState("ffprobe", r.prober.BreakerState())
	r.recorder.RecordBatch(report.Workers, report.Elapsed(), report.Finished)
}

func (r *Runner) sourceIndex() *disposition.SourceIndex {
	r.sourcesOnce.Do(func() {
		if r.sources != nil {
			return
		}
		r.sources = disposition.NewSourceIndex(r.prober, r.logger)
		r.sources.Scan(r.cfg.Paths.SourceDirs...)
	})
	return r.sources
}

func (r *Runner) outputPath(input string) string {
	return filepath.Join(r.cfg.Paths.OutputDir, textutil.OutputName(input))
}
