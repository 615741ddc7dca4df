package workflow

import (
	"context"
	"errors"

	"gifwright/internal/filecache"
	"gifwright/internal/learning"
	"gifwright/internal/logging"
	"gifwright/internal/media"
	"gifwright/internal/services"
)

// plan is what a file will be encoded with and how to learn from it.
type plan struct {
	settings media.Settings
	source   string
	pattern  learning.Pattern
	// learnable is false when the pattern is unknown (probe failed or a cache
	// entry without tags).
	learnable bool
	hit       bool
	// cacheable marks settings worth writing to the analysis cache.
	cacheable bool
}

func (r *Runner) processFile(ctx context.Context, input string, stats *filecache.Stats) FileResult {
	started := r.now()
	res := FileResult{Input: input, Output: r.outputPath(input)}
	finish := func(status FileStatus, err error) FileResult {
		res.Status, res.Err = status, err
		res.Elapsed = r.now().Sub(started)
		return res
	}
	if err := ctx.Err(); err != nil {
		return finish(StatusCancelled, err)
	}
	logger := logging.WithContext(ctx, r.logger)

	p, err := r.planFile(ctx, input, stats)
	if err != nil {
		if ctx.Err() != nil {
			return finish(StatusCancelled, err)
		}
		logging.WarnWithContext(logger, "file skipped", "file_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the input exists and is a readable video"),
			logging.String(logging.FieldImpact, "no gif produced for this file"),
		)
		return finish(StatusFailed, err)
	}
	res.CacheHit, res.Source, res.Pattern = p.hit, p.source, p.pattern

	out, used, attempts, err := r.transcode(services.WithStage(ctx, "transcode"), input, res.Output, p.settings)
	res.Settings, res.Attempts = used, attempts
	if ctx.Err() != nil {
		// Nothing learned or cached from a cancelled file.
		return finish(StatusCancelled, errors.Join(err, ctx.Err()))
	}

	outcome := learning.OutcomeSuccess
	status := StatusOK
	switch {
	case err != nil:
		outcome, status = learning.OutcomeFailure, StatusFailed
	case attempts > 1 || (p.source == SourceStatic && !p.learnable):
		outcome, status = learning.OutcomePartial, StatusRetried
	}
	r.train(ctx, p, used, outcome)

	if err != nil {
		logging.WarnWithContext(logger, "transcode failed", "transcode_failed",
			logging.Error(err),
			logging.Int("attempts", attempts),
			logging.String(logging.FieldErrorHint, "inspect the ffmpeg output in the debug log"),
			logging.String(logging.FieldImpact, "no gif produced for this file"),
		)
		return finish(status, err)
	}
	res.Size = out.Size

	if p.cacheable && (!p.hit || attempts > 1) {
		if werr := r.caches.Analysis.Store(input, analysisFromSettings(used, p.pattern), stats); werr != nil {
			logger.Debug("analysis cache write skipped", logging.Error(werr))
		}
	}
	logger.Info("gif written",
		logging.String("output", out.Path),
		logging.String("settings_source", p.source),
		logging.Bool("cache_hit", p.hit),
		logging.Int("attempts", attempts),
		logging.Int64("size_bytes", out.Size),
	)
	return finish(status, nil)
}

// planFile picks settings from the analysis cache, the model, or the static
// defaults, in that order.
func (r *Runner) planFile(ctx context.Context, input string, stats *filecache.Stats) (plan, error) {
	cached, hit, err := r.caches.Analysis.Lookup(input, stats)
	if err != nil {
		return plan{}, err
	}
	if hit {
		pattern, ok := learning.PatternFromTags(cached.ContentTags)
		return plan{
			settings:  settingsFromAnalysis(cached),
			source:    SourceCache,
			pattern:   pattern,
			learnable: ok,
			hit:       true,
			cacheable: ok,
		}, nil
	}

	analysis, source, pattern, err := r.analyze(services.WithStage(ctx, "probe"), input)
	if err == nil {
		return plan{
			settings:  settingsFromAnalysis(analysis),
			source:    source,
			pattern:   pattern,
			learnable: true,
			cacheable: true,
		}, nil
	}
	if ctx.Err() != nil || !services.Recoverable(err) {
		return plan{}, err
	}
	logging.WarnWithContext(logging.WithContext(ctx, r.logger), "probe failed; using reduced defaults", "probe_fallback",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "run ffprobe on the file by hand"),
		logging.String(logging.FieldImpact, "gif encoded with reduced default settings and not learned from"),
	)
	return plan{settings: r.staticSettings().Reduced(), source: SourceStatic}, nil
}

// analyze probes input and chooses settings for it.
func (r *Runner) analyze(ctx context.Context, input string) (filecache.AnalysisResult, string, learning.Pattern, error) {
	info, err := r.prober.Probe(ctx, input)
	if err != nil {
		return filecache.AnalysisResult{}, "", learning.Pattern{}, err
	}
	pattern := learning.Classify(info, nil)
	settings := r.staticSettings()
	source := SourceStatic
	if r.model != nil {
		if pred, ok := r.model.Predict(pattern); ok {
			settings = pred.Settings.Media()
			source = string(pred.Kind)
			attrs := logging.DecisionAttrs("settings_prediction", source, "model confidence above floor")
			attrs = append(attrs,
				logging.String("pattern", pattern.Key()),
				logging.String("matched", pred.Pattern.Key()),
				logging.Float64("confidence", pred.Confidence),
				logging.Int("samples", pred.SampleCount),
			)
			logging.WithContext(ctx, r.logger).Debug("settings predicted", logging.Args(attrs...)...)
		}
	}
	if info.Width > 0 && settings.Width > info.Width {
		settings.Width = info.Width
	}
	return analysisFromSettings(settings, pattern), source, pattern, nil
}

// transcode runs the job, retrying with reduced settings while the failure
// is recoverable and attempts remain.
func (r *Runner) transcode(ctx context.Context, input, output string, settings media.Settings) (media.Output, media.Settings, int, error) {
	maxAttempts := 1 + max(r.cfg.Workflow.RetryAttempts, 0)
	var (
		out     media.Output
		err     error
		attempt int
	)
	for attempt = 1; attempt <= maxAttempts; attempt++ {
		out, err = r.transcoder.Transcode(ctx, media.Job{Input: input, Output: output, Settings: settings})
		if err == nil || ctx.Err() != nil || !services.Recoverable(err) || attempt == maxAttempts {
			break
		}
		reduced := settings.Reduced()
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "transcode failed; retrying with reduced settings", "transcode_retry",
			logging.Error(err),
			logging.Int("attempt", attempt),
			logging.Float64("frame_rate", reduced.FrameRate),
			logging.Int("max_colors", reduced.MaxColors),
			logging.Int("width", reduced.Width),
			logging.String(logging.FieldImpact, "gif quality reduced for this file"),
		)
		settings = reduced
	}
	return out, settings, min(attempt, maxAttempts), err
}

func (r *Runner) train(ctx context.Context, p plan, used media.Settings, outcome learning.Outcome) {
	if r.model == nil || !p.learnable || ctx.Err() != nil {
		return
	}
	if _, err := r.model.Train(ctx, p.pattern, learning.SettingsFromMedia(used), outcome); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "model training skipped", "training_failed",
			logging.Error(err),
			logging.String("pattern", p.pattern.Key()),
			logging.String(logging.FieldImpact, "this outcome is not learned from"),
		)
	}
}

func (r *Runner) staticSettings() media.Settings {
	t := r.cfg.Transcode
	return media.Settings{
		FrameRate:  float64(t.DefaultFrameRate),
		MaxColors:  t.DefaultMaxColors,
		DitherMode: t.DefaultDither,
		Width:      t.DefaultWidth,
	}
}

func settingsFromAnalysis(a filecache.AnalysisResult) media.Settings {
	s := media.Settings{
		FrameRate:  a.FrameRate,
		MaxColors:  a.MaxColors,
		DitherMode: a.DitherMode,
		Width:      a.Width,
		Lossy:      a.Lossy,
	}
	if a.Crop != nil {
		s.Crop = &media.Crop{X: a.Crop.X, Y: a.Crop.Y, Width: a.Crop.Width, Height: a.Crop.Height}
	}
	return s
}

func analysisFromSettings(s media.Settings, p learning.Pattern) filecache.AnalysisResult {
	a := filecache.AnalysisResult{
		FrameRate:   s.FrameRate,
		DitherMode:  s.DitherMode,
		MaxColors:   s.MaxColors,
		Width:       s.Width,
		Lossy:       s.Lossy,
		ContentTags: p.Tags(),
	}
	if s.Crop != nil {
		a.Crop = &filecache.CropRegion{X: s.Crop.X, Y: s.Crop.Y, Width: s.Crop.Width, Height: s.Crop.Height}
	}
	return a
}
