package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gifwright/internal/config"
	"gifwright/internal/duplicates"
	"gifwright/internal/filecache"
	"gifwright/internal/learning"
	"gifwright/internal/logging"
	"gifwright/internal/media"
	"gifwright/internal/metrics"
	"gifwright/internal/services"
	"gifwright/internal/testsupport"
)

var probeInfo = media.Info{
	Duration:  20 * time.Second,
	Width:     1280,
	Height:    720,
	FrameRate: 30,
	BitRate:   2_000_000,
}

type harness struct {
	cfg        *config.Config
	runner     *Runner
	caches     *filecache.Set
	model      *learning.Model
	prober     *testsupport.FakeProber
	transcoder *testsupport.FakeTranscoder
	recorder   *metrics.Recorder
}

func newHarness(t *testing.T, cfg *config.Config, transcoder *testsupport.FakeTranscoder) *harness {
	t.Helper()
	ctx := context.Background()
	caches, err := filecache.OpenSet(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("OpenSet: %v", err)
	}
	t.Cleanup(func() { _ = caches.Close() })

	var model *learning.Model
	if cfg.Learning.Enabled {
		model, err = learning.Open(ctx, cfg.ModelPath(), learning.ParamsFromConfig(cfg.Learning), logging.NewNop())
		if err != nil {
			t.Fatalf("learning.Open: %v", err)
		}
		t.Cleanup(func() { _ = model.Close() })
	}

	prober := &testsupport.FakeProber{Info: probeInfo}
	if transcoder == nil {
		transcoder = &testsupport.FakeTranscoder{}
	}
	recorder := metrics.New()
	runner, err := NewRunner(cfg, Options{
		Caches:     caches,
		Model:      model,
		Prober:     prober,
		Transcoder: transcoder,
		Recorder:   recorder,
		Logger:     logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return &harness{cfg: cfg, runner: runner, caches: caches, model: model, prober: prober, transcoder: transcoder, recorder: recorder}
}

func writeInputs(t *testing.T, cfg *config.Config, names ...string) []string {
	t.Helper()
	dir := filepath.Join(testsupport.BaseDir(cfg), "inputs")
	paths := make([]string, 0, len(names))
	for i, name := range names {
		path := filepath.Join(dir, name)
		testsupport.WriteFile(t, path, int64(4096+i))
		paths = append(paths, path)
	}
	return paths
}

// distinctSpecs renders visibly different GIFs per input.
func distinctSpecs(job media.Job) testsupport.GIFSpec {
	switch filepath.Base(job.Input) {
	case "alpha.mp4":
		return testsupport.GIFSpec{Frames: 2, Width: 32, Height: 24, Seed: 1}
	case "bravo.mp4":
		return testsupport.GIFSpec{Frames: 4, Width: 40, Height: 24, Seed: 2}
	default:
		return testsupport.GIFSpec{Frames: 6, Width: 48, Height: 32, Seed: 5}
	}
}

func TestRunProducesOutputsAndLearns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Duplicates.Enabled = false
	h := newHarness(t, cfg, &testsupport.FakeTranscoder{Spec: distinctSpecs})
	inputs := writeInputs(t, cfg, "alpha.mp4", "bravo.mp4", "charlie.mp4")

	report, err := h.runner.Run(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.BatchID == "" {
		t.Fatalf("batch id missing")
	}
	if got := report.Count(StatusOK); got != 3 {
		t.Fatalf("ok files = %d, want 3 (%+v)", got, report.Files)
	}
	for _, f := range report.Files {
		if _, err := os.Stat(f.Output); err != nil {
			t.Fatalf("output %s missing: %v", f.Output, err)
		}
		if f.Source != SourceStatic || f.CacheHit {
			t.Fatalf("first run file %s: source %q hit %v", f.Input, f.Source, f.CacheHit)
		}
	}
	if report.AnalysisStats.Misses != 3 || report.AnalysisStats.Writes != 3 {
		t.Fatalf("analysis stats = %+v, want 3 misses and 3 writes", report.AnalysisStats)
	}

	entries := h.model.Entries()
	if len(entries) != 1 || entries[0].SampleCount != 3 {
		t.Fatalf("model entries = %+v, want one pattern with 3 samples", entries)
	}
}

func TestSecondRunIsServedFromCache(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Duplicates.Enabled = false
	h := newHarness(t, cfg, &testsupport.FakeTranscoder{Spec: distinctSpecs})
	inputs := writeInputs(t, cfg, "alpha.mp4", "bravo.mp4")

	if _, err := h.runner.Run(context.Background(), inputs); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	probes := h.prober.TotalCalls()

	report, err := h.runner.Run(context.Background(), inputs)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if got := h.prober.TotalCalls(); got != probes {
		t.Fatalf("second run probed %d more times, want 0", got-probes)
	}
	if report.AnalysisStats.Hits != 2 || report.AnalysisStats.Writes != 0 {
		t.Fatalf("analysis stats = %+v, want 2 hits and no writes", report.AnalysisStats)
	}
	for _, f := range report.Files {
		if !f.CacheHit || f.Source != SourceCache {
			t.Fatalf("file %s not served from cache: %+v", f.Input, f)
		}
	}
	// Cache hits still carry their pattern, so the model keeps learning.
	if entries := h.model.Entries(); len(entries) != 1 || entries[0].SampleCount != 4 {
		t.Fatalf("model entries = %+v, want 4 samples", entries)
	}
}

func TestModifiedInputInvalidatesCache(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithLearningDisabled())
	cfg.Duplicates.Enabled = false
	h := newHarness(t, cfg, nil)
	inputs := writeInputs(t, cfg, "alpha.mp4")

	if _, err := h.runner.Run(context.Background(), inputs); err != nil {
		t.Fatalf("Run: %v", err)
	}
	testsupport.WriteFile(t, inputs[0], 9000)

	report, err := h.runner.Run(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.AnalysisStats.StaleMisses != 1 || report.Files[0].CacheHit {
		t.Fatalf("stats = %+v, want a stale miss", report.AnalysisStats)
	}
	if got := h.prober.Calls(inputs[0]); got != 2 {
		t.Fatalf("probe calls = %d, want 2", got)
	}
}

func TestRecoverableFailureRetriesWithReducedSettings(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Duplicates.Enabled = false
	transcoder := &testsupport.FakeTranscoder{
		Spec: distinctSpecs,
		Fail: func(job media.Job, attempt int) error {
			switch {
			case filepath.Base(job.Input) == "alpha.mp4" && attempt == 1:
				return services.Wrap(services.ErrTimeout, "transcode", "ffmpeg", "deadline exceeded", nil)
			case filepath.Base(job.Input) == "bravo.mp4":
				return services.Wrap(services.ErrExternalTool, "transcode", "ffmpeg", "invalid data", nil)
			}
			return nil
		},
	}
	h := newHarness(t, cfg, transcoder)
	inputs := writeInputs(t, cfg, "alpha.mp4", "bravo.mp4", "charlie.mp4")

	report, err := h.runner.Run(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	alpha, bravo, charlie := report.Files[0], report.Files[1], report.Files[2]

	if alpha.Status != StatusRetried || alpha.Attempts != 2 {
		t.Fatalf("alpha = %+v, want retried after 2 attempts", alpha)
	}
	static := h.runner.staticSettings()
	if want := static.Reduced(); alpha.Settings.FrameRate != want.FrameRate || alpha.Settings.MaxColors != want.MaxColors {
		t.Fatalf("alpha settings = %+v, want reduced %+v", alpha.Settings, want)
	}
	if bravo.Status != StatusFailed || bravo.Attempts != 1 || !errors.Is(bravo.Err, services.ErrExternalTool) {
		t.Fatalf("bravo = %+v, want a single failed attempt", bravo)
	}
	if charlie.Status != StatusOK {
		t.Fatalf("charlie = %+v, want ok", charlie)
	}
	// Failures are not cached; the partial and the success are.
	if report.AnalysisStats.Writes != 2 {
		t.Fatalf("analysis writes = %d, want 2", report.AnalysisStats.Writes)
	}
	if entries := h.model.Entries(); len(entries) != 1 || entries[0].SampleCount != 3 {
		t.Fatalf("model entries = %+v, want 3 samples", entries)
	}
}

func TestProbeFailureFallsBackToReducedDefaults(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Duplicates.Enabled = false
	h := newHarness(t, cfg, nil)
	h.prober.Err = services.Wrap(services.ErrProbeFailure, "probe", "ffprobe", "no video stream", nil)
	inputs := writeInputs(t, cfg, "alpha.mp4")

	report, err := h.runner.Run(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	f := report.Files[0]
	if f.Status != StatusRetried || f.Source != SourceStatic {
		t.Fatalf("file = %+v, want retried with static settings", f)
	}
	if want := h.runner.staticSettings().Reduced(); f.Settings.Width != want.Width {
		t.Fatalf("width = %d, want %d", f.Settings.Width, want.Width)
	}
	if report.AnalysisStats.Writes != 0 {
		t.Fatalf("analysis writes = %d, want 0", report.AnalysisStats.Writes)
	}
	if n := len(h.model.Entries()); n != 0 {
		t.Fatalf("model learned %d patterns from an unprobed file", n)
	}
}

func TestMissingInputFailsWithoutAbortingBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithLearningDisabled())
	cfg.Duplicates.Enabled = false
	h := newHarness(t, cfg, &testsupport.FakeTranscoder{Spec: distinctSpecs})
	inputs := writeInputs(t, cfg, "alpha.mp4")
	inputs = append(inputs, filepath.Join(testsupport.BaseDir(cfg), "inputs", "ghost.mp4"))

	report, err := h.runner.Run(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Files[0].Status != StatusOK {
		t.Fatalf("alpha = %+v", report.Files[0])
	}
	if ghost := report.Files[1]; ghost.Status != StatusFailed || !errors.Is(ghost.Err, services.ErrNotFound) {
		t.Fatalf("ghost = %+v, want failed with ErrNotFound", ghost)
	}
}

func TestCancellationStopsDispatchAndWrites(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxWorkers(1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, cfg, &testsupport.FakeTranscoder{
		Hook: func(media.Job) { cancel() },
	})
	inputs := writeInputs(t, cfg, "alpha.mp4", "bravo.mp4", "charlie.mp4")

	report, err := h.runner.Run(ctx, inputs)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if !report.Cancelled {
		t.Fatalf("report not marked cancelled")
	}
	if got := report.Count(StatusCancelled); got != 3 {
		t.Fatalf("cancelled files = %d, want 3 (%+v)", got, report.Files)
	}
	if got := len(h.transcoder.Jobs()); got != 1 {
		t.Fatalf("transcoder saw %d jobs, want 1", got)
	}
	if report.AnalysisStats.Writes != 0 || h.caches.Stores()[0].Store.Len() != 0 {
		t.Fatalf("analysis cache written after cancellation: %+v", report.AnalysisStats)
	}
	if n := len(h.model.Entries()); n != 0 {
		t.Fatalf("model trained after cancellation: %d entries", n)
	}
}

func TestRunQuarantinesExactDuplicates(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDispositionMode("quarantine"), testsupport.WithLearningDisabled())
	same := testsupport.GIFSpec{Frames: 4, Width: 40, Height: 30, Seed: 3}
	h := newHarness(t, cfg, &testsupport.FakeTranscoder{
		Spec: func(job media.Job) testsupport.GIFSpec {
			if filepath.Base(job.Input) == "zulu.mp4" {
				return testsupport.GIFSpec{Frames: 7, Width: 56, Height: 30, Seed: 8}
			}
			return same
		},
	})
	inputs := writeInputs(t, cfg, "one.mp4", "two.mp4", "zulu.mp4")

	report, err := h.runner.Run(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	dd := report.Dedupe
	if dd.Artifacts != 3 {
		t.Fatalf("annotated %d artifacts, want 3", dd.Artifacts)
	}
	exact := 0
	for _, c := range dd.Candidates {
		if c.Tier == duplicates.TierExact {
			exact++
		}
	}
	if exact != 1 {
		t.Fatalf("exact candidates = %d, want 1 (%+v)", exact, dd.Candidates)
	}
	if dd.Removed() != 1 {
		t.Fatalf("removed = %d, want 1 (%+v)", dd.Removed(), dd.Outcomes)
	}
	quarantined, err := os.ReadDir(cfg.Paths.RecoveryDir)
	if err != nil {
		t.Fatalf("read recovery dir: %v", err)
	}
	if len(quarantined) != 1 {
		t.Fatalf("recovery dir holds %d files, want 1", len(quarantined))
	}
	if len(listGIFs(cfg.Paths.OutputDir)) != 2 {
		t.Fatalf("output dir should keep two gifs")
	}
}

func TestPlanWarmsCacheForRun(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithLearningDisabled())
	cfg.Duplicates.Enabled = false
	h := newHarness(t, cfg, nil)
	inputs := writeInputs(t, cfg, "alpha.mp4", "bravo.mp4")

	planned, stats, err := h.runner.Plan(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(planned) != 2 || stats.Recomputes != 2 || stats.Writes != 2 {
		t.Fatalf("plan = %d results, stats %+v", len(planned), stats)
	}
	if planned[0].Source != SourceStatic || planned[0].Pattern.ResolutionClass != "720p" {
		t.Fatalf("planned = %+v", planned[0])
	}
	if len(h.transcoder.Jobs()) != 0 {
		t.Fatalf("Plan must not transcode")
	}

	report, err := h.runner.Run(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.AnalysisStats.Hits != 2 {
		t.Fatalf("run after plan: stats %+v, want 2 hits", report.AnalysisStats)
	}
	if got := h.prober.TotalCalls(); got != 2 {
		t.Fatalf("probe calls = %d, want 2", got)
	}
}

func TestPoolSize(t *testing.T) {
	const mib = uint64(1 << 20)
	tests := []struct {
		name       string
		configured int
		cpus       int
		availMem   uint64
		perWorker  uint64
		inputs     int
		want       int
	}{
		{"cpu bound", 0, 4, 0, 512 * mib, 10, 4},
		{"configured cap", 2, 8, 0, 512 * mib, 10, 2},
		{"memory bound", 8, 8, 1536 * mib, 512 * mib, 10, 3},
		{"fewer inputs", 8, 8, 0, 512 * mib, 2, 2},
		{"never zero", 4, 4, 100 * mib, 512 * mib, 10, 1},
		{"empty batch", 4, 4, 0, 512 * mib, 0, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := poolSize(tt.configured, tt.cpus, tt.availMem, tt.perWorker, tt.inputs); got != tt.want {
				t.Fatalf("poolSize = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCollectInputs(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "a.mp4"), 10)
	testsupport.WriteFile(t, filepath.Join(dir, "notes.txt"), 10)
	testsupport.WriteFile(t, filepath.Join(dir, "sub", "b.MKV"), 10)
	single := filepath.Join(t.TempDir(), "c.webm")
	testsupport.WriteFile(t, single, 10)

	got, err := CollectInputs([]string{dir, single, filepath.Join(dir, "a.mp4")})
	if err != nil {
		t.Fatalf("CollectInputs: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("inputs = %v, want 3", got)
	}
	if _, err := CollectInputs([]string{filepath.Join(dir, "missing")}); err == nil {
		t.Fatalf("expected error for missing input")
	}
}

func TestCollectArtifactsSkipsPartialOutputs(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "a.gif"), 10)
	testsupport.WriteFile(t, filepath.Join(dir, "b.partial.gif"), 10)
	testsupport.WriteFile(t, filepath.Join(dir, "nested", "c.GIF"), 10)
	testsupport.WriteFile(t, filepath.Join(dir, "d.mp4"), 10)

	got, err := CollectArtifacts([]string{dir})
	if err != nil {
		t.Fatalf("CollectArtifacts: %v", err)
	}
	want := []string{filepath.Join(dir, "a.gif"), filepath.Join(dir, "nested", "c.GIF")}
	if len(got) != len(want) {
		t.Fatalf("artifacts = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("artifacts[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
