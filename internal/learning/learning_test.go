package learning

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"gifwright/internal/logging"
	"gifwright/internal/media"
	"gifwright/internal/services"
)

var moviePattern = Pattern{
	ContentType:      "movie",
	ResolutionClass:  "1080p",
	DurationClass:    "long",
	MotionLevel:      "medium",
	ComplexityBucket: "60",
}

var baseSettings = Settings{FrameRate: 12, MaxColors: 128, DitherMode: "sierra2_4a", Width: 480}

func openTestModel(t *testing.T, params Params) *Model {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.db")
	m, err := Open(context.Background(), path, params, logging.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	clock := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestTrainFiveSuccessesRaisesConfidence(t *testing.T) {
	m := openTestModel(t, Params{LearningRate: 0.1, MinSamples: 3, MinConfidence: 0.5})
	ctx := context.Background()

	first, err := m.Train(ctx, moviePattern, baseSettings, OutcomeSuccess)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if first.SampleCount != 1 {
		t.Fatalf("first sample count = %d, want 1", first.SampleCount)
	}
	var last Entry
	for i := 0; i < 4; i++ {
		if last, err = m.Train(ctx, moviePattern, baseSettings, OutcomeSuccess); err != nil {
			t.Fatalf("Train: %v", err)
		}
	}
	if last.SampleCount != 5 {
		t.Fatalf("sample count = %d, want 5", last.SampleCount)
	}
	if !(last.Confidence > first.Confidence) {
		t.Fatalf("confidence after 5 successes = %f, want > %f", last.Confidence, first.Confidence)
	}
	if want := 1 - math.Pow(0.9, 5); math.Abs(last.Confidence-want) > 1e-9 {
		t.Fatalf("confidence = %f, want %f", last.Confidence, want)
	}
}

func TestTrainConfidenceCurve(t *testing.T) {
	tests := []struct {
		name    string
		lr      float64
		outcome Outcome
		want    []float64
	}{
		{"successes at lr 0.1", 0.1, OutcomeSuccess, []float64{0.1, 0.19, 0.271, 0.3439, 0.40951, 0.468559, 0.5217031}},
		{"successes at default lr", 0.25, OutcomeSuccess, []float64{0.25, 0.4375, 0.578125}},
		{"partial at default lr", 0.25, OutcomePartial, []float64{0.15, 0.2625}},
		{"lr 1 is the running mean", 1, OutcomeFailure, []float64{0.1, 0.1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, err := tt.outcome.Score()
			if err != nil {
				t.Fatalf("Score: %v", err)
			}
			var (
				entry  Entry
				exists bool
			)
			for i, want := range tt.want {
				entry = apply(entry, exists, TrainingEvent{Pattern: moviePattern, Settings: baseSettings, LearningRate: tt.lr}, score)
				exists = true
				if entry.SampleCount != i+1 {
					t.Fatalf("step %d: sample count = %d, want %d", i+1, entry.SampleCount, i+1)
				}
				if math.Abs(entry.Confidence-want) > 1e-6 {
					t.Fatalf("step %d: confidence = %.7f, want %.7f", i+1, entry.Confidence, want)
				}
			}
		})
	}
}

func TestPredictExactAfterConfidenceCrossesFloor(t *testing.T) {
	m := openTestModel(t, Params{LearningRate: 0.1, MinSamples: 3, MinConfidence: 0.5})
	ctx := context.Background()
	for i := 1; i <= 7; i++ {
		if _, err := m.Train(ctx, moviePattern, baseSettings, OutcomeSuccess); err != nil {
			t.Fatalf("Train: %v", err)
		}
		_, ok := m.Predict(moviePattern)
		if want := i >= 7; ok != want {
			t.Fatalf("after %d successes: prediction ok = %v, want %v", i, ok, want)
		}
	}
	pred, _ := m.Predict(moviePattern)
	if pred.Kind != MatchExact {
		t.Fatalf("kind = %q, want %q", pred.Kind, MatchExact)
	}
}

func TestTrainConfidenceStaysInRangeAndSuccessNeverLowersIt(t *testing.T) {
	outcomes := []Outcome{
		OutcomeFailure, OutcomeSuccess, OutcomePartial, OutcomeSuccess,
		OutcomeFailure, OutcomeFailure, OutcomeSuccess, OutcomeSuccess, OutcomePartial, OutcomeSuccess,
	}
	for _, lr := range []float64{0.05, 0.25, 0.5, 1} {
		var (
			entry  Entry
			exists bool
		)
		for i, outcome := range outcomes {
			score, _ := outcome.Score()
			prev := entry
			entry = apply(entry, exists, TrainingEvent{Pattern: moviePattern, Settings: baseSettings, LearningRate: lr}, score)
			if entry.Confidence < 0 || entry.Confidence > 1 {
				t.Fatalf("lr=%v step %d: confidence %f out of range", lr, i, entry.Confidence)
			}
			if entry.SampleCount != i+1 {
				t.Fatalf("lr=%v step %d: sample count %d, want %d", lr, i, entry.SampleCount, i+1)
			}
			if exists && outcome == OutcomeSuccess && entry.Confidence < prev.Confidence {
				t.Fatalf("lr=%v step %d: success lowered confidence %f -> %f", lr, i, prev.Confidence, entry.Confidence)
			}
			exists = true
		}
	}
}

func TestTrainOverwritesSettingsOnlyOnStrongOutcome(t *testing.T) {
	m := openTestModel(t, Params{LearningRate: 0.25})
	ctx := context.Background()

	first := baseSettings
	partial := baseSettings
	partial.MaxColors = 64
	strong := baseSettings
	strong.FrameRate = 15

	steps := []struct {
		settings Settings
		outcome  Outcome
		want     Settings
	}{
		{first, OutcomeSuccess, first},
		{partial, OutcomePartial, first},
		{partial, OutcomeFailure, first},
		{strong, OutcomeSuccess, strong},
	}
	for i, step := range steps {
		entry, err := m.Train(ctx, moviePattern, step.settings, step.outcome)
		if err != nil {
			t.Fatalf("step %d: Train: %v", i, err)
		}
		if entry.Settings != step.want {
			t.Fatalf("step %d: settings = %+v, want %+v", i, entry.Settings, step.want)
		}
	}
}

func TestTrainRejectsOversizedPayload(t *testing.T) {
	m := openTestModel(t, Params{LearningRate: 0.25, MaxPayloadBytes: 32})
	_, err := m.Train(context.Background(), moviePattern, baseSettings, OutcomeSuccess)
	if !errors.Is(err, services.ErrTrainingDataOverflow) {
		t.Fatalf("Train error = %v, want ErrTrainingDataOverflow", err)
	}
	if got := len(m.Entries()); got != 0 {
		t.Fatalf("entries = %d, want 0", got)
	}
	events, err := m.Events(context.Background())
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("training log has %d events, want 0", len(events))
	}
}

func TestTrainRejectsUnknownOutcome(t *testing.T) {
	m := openTestModel(t, Params{LearningRate: 0.25})
	_, err := m.Train(context.Background(), moviePattern, baseSettings, Outcome("meh"))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("Train error = %v, want ErrValidation", err)
	}
}

func TestRebuildReproducesModel(t *testing.T) {
	m := openTestModel(t, Params{LearningRate: 0.25})
	ctx := context.Background()

	other := moviePattern
	other.ResolutionClass = "720p"
	sequence := []struct {
		pattern Pattern
		outcome Outcome
	}{
		{moviePattern, OutcomeSuccess},
		{other, OutcomePartial},
		{moviePattern, OutcomeFailure},
		{other, OutcomeSuccess},
		{moviePattern, OutcomeSuccess},
	}
	for _, step := range sequence {
		if _, err := m.Train(ctx, step.pattern, baseSettings, step.outcome); err != nil {
			t.Fatalf("Train: %v", err)
		}
	}
	before := m.Entries()

	res, err := m.Rebuild(ctx)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if res.Events != len(sequence) || res.Entries != 2 {
		t.Fatalf("rebuild result = %+v", res)
	}
	if res.Version != 2 || m.Version() != 2 {
		t.Fatalf("version = %d/%d, want 2", res.Version, m.Version())
	}
	assertEntriesEqual(t, m.Entries(), before)

	path := m.Path()
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	reopened, err := Open(ctx, path, Params{LearningRate: 0.25}, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if reopened.Version() != 2 {
		t.Fatalf("reopened version = %d, want 2", reopened.Version())
	}
	assertEntriesEqual(t, reopened.Entries(), before)
}

func assertEntriesEqual(t *testing.T, got, want []Entry) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("entries = %d, want %d", len(got), len(want))
	}
	for i := range want {
		g, w := got[i], want[i]
		if g.Pattern != w.Pattern || g.Settings != w.Settings || g.SampleCount != w.SampleCount {
			t.Fatalf("entry %d = %+v, want %+v", i, g, w)
		}
		if math.Abs(g.Confidence-w.Confidence) > 1e-12 || math.Abs(g.MeanScore-w.MeanScore) > 1e-12 {
			t.Fatalf("entry %d confidence %f/%f, want %f/%f", i, g.Confidence, g.MeanScore, w.Confidence, w.MeanScore)
		}
		if !g.LastUpdated.Equal(w.LastUpdated) {
			t.Fatalf("entry %d last updated %v, want %v", i, g.LastUpdated, w.LastUpdated)
		}
	}
}

func TestReplayUsesFallbackLearningRate(t *testing.T) {
	events := []TrainingEvent{
		{Pattern: moviePattern, Settings: baseSettings, Outcome: OutcomeSuccess},
		{Pattern: moviePattern, Settings: baseSettings, Outcome: Outcome("bogus")},
	}
	entries := Replay(events, Params{LearningRate: 0.5})
	e, ok := entries[moviePattern.Key()]
	if !ok {
		t.Fatalf("pattern missing from replay")
	}
	if e.SampleCount != 1 {
		t.Fatalf("sample count = %d, want 1", e.SampleCount)
	}
	if e.Confidence != 0.5 {
		t.Fatalf("confidence = %f, want 0.5", e.Confidence)
	}
}

func TestPredict(t *testing.T) {
	strong := Entry{Pattern: moviePattern, Settings: baseSettings, Confidence: 0.9, SampleCount: 4}
	farSettings := baseSettings
	farSettings.Width = 320
	far := Pattern{ContentType: "anime", ResolutionClass: "480p", DurationClass: "short", MotionLevel: "high", ComplexityBucket: "60"}
	entries := map[string]Entry{
		strong.Pattern.Key(): strong,
		far.Key():            {Pattern: far, Settings: farSettings, Confidence: 0.95, SampleCount: 9},
	}
	params := Params{MinSamples: 3, MinConfidence: 0.5}

	oneOff := moviePattern
	oneOff.MotionLevel = "high"
	threeOff := Pattern{ContentType: "sport", ResolutionClass: "2160p", DurationClass: "short", MotionLevel: "medium", ComplexityBucket: "60"}

	tests := []struct {
		name      string
		query     Pattern
		params    Params
		wantFound bool
		wantKind  MatchKind
		want      Settings
	}{
		{"exact", moviePattern, params, true, MatchExact, baseSettings},
		{"exact below sample floor falls back to similar", moviePattern, Params{MinSamples: 5, MinConfidence: 0.5}, true, MatchSimilar, baseSettings},
		{"similar", oneOff, params, true, MatchSimilar, baseSettings},
		{"nothing close enough", threeOff, params, false, "", Settings{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := predict(entries, tt.query, tt.params)
			if ok != tt.wantFound {
				t.Fatalf("found = %v, want %v", ok, tt.wantFound)
			}
			if !ok {
				return
			}
			if got.Kind != tt.wantKind || got.Settings != tt.want {
				t.Fatalf("prediction = %+v, want %s %+v", got, tt.wantKind, tt.want)
			}
		})
	}
}

func TestPredictTieBreaks(t *testing.T) {
	a := moviePattern
	a.ContentType = "anime"
	b := moviePattern
	b.ContentType = "cartoon"
	c := moviePattern
	c.ContentType = "clip"
	settingsFor := func(width int) Settings {
		s := baseSettings
		s.Width = width
		return s
	}
	entries := map[string]Entry{
		a.Key(): {Pattern: a, Settings: settingsFor(100), Confidence: 0.8, SampleCount: 2},
		b.Key(): {Pattern: b, Settings: settingsFor(200), Confidence: 0.8, SampleCount: 6},
		c.Key(): {Pattern: c, Settings: settingsFor(300), Confidence: 0.8, SampleCount: 6},
	}
	got, ok := predict(entries, moviePattern, Params{MinSamples: 1, MinConfidence: 0.5})
	if !ok {
		t.Fatalf("expected a similar prediction")
	}
	if got.Pattern != b {
		t.Fatalf("picked %s, want %s (more samples, then key order)", got.Pattern, b)
	}
}

func TestModelPredictAfterTraining(t *testing.T) {
	m := openTestModel(t, Params{LearningRate: 0.25, MinSamples: 3, MinConfidence: 0.5})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := m.Train(ctx, moviePattern, baseSettings, OutcomeSuccess); err != nil {
			t.Fatalf("Train: %v", err)
		}
	}
	if _, ok := m.Predict(moviePattern); ok {
		t.Fatalf("prediction available after 2 samples")
	}
	if _, err := m.Train(ctx, moviePattern, baseSettings, OutcomeSuccess); err != nil {
		t.Fatalf("Train: %v", err)
	}
	got, ok := m.Predict(moviePattern)
	if !ok || got.Kind != MatchExact {
		t.Fatalf("prediction = %+v ok=%v, want exact", got, ok)
	}
}

func TestClassify(t *testing.T) {
	info := media.Info{
		Duration:  2 * time.Minute,
		Width:     1920,
		Height:    1080,
		FrameRate: 30,
		BitRate:   6_220_800,
	}
	got := Classify(info, []string{"content=Movie", "other=x"})
	want := Pattern{ContentType: "movie", ResolutionClass: "1080p", DurationClass: "long", MotionLevel: "medium", ComplexityBucket: "40"}
	if got != want {
		t.Fatalf("Classify = %+v, want %+v", got, want)
	}

	empty := Classify(media.Info{}, nil)
	if empty.ContentType != "general" || empty.ResolutionClass != "unknown" || empty.ComplexityBucket != "0" {
		t.Fatalf("Classify(empty) = %+v", empty)
	}
}

func TestPatternTagsRoundTrip(t *testing.T) {
	got, ok := PatternFromTags(moviePattern.Tags())
	if !ok || got != moviePattern {
		t.Fatalf("PatternFromTags = %+v ok=%v, want %+v", got, ok, moviePattern)
	}
	if _, ok := PatternFromTags([]string{"content=movie"}); ok {
		t.Fatalf("partial tags should not parse")
	}
}

func TestSimilarity(t *testing.T) {
	other := moviePattern
	other.DurationClass = "short"
	if got := moviePattern.Similarity(other); got != 0.8 {
		t.Fatalf("Similarity = %f, want 0.8", got)
	}
	if got := moviePattern.Similarity(moviePattern); got != 1 {
		t.Fatalf("Similarity(self) = %f, want 1", got)
	}
}
