package learning

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"gifwright/internal/config"
	"gifwright/internal/media"
)

// Outcome is the observed result of an encode.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailure Outcome = "failure"
)

// Score maps an outcome onto [0,1].
func (o Outcome) Score() (float64, error) {
	switch o {
	case OutcomeSuccess:
		return 1.0, nil
	case OutcomePartial:
		return 0.6, nil
	case OutcomeFailure:
		return 0.1, nil
	default:
		return 0, fmt.Errorf("unknown outcome %q", o)
	}
}

// settingsOverwriteScore is the score an outcome must exceed to replace the
// stored settings.
const settingsOverwriteScore = 0.7

// Settings are the learned encode parameters.
type Settings struct {
	FrameRate  float64 `json:"frame_rate"`
	MaxColors  int     `json:"max_colors"`
	DitherMode string  `json:"dither_mode"`
	Width      int     `json:"width"`
	Lossy      int     `json:"lossy"`
}

// Media converts to transcoder settings.
func (s Settings) Media() media.Settings {
	return media.Settings{FrameRate: s.FrameRate, MaxColors: s.MaxColors, DitherMode: s.DitherMode, Width: s.Width, Lossy: s.Lossy}
}

// SettingsFromMedia converts transcoder settings; crop is not learned.
func SettingsFromMedia(s media.Settings) Settings {
	return Settings{FrameRate: s.FrameRate, MaxColors: s.MaxColors, DitherMode: s.DitherMode, Width: s.Width, Lossy: s.Lossy}
}

// Entry is the model state for one pattern.
type Entry struct {
	Pattern     Pattern
	Settings    Settings
	Confidence  float64
	SampleCount int
	MeanScore   float64
	LastUpdated time.Time
}

// Params are the model's tunables.
type Params struct {
	LearningRate    float64
	MinSamples      int
	MinConfidence   float64
	MaxPayloadBytes int
}

// ParamsFromConfig maps the learning config section.
func ParamsFromConfig(cfg config.Learning) Params {
	return Params{
		LearningRate:    cfg.LearningRate,
		MinSamples:      cfg.MinSamples,
		MinConfidence:   cfg.MinConfidence,
		MaxPayloadBytes: cfg.MaxPayloadBytes,
	}
}

// TrainingEvent is one row of the append-only training log.
type TrainingEvent struct {
	ID           ulid.ULID
	Pattern      Pattern
	Settings     Settings
	Outcome      Outcome
	LearningRate float64
	RecordedAt   time.Time
}

// apply folds one scored observation into entry. The confidence is the
// running mean of outcome scores scaled by an evidence factor
// 1-(1-lr)^n, which rises towards 1 as samples accumulate, so a new entry
// starts at score*lr and repeated successes never lower it. With lr=1 the
// confidence is the plain running mean.
func apply(entry Entry, exists bool, ev TrainingEvent, score float64) Entry {
	if !exists {
		entry = Entry{Pattern: ev.Pattern, Settings: ev.Settings}
	}
	n := entry.SampleCount
	entry.MeanScore = (entry.MeanScore*float64(n) + score) / float64(n+1)
	entry.SampleCount = n + 1
	entry.Confidence = clamp01(entry.MeanScore * evidence(ev.LearningRate, entry.SampleCount))
	if exists && score > settingsOverwriteScore {
		entry.Settings = ev.Settings
	}
	entry.LastUpdated = ev.RecordedAt
	return entry
}

func evidence(lr float64, n int) float64 {
	if lr >= 1 {
		return 1
	}
	return 1 - math.Pow(1-lr, float64(n))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Replay rebuilds model entries from a training log, applying events in ID
// order. Events recorded without a learning rate use params.LearningRate.
// Events with unknown outcomes are skipped.
func Replay(events []TrainingEvent, params Params) map[string]Entry {
	ordered := append([]TrainingEvent(nil), events...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID.Compare(ordered[j].ID) < 0 })
	entries := make(map[string]Entry)
	for _, ev := range ordered {
		score, err := ev.Outcome.Score()
		if err != nil {
			continue
		}
		if ev.LearningRate <= 0 {
			ev.LearningRate = params.LearningRate
		}
		key := ev.Pattern.Key()
		current, exists := entries[key]
		entries[key] = apply(current, exists, ev, score)
	}
	return entries
}

// MatchKind tags how a prediction was found.
type MatchKind string

const (
	MatchExact   MatchKind = "exact"
	MatchSimilar MatchKind = "similar"
)

// Prediction is a settings recommendation.
type Prediction struct {
	Settings    Settings
	Kind        MatchKind
	Pattern     Pattern // the entry the settings came from
	Confidence  float64
	Score       float64 // similarity-weighted confidence for similar matches
	SampleCount int
}

// predict chooses settings for query from entries.
func predict(entries map[string]Entry, query Pattern, p Params) (Prediction, bool) {
	if e, ok := entries[query.Key()]; ok && e.SampleCount >= p.MinSamples && e.Confidence >= p.MinConfidence {
		return Prediction{
			Settings:    e.Settings,
			Kind:        MatchExact,
			Pattern:     e.Pattern,
			Confidence:  e.Confidence,
			Score:       e.Confidence,
			SampleCount: e.SampleCount,
		}, true
	}

	var (
		best      Entry
		bestScore float64
		found     bool
	)
	for _, e := range entries {
		score := query.Similarity(e.Pattern) * e.Confidence
		if score < p.MinConfidence || score <= 0 {
			continue
		}
		if !found || better(score, e, bestScore, best) {
			best, bestScore, found = e, score, true
		}
	}
	if !found {
		return Prediction{}, false
	}
	return Prediction{
		Settings:    best.Settings,
		Kind:        MatchSimilar,
		Pattern:     best.Pattern,
		Confidence:  best.Confidence,
		Score:       bestScore,
		SampleCount: best.SampleCount,
	}, true
}

// better orders candidates by score, then sample count, then pattern key.
func better(score float64, e Entry, bestScore float64, best Entry) bool {
	if score != bestScore {
		return score > bestScore
	}
	if e.SampleCount != best.SampleCount {
		return e.SampleCount > best.SampleCount
	}
	return strings.Compare(e.Pattern.Key(), best.Pattern.Key()) < 0
}
