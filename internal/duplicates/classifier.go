package duplicates

import (
	"fmt"
	"sort"
	"time"

	"gifwright/internal/config"
	"gifwright/internal/phash"
	"gifwright/internal/textutil"
)

// Tier is the confidence level of a duplicate match. Lower values are more
// certain.
type Tier int

const (
	TierNone Tier = iota
	TierExact
	TierVisual
	TierContent
	TierNear
	TierHeuristic
)

func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierVisual:
		return "visual_identical"
	case TierContent:
		return "content_fingerprint"
	case TierNear:
		return "near_identical"
	case TierHeuristic:
		return "name_heuristic"
	default:
		return "none"
	}
}

// Artifact is a GIF annotated with everything the tiers compare.
type Artifact struct {
	Path       string
	Size       int64
	ModTime    time.Time
	Checksum   string
	PHash      uint64
	HasPHash   bool
	FrameCount int
	Duration   time.Duration
	Width      int
	Height     int
}

func (a Artifact) hasMetadata() bool {
	return a.FrameCount > 0 && a.Width > 0 && a.Height > 0
}

// Candidate is a pair classified as duplicates.
type Candidate struct {
	A      Artifact
	B      Artifact
	Tier   Tier
	Reason string
}

// Thresholds tune the fuzzy tiers. Ratios are fractions of the larger size.
type Thresholds struct {
	ContentSizeRatio          float64
	NearHashDistance          float64
	NearSizeRatio             float64
	HeuristicPrefixSimilarity float64
	HeuristicSizeRatio        float64
}

// DefaultThresholds returns the stock tier thresholds.
func DefaultThresholds() Thresholds {
	return ThresholdsFromConfig(config.Default().Duplicates)
}

// ThresholdsFromConfig maps the duplicates config section.
func ThresholdsFromConfig(cfg config.Duplicates) Thresholds {
	return Thresholds{
		ContentSizeRatio:          cfg.ContentSizeRatio,
		NearHashDistance:          cfg.NearHashDistance,
		NearSizeRatio:             cfg.NearSizeRatio,
		HeuristicPrefixSimilarity: cfg.HeuristicPrefixSimilarity,
		HeuristicSizeRatio:        cfg.HeuristicSizeRatio,
	}
}

type rule struct {
	tier  Tier
	match func(a, b *Artifact) (string, bool)
}

// Classifier evaluates tier rules in priority order.
type Classifier struct {
	rules []rule
}

// NewClassifier builds the tier rule list for th.
func NewClassifier(th Thresholds) *Classifier {
	return &Classifier{rules: []rule{
		{TierExact, func(a, b *Artifact) (string, bool) {
			if a.Checksum == "" || a.Checksum != b.Checksum {
				return "", false
			}
			return "checksums equal", true
		}},
		{TierVisual, func(a, b *Artifact) (string, bool) {
			if !a.HasPHash || !b.HasPHash || a.PHash != b.PHash {
				return "", false
			}
			return fmt.Sprintf("perceptual hashes equal (%016x)", a.PHash), true
		}},
		{TierContent, func(a, b *Artifact) (string, bool) {
			if !sameShape(a, b) || !sameResolution(a, b) {
				return "", false
			}
			diff := sizeRatio(a.Size, b.Size)
			if diff >= th.ContentSizeRatio {
				return "", false
			}
			return fmt.Sprintf("resolution, frames and duration equal; size differs %.1f%%", diff*100), true
		}},
		{TierNear, func(a, b *Artifact) (string, bool) {
			if !sameShape(a, b) || !a.HasPHash || !b.HasPHash {
				return "", false
			}
			dist := phash.Distance(a.PHash, b.PHash)
			diff := sizeRatio(a.Size, b.Size)
			if dist >= th.NearHashDistance || diff >= th.NearSizeRatio {
				return "", false
			}
			return fmt.Sprintf("frames and duration equal; hash distance %.3f; size differs %.1f%%", dist, diff*100), true
		}},
		{TierHeuristic, func(a, b *Artifact) (string, bool) {
			if !sameShape(a, b) || !sameResolution(a, b) {
				return "", false
			}
			sim := textutil.PrefixSimilarity(a.Path, b.Path)
			diff := sizeRatio(a.Size, b.Size)
			if sim < th.HeuristicPrefixSimilarity || diff >= th.HeuristicSizeRatio {
				return "", false
			}
			return fmt.Sprintf("properties equal; name prefix similarity %.0f%%; size differs %.1f%%", sim*100, diff*100), true
		}},
	}}
}

// Compare classifies one pair. TierNone means not a duplicate.
func (c *Classifier) Compare(a, b Artifact) (Tier, string) {
	for _, r := range c.rules {
		if reason, ok := r.match(&a, &b); ok {
			return r.tier, reason
		}
	}
	return TierNone, ""
}

// Classify compares every pair of artifacts, ordered by path, and returns
// the pairs that matched a tier. A is always the lexically smaller path.
func (c *Classifier) Classify(artifacts []Artifact) []Candidate {
	sorted := append([]Artifact(nil), artifacts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	var out []Candidate
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[i].Path == sorted[j].Path {
				continue
			}
			tier, reason := c.Compare(sorted[i], sorted[j])
			if tier == TierNone {
				continue
			}
			out = append(out, Candidate{A: sorted[i], B: sorted[j], Tier: tier, Reason: reason})
		}
	}
	return out
}

func sameShape(a, b *Artifact) bool {
	return a.FrameCount > 0 && a.FrameCount == b.FrameCount && a.Duration == b.Duration
}

func sameResolution(a, b *Artifact) bool {
	return a.hasMetadata() && b.hasMetadata() && a.Width == b.Width && a.Height == b.Height
}

// sizeRatio is |a-b| relative to the larger of the two.
func sizeRatio(a, b int64) float64 {
	larger := max(a, b)
	if larger <= 0 {
		return 0
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) / float64(larger)
}
