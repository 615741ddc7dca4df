package learning

import (
	"fmt"
	"math"
	"strings"

	"gifwright/internal/media"
)

const patternFields = 5

// Pattern is the discrete bucket key the model learns per.
type Pattern struct {
	ContentType      string `json:"content_type"`
	ResolutionClass  string `json:"resolution_class"`
	DurationClass    string `json:"duration_class"`
	MotionLevel      string `json:"motion_level"`
	ComplexityBucket string `json:"complexity_bucket"`
}

func (p Pattern) fields() [patternFields]string {
	return [patternFields]string{p.ContentType, p.ResolutionClass, p.DurationClass, p.MotionLevel, p.ComplexityBucket}
}

// Key is the stable string form used for storage and ordering.
func (p Pattern) Key() string {
	f := p.fields()
	return strings.Join(f[:], "|")
}

func (p Pattern) String() string { return p.Key() }

// Similarity is the fraction of equal fields.
func (p Pattern) Similarity(q Pattern) float64 {
	a, b := p.fields(), q.fields()
	equal := 0
	for i := range a {
		if a[i] == b[i] {
			equal++
		}
	}
	return float64(equal) / patternFields
}

var tagNames = [patternFields]string{"content", "resolution", "duration", "motion", "complexity"}

// Tags renders the pattern as name=value tags for the analysis cache.
func (p Pattern) Tags() []string {
	f := p.fields()
	tags := make([]string, patternFields)
	for i := range f {
		tags[i] = tagNames[i] + "=" + f[i]
	}
	return tags
}

// PatternFromTags parses tags written by Tags. It fails unless every field
// is present.
func PatternFromTags(tags []string) (Pattern, bool) {
	values := make(map[string]string, len(tags))
	for _, tag := range tags {
		if name, value, ok := strings.Cut(tag, "="); ok {
			values[name] = value
		}
	}
	var f [patternFields]string
	for i, name := range tagNames {
		v, ok := values[name]
		if !ok || v == "" {
			return Pattern{}, false
		}
		f[i] = v
	}
	return Pattern{ContentType: f[0], ResolutionClass: f[1], DurationClass: f[2], MotionLevel: f[3], ComplexityBucket: f[4]}, true
}

// Classify buckets probe output into a Pattern. The content type comes from a
// "content=<type>" tag when present, otherwise "general".
func Classify(info media.Info, tags []string) Pattern {
	content := "general"
	for _, tag := range tags {
		if name, value, ok := strings.Cut(tag, "="); ok && name == "content" && value != "" {
			content = strings.ToLower(value)
		}
	}
	bpp := bitsPerPixel(info)
	return Pattern{
		ContentType:      content,
		ResolutionClass:  resolutionClass(info.Height),
		DurationClass:    durationClass(info.Duration.Seconds()),
		MotionLevel:      motionLevel(bpp),
		ComplexityBucket: complexityBucket(bpp),
	}
}

func resolutionClass(height int) string {
	switch {
	case height >= 2160:
		return "2160p"
	case height >= 1440:
		return "1440p"
	case height >= 1080:
		return "1080p"
	case height >= 720:
		return "720p"
	case height >= 480:
		return "480p"
	case height > 0:
		return "sd"
	default:
		return "unknown"
	}
}

func durationClass(seconds float64) string {
	switch {
	case seconds <= 0:
		return "unknown"
	case seconds < 10:
		return "short"
	case seconds < 60:
		return "medium"
	default:
		return "long"
	}
}

// bitsPerPixel is bitrate per pixel per frame, a rough proxy for how much
// changes between frames.
func bitsPerPixel(info media.Info) float64 {
	if info.BitRate <= 0 || info.Width <= 0 || info.Height <= 0 || info.FrameRate <= 0 {
		return 0
	}
	return float64(info.BitRate) / (float64(info.Width*info.Height) * info.FrameRate)
}

func motionLevel(bpp float64) string {
	switch {
	case bpp <= 0:
		return "unknown"
	case bpp < 0.05:
		return "low"
	case bpp < 0.15:
		return "medium"
	default:
		return "high"
	}
}

// complexityBucket maps bits per pixel onto 0..100 in steps of 20.
func complexityBucket(bpp float64) string {
	score := math.Min(bpp*400, 100)
	return fmt.Sprintf("%d", int(math.Round(score/20))*20)
}
