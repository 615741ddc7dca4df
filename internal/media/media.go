package media

import (
	"context"
	"time"
)

// Info is the metadata a probe reports for an input video.
type Info struct {
	Duration  time.Duration
	Width     int
	Height    int
	FrameRate float64
	BitRate   int64
}

// Crop is a pixel rectangle applied before scaling.
type Crop struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Settings are the GIF encode parameters.
type Settings struct {
	FrameRate  float64
	MaxColors  int
	DitherMode string
	Width      int
	// Lossy is recorded for learning; the ffmpeg adapter does not apply it.
	Lossy int
	Crop  *Crop
}

// Reduced returns a cheaper variant of s used for retries: half the frame
// rate, half the palette and a narrower frame, never below usable floors.
func (s Settings) Reduced() Settings {
	out := s
	out.FrameRate = max(s.FrameRate/2, 5)
	out.MaxColors = max(s.MaxColors/2, 32)
	if s.Width > 0 {
		out.Width = max(s.Width*3/4, 160)
	}
	return out
}

// Job describes one transcode.
type Job struct {
	Input    string
	Output   string
	Settings Settings
}

// Output describes a produced artifact.
type Output struct {
	Path    string
	Size    int64
	Elapsed time.Duration
}

// Prober extracts metadata from an input file.
type Prober interface {
	Probe(ctx context.Context, path string) (Info, error)
}

// Transcoder renders an input into a GIF artifact.
type Transcoder interface {
	Transcode(ctx context.Context, job Job) (Output, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, path string) (Info, error)

// Probe implements Prober.
func (f ProberFunc) Probe(ctx context.Context, path string) (Info, error) { return f(ctx, path) }
