// Package ffmpeg renders GIFs with the ffmpeg binary using a two-pass
// palette filter graph.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gifwright/internal/logging"
	"gifwright/internal/media"
	"gifwright/internal/services"
)

var validDither = map[string]struct{}{
	"none":            {},
	"bayer":           {},
	"heckbert":        {},
	"floyd_steinberg": {},
	"sierra2":         {},
	"sierra2_4a":      {},
}

// Transcoder implements media.Transcoder.
type Transcoder struct {
	Binary  string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Transcode renders job.Input to job.Output. The artifact is written to a
// temporary sibling and renamed into place only on success.
func (t Transcoder) Transcode(ctx context.Context, job media.Job) (media.Output, error) {
	if strings.TrimSpace(job.Input) == "" || strings.TrimSpace(job.Output) == "" {
		return media.Output{}, services.Wrap(services.ErrValidation, "transcode", "job", "input and output are required", nil)
	}
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	if err := os.MkdirAll(filepath.Dir(job.Output), 0o755); err != nil {
		return media.Output{}, fmt.Errorf("create output directory: %w", err)
	}
	binary := strings.TrimSpace(t.Binary)
	if binary == "" {
		binary = "ffmpeg"
	}

	tmp := job.Output + ".partial.gif"
	args := Args(job.Input, tmp, job.Settings)
	logger := logging.NewComponentLogger(t.Logger, "ffmpeg")
	logger.Debug("ffmpeg command", logging.String("args", strings.Join(args, " ")))

	start := time.Now()
	cmd := exec.CommandContext(ctx, binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		_ = os.Remove(tmp)
		detail := strings.TrimSpace(string(output))
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return media.Output{}, services.Wrap(services.ErrTimeout, "transcode", "ffmpeg", job.Input, err)
		case ctx.Err() != nil:
			return media.Output{}, ctx.Err()
		case errors.Is(err, exec.ErrNotFound):
			return media.Output{}, services.Wrap(services.ErrExternalTool, "transcode", "ffmpeg", "binary not found", err)
		default:
			return media.Output{}, services.Wrap(services.ErrExternalTool, "transcode", "ffmpeg", lastLine(detail), err)
		}
	}
	if err := os.Rename(tmp, job.Output); err != nil {
		_ = os.Remove(tmp)
		return media.Output{}, fmt.Errorf("finalize gif: %w", err)
	}
	info, err := os.Stat(job.Output)
	if err != nil {
		return media.Output{}, fmt.Errorf("stat gif: %w", err)
	}
	return media.Output{Path: job.Output, Size: info.Size(), Elapsed: time.Since(start)}, nil
}

// Args builds the ffmpeg argument list for settings.
func Args(input, output string, s media.Settings) []string {
	return []string{"-hide_banner", "-v", "error", "-y", "-i", input, "-filter_complex", FilterGraph(s), "-f", "gif", output}
}

// FilterGraph renders the palettegen/paletteuse filter chain.
func FilterGraph(s media.Settings) string {
	var chain []string
	if c := s.Crop; c != nil && c.Width > 0 && c.Height > 0 {
		chain = append(chain, fmt.Sprintf("crop=%d:%d:%d:%d", c.Width, c.Height, c.X, c.Y))
	}
	if s.FrameRate > 0 {
		chain = append(chain, "fps="+strconv.FormatFloat(s.FrameRate, 'f', -1, 64))
	}
	if s.Width > 0 {
		chain = append(chain, fmt.Sprintf("scale=%d:-1:flags=lanczos", s.Width))
	}
	colors := s.MaxColors
	if colors <= 1 || colors > 256 {
		colors = 256
	}
	dither := s.DitherMode
	if _, ok := validDither[dither]; !ok {
		dither = "sierra2_4a"
	}
	prefix := ""
	if len(chain) > 0 {
		prefix = strings.Join(chain, ",") + ","
	}
	return fmt.Sprintf("[0:v]%ssplit[a][b];[a]palettegen=max_colors=%d[p];[b][p]paletteuse=dither=%s", prefix, colors, dither)
}

func lastLine(text string) string {
	if text == "" {
		return "ffmpeg failed"
	}
	lines := strings.Split(text, "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
