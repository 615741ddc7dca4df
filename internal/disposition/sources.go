package disposition

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gifwright/internal/logging"
	"gifwright/internal/media"
	"gifwright/internal/textutil"
)

// VideoExtensions lists the source extensions the index recognises.
var VideoExtensions = []string{".mp4", ".m4v", ".mov", ".mkv", ".webm", ".avi", ".wmv", ".flv", ".mpg", ".mpeg", ".ts"}

// Source is a traceable source asset for an artifact.
type Source struct {
	Path     string
	Size     int64
	ModTime  time.Time
	Duration time.Duration // zero when unknown
}

// SourceIndex maps normalised file stems to source videos.
type SourceIndex struct {
	prober media.Prober
	logger *slog.Logger

	mu        sync.Mutex
	byStem    map[string][]string
	durations map[string]time.Duration
}

// NewSourceIndex returns an empty index. prober may be nil, in which case
// source durations are unknown.
func NewSourceIndex(prober media.Prober, logger *slog.Logger) *SourceIndex {
	return &SourceIndex{
		prober:    prober,
		logger:    logging.NewComponentLogger(logger, "source_index"),
		byStem:    make(map[string][]string),
		durations: make(map[string]time.Duration),
	}
}

// Scan walks dirs and registers every file with a video extension.
// Unreadable directories are logged and skipped.
func (ix *SourceIndex) Scan(dirs ...string) {
	for _, dir := range dirs {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() || !IsVideo(path) {
				return nil
			}
			ix.Add(path)
			return nil
		})
		if err != nil {
			ix.logger.Debug("source scan failed", logging.String("dir", dir), logging.Error(err))
		}
	}
}

// Add registers one source path.
func (ix *SourceIndex) Add(path string) {
	key := textutil.StemKey(path)
	if key == "" {
		return
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, existing := range ix.byStem[key] {
		if existing == path {
			return
		}
	}
	ix.byStem[key] = append(ix.byStem[key], path)
	sort.Strings(ix.byStem[key])
}

// SetDuration records a known source duration, sparing a probe.
func (ix *SourceIndex) SetDuration(path string, d time.Duration) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	ix.mu.Lock()
	ix.durations[path] = d
	ix.mu.Unlock()
}

// Len returns the number of indexed sources.
func (ix *SourceIndex) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	n := 0
	for _, paths := range ix.byStem {
		n += len(paths)
	}
	return n
}

// Lookup returns the still-present source whose stem matches the artifact's.
func (ix *SourceIndex) Lookup(ctx context.Context, artifact string) (Source, bool) {
	if ix == nil {
		return Source{}, false
	}
	key := textutil.StemKey(artifact)
	ix.mu.Lock()
	candidates := append([]string(nil), ix.byStem[key]...)
	ix.mu.Unlock()

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		return Source{
			Path:     path,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
			Duration: ix.duration(ctx, path),
		}, true
	}
	return Source{}, false
}

func (ix *SourceIndex) duration(ctx context.Context, path string) time.Duration {
	ix.mu.Lock()
	d, ok := ix.durations[path]
	ix.mu.Unlock()
	if ok || ix.prober == nil {
		return d
	}
	info, err := ix.prober.Probe(ctx, path)
	if err != nil {
		ix.logger.Debug("source probe failed", logging.String(logging.FieldFile, path), logging.Error(err))
		return 0
	}
	ix.SetDuration(path, info.Duration)
	return info.Duration
}

// IsVideo reports whether path has a recognised video extension.
func IsVideo(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, candidate := range VideoExtensions {
		if ext == candidate {
			return true
		}
	}
	return false
}
