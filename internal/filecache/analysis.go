package filecache

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"gifwright/internal/logging"
)

// CropRegion is a pixel rectangle to keep from the source frame.
type CropRegion struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// AnalysisResult is the outcome of feature analysis for one input file.
type AnalysisResult struct {
	FrameRate   float64     `json:"frame_rate"`
	DitherMode  string      `json:"dither_mode"`
	MaxColors   int         `json:"max_colors"`
	Width       int         `json:"width,omitempty"`
	Lossy       int         `json:"lossy,omitempty"`
	Crop        *CropRegion `json:"crop,omitempty"`
	ContentTags []string    `json:"content_tags,omitempty"`
}

// AnalyzeFunc computes a fresh analysis for a cache miss.
type AnalyzeFunc func(ctx context.Context, path string) (AnalysisResult, error)

// AnalysisCache caches feature analysis keyed by input path.
type AnalysisCache struct {
	base
}

// OpenAnalysis opens the analysis cache backed by the store at path.
func OpenAnalysis(path string, opts Options) (*AnalysisCache, error) {
	b, err := openBase("analysis_cache", path, opts)
	if err != nil {
		return nil, err
	}
	return &AnalysisCache{base: b}, nil
}

// Lookup returns the cached analysis when the file's fingerprint still matches.
// An undecodable payload is treated as a miss.
func (c *AnalysisCache) Lookup(path string, stats *Stats) (AnalysisResult, bool, error) {
	l, err := c.probe(path)
	if err != nil {
		return AnalysisResult{}, false, err
	}
	var result AnalysisResult
	if l.found {
		if err := json.Unmarshal([]byte(l.payload), &result); err != nil {
			c.logger.Debug("discarding undecodable analysis payload",
				logging.String(logging.FieldFile, l.key),
				logging.Error(err))
			l.record(stats, false)
			return AnalysisResult{}, false, nil
		}
	}
	l.record(stats, true)
	return result, l.found, nil
}

// Store writes result for path using the file's current fingerprint.
func (c *AnalysisCache) Store(path string, result AnalysisResult, stats *Stats) error {
	key, err := cacheKey(path)
	if err != nil {
		return err
	}
	fp, err := statFingerprint(key)
	if err != nil {
		return c.writeFailed(key, err, stats)
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return c.writeFailed(key, fmt.Errorf("encode analysis: %w", err), stats)
	}
	return c.put(key, fp, string(payload), stats)
}

// LookupOrAnalyze returns the cached analysis or runs analyze and writes the
// fresh result back. Nothing is written once ctx is done. The boolean reports
// a cache hit.
func (c *AnalysisCache) LookupOrAnalyze(ctx context.Context, path string, analyze AnalyzeFunc, stats *Stats) (AnalysisResult, bool, error) {
	if result, ok, err := c.Lookup(path, stats); err != nil {
		return AnalysisResult{}, false, err
	} else if ok {
		return result, true, nil
	}
	result, err := analyze(ctx, path)
	if err != nil {
		return AnalysisResult{}, false, err
	}
	stats.recomputed()
	if ctx.Err() != nil {
		return result, false, nil
	}
	_ = c.Store(path, result, stats)
	return result, false, nil
}
