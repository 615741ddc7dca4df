package filecache

import (
	"strconv"

	"gifwright/internal/services"
)

// HashFunc computes a perceptual hash for the file at path.
type HashFunc func(path string) (uint64, error)

// PerceptualRecord is the cached perceptual hash of an artifact.
type PerceptualRecord struct {
	Path string
	Hash uint64
}

// PerceptualCache caches perceptual hashes keyed by path.
type PerceptualCache struct {
	base
}

// OpenPerceptual opens the perceptual hash cache backed by the store at path.
func OpenPerceptual(path string, opts Options) (*PerceptualCache, error) {
	b, err := openBase("perceptual_cache", path, opts)
	if err != nil {
		return nil, err
	}
	return &PerceptualCache{base: b}, nil
}

// Hash returns the cached hash or computes it with hashFn on a miss.
func (c *PerceptualCache) Hash(path string, hashFn HashFunc, stats *Stats) (PerceptualRecord, error) {
	l, err := c.probe(path)
	if err != nil {
		return PerceptualRecord{}, err
	}
	key, fp := l.key, l.fp
	cached, parseErr := strconv.ParseUint(l.payload, 16, 64)
	l.record(stats, parseErr == nil)
	if l.found && parseErr == nil {
		return PerceptualRecord{Path: key, Hash: cached}, nil
	}
	h, err := hashFn(key)
	if err != nil {
		return PerceptualRecord{}, services.Wrap(services.ErrTransient, "perceptual_cache", "hash", key, err)
	}
	stats.recomputed()
	_ = c.put(key, fp, strconv.FormatUint(h, 16), stats)
	return PerceptualRecord{Path: key, Hash: h}, nil
}
