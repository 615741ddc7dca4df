package filecache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"gifwright/internal/fpstore"
	"gifwright/internal/services"
)

// ChecksumRecord is the content checksum of a file at a given fingerprint.
type ChecksumRecord struct {
	Path     string
	Size     int64
	ModTime  time.Time
	Checksum string // SHA-256, lowercase hex
}

// ChecksumCache caches SHA-256 checksums keyed by path.
type ChecksumCache struct {
	base
}

// OpenChecksums opens the checksum cache backed by the store at path.
func OpenChecksums(path string, opts Options) (*ChecksumCache, error) {
	b, err := openBase("checksum_cache", path, opts)
	if err != nil {
		return nil, err
	}
	return &ChecksumCache{base: b}, nil
}

// Checksum returns the file's checksum, reading the file only when the cached
// fingerprint no longer matches.
func (c *ChecksumCache) Checksum(path string, stats *Stats) (ChecksumRecord, error) {
	l, err := c.probe(path)
	if err != nil {
		return ChecksumRecord{}, err
	}
	key, fp := l.key, l.fp
	record := ChecksumRecord{Path: key, Size: fp.Size, ModTime: time.Unix(0, fp.ModTime)}
	usable := isHexDigest(l.payload)
	l.record(stats, usable)
	if l.found && usable {
		record.Checksum = l.payload
		return record, nil
	}
	sum, err := SHA256File(key)
	if err != nil {
		return ChecksumRecord{}, services.Wrap(services.ErrTransient, "checksum_cache", "hash", key, err)
	}
	stats.recomputed()
	record.Checksum = sum
	_ = c.put(key, fp, sum, stats)
	return record, nil
}

// SHA256File hashes a file's content.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func isHexDigest(value string) bool {
	if len(value) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(value)
	return err == nil
}

func statFingerprint(path string) (fpstore.Fingerprint, error) {
	fp, err := fpstore.Stat(path)
	if err != nil {
		return fpstore.Fingerprint{}, services.Wrap(services.ErrNotFound, "filecache", "stat", path, err)
	}
	return fp, nil
}
