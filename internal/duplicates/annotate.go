package duplicates

import (
	"context"
	"log/slog"
	"os"
	"sort"

	"gifwright/internal/filecache"
	"gifwright/internal/gifmeta"
	"gifwright/internal/logging"
	"gifwright/internal/phash"
)

// Annotator builds Artifacts, pulling checksums and perceptual hashes
// through their caches.
type Annotator struct {
	Checksums  *filecache.ChecksumCache
	Perceptual *filecache.PerceptualCache
	// HashFunc and ReadMetadata default to phash.File and gifmeta.Read.
	HashFunc     filecache.HashFunc
	ReadMetadata func(path string) (gifmeta.Metadata, error)
	Logger       *slog.Logger
}

// Annotate returns one Artifact per readable path, sorted by path. Files that
// vanished or cannot be checksummed are skipped; missing metadata or hashes
// only disable the tiers that need them.
func (an *Annotator) Annotate(ctx context.Context, paths []string, stats *filecache.Stats) ([]Artifact, error) {
	logger := logging.WithContext(ctx, logging.NewComponentLogger(an.Logger, "duplicates"))
	hashFn := an.HashFunc
	if hashFn == nil {
		hashFn = phash.File
	}
	readMeta := an.ReadMetadata
	if readMeta == nil {
		readMeta = gifmeta.Read
	}

	artifacts := make([]Artifact, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return artifacts, err
		}
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}

		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			logger.Debug("skipping unreadable artifact", logging.String(logging.FieldFile, path), logging.Error(err))
			continue
		}
		art := Artifact{Path: path, Size: info.Size(), ModTime: info.ModTime()}

		if an.Checksums != nil {
			rec, err := an.Checksums.Checksum(path, stats)
			if err != nil {
				logging.WarnWithContext(logger, "artifact checksum failed; excluded from dedupe", "dedupe_checksum_failed",
					logging.String(logging.FieldFile, path),
					logging.Error(err),
					logging.String(logging.FieldImpact, "duplicates of this file will not be detected this run"),
				)
				continue
			}
			art.Checksum = rec.Checksum
		} else if sum, err := filecache.SHA256File(path); err == nil {
			art.Checksum = sum
		}

		if an.Perceptual != nil {
			if rec, err := an.Perceptual.Hash(path, hashFn, stats); err == nil {
				art.PHash, art.HasPHash = rec.Hash, true
			} else {
				logger.Debug("perceptual hash unavailable", logging.String(logging.FieldFile, path), logging.Error(err))
			}
		} else if h, err := hashFn(path); err == nil {
			art.PHash, art.HasPHash = h, true
		}

		if meta, err := readMeta(path); err == nil {
			art.FrameCount = meta.FrameCount
			art.Duration = meta.Duration
			art.Width = meta.Width
			art.Height = meta.Height
		} else {
			logger.Debug("gif metadata unavailable", logging.String(logging.FieldFile, path), logging.Error(err))
		}
		artifacts = append(artifacts, art)
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Path < artifacts[j].Path })
	return artifacts, nil
}
