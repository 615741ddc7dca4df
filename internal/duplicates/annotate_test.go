package duplicates

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gifwright/internal/filecache"
	"gifwright/internal/testsupport"
)

func TestAnnotateAndClassifyByteIdenticalFiles(t *testing.T) {
	dir := t.TempDir()
	checksums, err := filecache.OpenChecksums(filepath.Join(dir, "cache", "checksums.fps"), filecache.Options{})
	if err != nil {
		t.Fatalf("OpenChecksums: %v", err)
	}
	perceptual, err := filecache.OpenPerceptual(filepath.Join(dir, "cache", "phash.fps"), filecache.Options{})
	if err != nil {
		t.Fatalf("OpenPerceptual: %v", err)
	}

	original := filepath.Join(dir, "out", "clip.gif")
	copyPath := filepath.Join(dir, "elsewhere", "totally_different_name.gif")
	other := filepath.Join(dir, "out", "unrelated.gif")
	testsupport.WriteGIF(t, original, testsupport.GIFSpec{Frames: 6, Width: 48, Height: 32, Seed: 2})
	testsupport.CopyFile(t, original, copyPath)
	testsupport.WriteGIF(t, other, testsupport.GIFSpec{Frames: 3, Width: 48, Height: 32, Seed: 7})
	old := time.Now().Add(-72 * time.Hour)
	if err := os.Chtimes(copyPath, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	an := &Annotator{Checksums: checksums, Perceptual: perceptual}
	var stats filecache.Stats
	artifacts, err := an.Annotate(context.Background(), []string{other, original, copyPath, filepath.Join(dir, "missing.gif")}, &stats)
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if len(artifacts) != 3 {
		t.Fatalf("expected 3 artifacts, got %d", len(artifacts))
	}
	for _, a := range artifacts {
		if a.Checksum == "" || !a.HasPHash || a.FrameCount == 0 {
			t.Fatalf("artifact not fully annotated: %+v", a)
		}
	}

	candidates := NewClassifier(DefaultThresholds()).Classify(artifacts)
	if len(candidates) != 1 {
		t.Fatalf("expected exactly one candidate, got %d", len(candidates))
	}
	if candidates[0].Tier != TierExact {
		t.Fatalf("byte-identical files classified as %s", candidates[0].Tier)
	}

	// A second pass is served from the caches.
	var second filecache.Stats
	if _, err := an.Annotate(context.Background(), []string{original, copyPath, other}, &second); err != nil {
		t.Fatalf("second Annotate: %v", err)
	}
	if second.Hits != 6 || second.Recomputes != 0 {
		t.Fatalf("expected all cache hits on second pass, got %+v", second)
	}
}
