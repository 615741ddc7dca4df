package filecache_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gifwright/internal/filecache"
	"gifwright/internal/logging"
	"gifwright/internal/testsupport"
)

func TestOpenSetCompactsAndPrunes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	set, err := filecache.OpenSet(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("OpenSet: %v", err)
	}
	defer set.Close()

	stores := set.Stores()
	if len(stores) != 3 || stores[0].Name != "analysis" {
		t.Fatalf("stores = %+v", stores)
	}

	input := filepath.Join(testsupport.BaseDir(cfg), "in", "clip.mp4")
	testsupport.WriteFile(t, input, 128)
	var stats filecache.Stats
	if err := set.Analysis.Store(input, filecache.AnalysisResult{FrameRate: 10, MaxColors: 64, DitherMode: "bayer"}, &stats); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := set.Analysis.Store(input, filecache.AnalysisResult{FrameRate: 12, MaxColors: 64, DitherMode: "bayer"}, &stats); err != nil {
		t.Fatalf("Store: %v", err)
	}

	stale := filepath.Join(cfg.Paths.CacheDir, filepath.Base(stores[0].Store.Path())+".corrupt-20200101-000000")
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatalf("write stale backup: %v", err)
	}
	old := time.Now().AddDate(0, 0, -(cfg.Cache.BackupRetentionDays + 5))
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	results, err := set.Compact(0)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if got := results["analysis"]; got.Kept != 1 || got.Superseded != 1 {
		t.Fatalf("analysis compaction = %+v, want 1 kept and 1 superseded", got)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("expired corruption backup not pruned: %v", err)
	}

	got, ok, err := set.Analysis.Lookup(input, &stats)
	if err != nil || !ok || got.FrameRate != 12 {
		t.Fatalf("Lookup after compact = %+v ok=%v err=%v", got, ok, err)
	}
}
