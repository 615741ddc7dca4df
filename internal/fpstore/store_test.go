package fpstore

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gifwright/internal/services"
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	store, err := Open(path, Options{
		Exists: func(string) bool { return true },
		Now:    func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store
}

func TestStorePutGetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analysis.fps")
	store := openTestStore(t, path)

	fp := Fingerprint{Size: 2048, ModTime: 1_700_000_000_000_000_000}
	if err := store.Put("/clips/a.gif", fp, `{"fps":12}`); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok := store.Get("/clips/a.gif", fp)
	if !ok || got != `{"fps":12}` {
		t.Fatalf("Get = %q, %v", got, ok)
	}

	reopened := openTestStore(t, path)
	got, ok = reopened.Get("/clips/a.gif", fp)
	if !ok || got != `{"fps":12}` {
		t.Fatalf("after reopen Get = %q, %v", got, ok)
	}
	if err := reopened.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestStoreKeepsHashPrefixedKeysAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.fps")
	store := openTestStore(t, path)
	fp := Fingerprint{Size: 7, ModTime: 7}
	keys := []string{"#clip.gif", " ", "clip.gif"}
	for _, key := range keys {
		if err := store.Put(key, fp, "payload-"+key); err != nil {
			t.Fatalf("Put %q: %v", key, err)
		}
	}

	reopened := openTestStore(t, path)
	if err := reopened.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	for _, key := range keys {
		if got, ok := reopened.Get(key, fp); !ok || got != "payload-"+key {
			t.Fatalf("after reopen Get(%q) = %q, %v", key, got, ok)
		}
	}

	result, err := reopened.Compact(0)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if result.Before != 3 || result.Kept != 3 || result.Malformed != 0 {
		t.Fatalf("unexpected compact result %+v", result)
	}
	compacted := openTestStore(t, path)
	if got, ok := compacted.Get("#clip.gif", fp); !ok || got != "payload-#clip.gif" {
		t.Fatalf("after compact Get = %q, %v", got, ok)
	}
}

func TestStoreFingerprintMismatchIsMiss(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "s.fps"))
	fp := Fingerprint{Size: 10, ModTime: 100}
	if err := store.Put("k", fp, "v"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	for _, other := range []Fingerprint{
		{Size: 11, ModTime: 100},
		{Size: 10, ModTime: 101},
	} {
		if _, ok := store.Get("k", other); ok {
			t.Fatalf("expected miss for %+v", other)
		}
	}
	if _, ok := store.Get("missing", fp); ok {
		t.Fatal("expected miss for unknown key")
	}
}

func TestStoreLastWriteWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.fps")
	store := openTestStore(t, path)
	fp := Fingerprint{Size: 1000, ModTime: 100}
	if err := store.Put("video.gif", fp, "A"); err != nil {
		t.Fatalf("Put A: %v", err)
	}
	if err := store.Put("video.gif", fp, "B"); err != nil {
		t.Fatalf("Put B: %v", err)
	}
	if got, _ := store.Get("video.gif", fp); got != "B" {
		t.Fatalf("got %q, want B", got)
	}
	reopened := openTestStore(t, path)
	if got, _ := reopened.Get("video.gif", fp); got != "B" {
		t.Fatalf("after reopen got %q, want B", got)
	}
	if reopened.PhysicalRecords() != 2 || reopened.Len() != 1 {
		t.Fatalf("records=%d live=%d, want 2 and 1", reopened.PhysicalRecords(), reopened.Len())
	}
}

func TestStoreRebuildKeepsWellFormedRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.fps")

	var b strings.Builder
	b.WriteString(header + "\n")
	const good = 4
	for i := 0; i < good; i++ {
		b.WriteString(encodeRecord(Record{Key: fmt.Sprintf("clip%d.gif", i), Fingerprint: Fingerprint{Size: int64(i), ModTime: 1}, Timestamp: 1, Payload: "ok"}))
		b.WriteString("garbage without separators\n")
	}
	b.WriteString("clip9.gif|notanumber|1|1|bad\n")
	b.WriteString("clip10.gif|1|1|1|interrupted")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	store := openTestStore(t, path)
	if store.Len() != good {
		t.Fatalf("expected %d live records after rebuild, got %d", good, store.Len())
	}
	if err := store.Validate(); err != nil {
		t.Fatalf("Validate after rebuild: %v", err)
	}

	backups, _ := filepath.Glob(filepath.Join(dir, store.BackupPattern()))
	if len(backups) != 1 {
		t.Fatalf("expected one backup, got %v", backups)
	}
	backup, err := os.ReadFile(backups[0])
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(backup) != b.String() {
		t.Fatal("backup does not match damaged content")
	}
	if !strings.HasSuffix(backups[0], ".corrupt-20260314-092653") {
		t.Fatalf("unexpected backup name %s", backups[0])
	}
}

func TestStoreValidateReportsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.fps")
	store := openTestStore(t, path)
	if err := os.WriteFile(path, []byte("no header here\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := store.Validate()
	if !errors.Is(err, services.ErrStoreCorruption) {
		t.Fatalf("expected ErrStoreCorruption, got %v", err)
	}
	result, err := store.Rebuild()
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if result.Kept != 0 || result.Discarded != 1 {
		t.Fatalf("unexpected rebuild result %+v", result)
	}
}

func TestStoreAppendAfterInterruptedWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.fps")
	store := openTestStore(t, path)
	fp := Fingerprint{Size: 1, ModTime: 1}
	if err := store.Put("a.gif", fp, "1"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, _ = f.WriteString("b.gif|1|1|1|half")
	_ = f.Close()

	if err := store.Put("c.gif", fp, "3"); err != nil {
		t.Fatalf("Put after partial line: %v", err)
	}
	reopened := openTestStore(t, path)
	if _, ok := reopened.Get("c.gif", fp); !ok {
		t.Fatal("record after interrupted append was lost")
	}
	if _, ok := reopened.Get("a.gif", fp); !ok {
		t.Fatal("record before interrupted append was lost")
	}
}

func TestStoreCompactIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.fps")
	store := openTestStore(t, path)
	fp := Fingerprint{Size: 5, ModTime: 5}
	for _, key := range []string{"z.gif", "a.gif", "m.gif", "a.gif", "z.gif"} {
		if err := store.Put(key, fp, "payload-"+key); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	result, err := store.Compact(0)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if result.Before != 5 || result.Kept != 3 || result.Superseded != 2 {
		t.Fatalf("unexpected compact result %+v", result)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, err := store.Compact(0); err != nil {
		t.Fatalf("second Compact: %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("compaction not idempotent:\n%s\n---\n%s", first, second)
	}
	lines := strings.Split(strings.TrimSpace(string(first)), "\n")
	if len(lines) != 4 || !strings.HasPrefix(lines[1], "a.gif|") || !strings.HasPrefix(lines[3], "z.gif|") {
		t.Fatalf("unexpected compacted layout: %q", lines)
	}
}

func TestStoreCompactDropsExpiredAndMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.fps")
	now := fixedNow
	store, err := Open(path, Options{
		Exists: func(key string) bool { return key != "gone.gif" },
		Now:    func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	fp := Fingerprint{Size: 1, ModTime: 1}
	_ = store.Put("old.gif", fp, "x")
	now = now.Add(48 * time.Hour)
	_ = store.Put("fresh.gif", fp, "x")
	_ = store.Put("gone.gif", fp, "x")

	result, err := store.Compact(24 * time.Hour)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if result.Kept != 1 || result.Expired != 1 || result.Missing != 1 {
		t.Fatalf("unexpected compact result %+v", result)
	}
	if _, ok := store.Get("fresh.gif", fp); !ok {
		t.Fatal("fresh record should survive compaction")
	}
}

func TestStoreConcurrentPuts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.fps")
	store := openTestStore(t, path)
	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("w%d/clip%d.gif", w, i)
				if err := store.Put(key, Fingerprint{Size: int64(i), ModTime: int64(w)}, "payload|with|pipes"); err != nil {
					t.Errorf("Put %s: %v", key, err)
				}
			}
		}(w)
	}
	wg.Wait()

	reopened := openTestStore(t, path)
	if err := reopened.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if reopened.Len() != workers*perWorker {
		t.Fatalf("expected %d records, got %d", workers*perWorker, reopened.Len())
	}
}

func TestStoreTwoHandlesShareFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.fps")
	a := openTestStore(t, path)
	b := openTestStore(t, path)
	fp := Fingerprint{Size: 3, ModTime: 3}
	if err := a.Put("one.gif", fp, "1"); err != nil {
		t.Fatalf("Put a: %v", err)
	}
	if err := b.Put("two.gif", fp, "2"); err != nil {
		t.Fatalf("Put b: %v", err)
	}
	if err := a.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if _, ok := a.Get("two.gif", fp); !ok {
		t.Fatal("expected reload to pick up the other handle's write")
	}
}

func TestOpenFailsWhenLocationUnwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Open(filepath.Join(blocker, "s.fps"), Options{}); err == nil {
		t.Fatal("expected error when parent is a regular file")
	}
}
