package fpstore

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"gifwright/internal/fileutil"
	"gifwright/internal/logging"
	"gifwright/internal/services"
)

// Options customizes store behaviour. The zero value is usable.
type Options struct {
	Logger *slog.Logger
	// Exists reports whether the file a key refers to is still present.
	// Compact drops records whose key fails this check. Defaults to os.Stat.
	Exists func(key string) bool
	// Now overrides the clock used for record timestamps and age checks.
	Now func() time.Time
}

// Store is a log-structured fingerprint store backed by one flat file.
type Store struct {
	path   string
	logger *slog.Logger
	lock   *flock.Flock
	exists func(string) bool
	now    func() time.Time

	writeMu sync.Mutex // serializes appends and rewrites

	mu       sync.RWMutex
	index    map[string]Record
	records  int // physical records in the file, superseded ones included
	degraded bool
}

// CompactResult summarizes a compaction pass.
type CompactResult struct {
	Before     int
	Kept       int
	Superseded int
	Expired    int
	Missing    int
	Malformed  int
}

// RebuildResult summarizes a rebuild pass.
type RebuildResult struct {
	Kept       int
	Discarded  int
	BackupPath string
}

// Open loads the store at path, creating it when absent. A structurally
// damaged file is rebuilt automatically. Only failure to create or write the
// store location is returned as an error.
func Open(path string, opts Options) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("fpstore: empty path")
	}
	s := &Store{
		path:   path,
		logger: logging.NewComponentLogger(opts.Logger, "fpstore"),
		lock:   flock.New(path + ".lock"),
		exists: opts.Exists,
		now:    opts.Now,
		index:  make(map[string]Record),
	}
	if s.exists == nil {
		s.exists = fileExists
	}
	if s.now == nil {
		s.now = time.Now
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("fpstore: create store directory: %w", err)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := writeAtomic(path, nil); err != nil {
			return nil, fmt.Errorf("fpstore: create store: %w", err)
		}
	}
	// Probe writability up front; this is the one hard failure.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("fpstore: open store for append: %w", err)
	}
	_ = f.Close()

	if err := s.Validate(); err != nil {
		logging.WarnWithContext(s.logger, "fingerprint store failed validation; rebuilding", "fpstore_corrupt",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the damaged file is kept as a .corrupt backup next to the store"),
			logging.String(logging.FieldImpact, "malformed records are dropped and recomputed on demand"),
		)
		if _, rebuildErr := s.Rebuild(); rebuildErr != nil {
			return s, nil
		}
	}
	if err := s.Reload(); err != nil {
		s.degrade(err)
	}
	return s, nil
}

// Path returns the store file location.
func (s *Store) Path() string { return s.path }

// Degraded reports whether the store fell back to an empty in-memory map.
func (s *Store) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// Get returns the payload stored for key when its fingerprint equals current.
// A mismatch or absence is a miss.
func (s *Store) Get(key string, current Fingerprint) (string, bool) {
	if s == nil {
		return "", false
	}
	s.mu.RLock()
	rec, ok := s.index[key]
	s.mu.RUnlock()
	if !ok || rec.Fingerprint != current {
		return "", false
	}
	return rec.Payload, true
}

// Lookup returns the latest record for key regardless of fingerprint.
func (s *Store) Lookup(key string) (Record, bool) {
	if s == nil {
		return Record{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.index[key]
	return rec, ok
}

// Put appends a record for key. The new record supersedes any earlier one.
func (s *Store) Put(key string, fp Fingerprint, payload string) error {
	if s == nil {
		return errors.New("fpstore: nil store")
	}
	if key == "" {
		return errors.New("fpstore: empty key")
	}
	rec := Record{Key: key, Fingerprint: fp, Timestamp: s.now().Unix(), Payload: payload}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.Degraded() {
		s.mu.Lock()
		s.index[key] = rec
		s.mu.Unlock()
		return nil
	}

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("fpstore: lock store: %w", err)
	}
	err := appendLine(s.path, encodeRecord(rec))
	_ = s.lock.Unlock()
	if err != nil {
		return fmt.Errorf("fpstore: append record: %w", err)
	}

	s.mu.Lock()
	s.index[key] = rec
	s.records++
	s.mu.Unlock()
	return nil
}

// Len returns the number of live keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// PhysicalRecords returns the number of records in the file, superseded ones included.
func (s *Store) PhysicalRecords() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records
}

// Keys returns the live keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.index))
	for key := range s.index {
		keys = append(keys, key)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Close releases the lock file handle. The store must not be used afterwards.
func (s *Store) Close() error {
	if s == nil || s.lock == nil {
		return nil
	}
	return s.lock.Close()
}

// Records returns the live record per key sorted by key.
func (s *Store) Records() []Record {
	s.mu.RLock()
	out := make([]Record, 0, len(s.index))
	for _, rec := range s.index {
		out = append(out, rec)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Reload re-reads the file, picking up writes from other processes.
func (s *Store) Reload() error {
	res, err := scanFile(s.path)
	if err != nil {
		return fmt.Errorf("fpstore: read store: %w", err)
	}
	index := latestByKey(res.records)
	s.mu.Lock()
	s.index = index
	s.records = len(res.records)
	s.mu.Unlock()
	if len(res.malformed) > 0 {
		s.logger.Debug("skipped malformed records on reload",
			logging.String("path", s.path),
			logging.Int("malformed", len(res.malformed)))
	}
	return nil
}

// Validate performs a structural scan: the versioned header must be present
// and every record must have the expected field layout. Failures wrap
// services.ErrStoreCorruption.
func (s *Store) Validate() error {
	res, err := scanFile(s.path)
	if err != nil {
		return services.Wrap(services.ErrStoreCorruption, "fpstore", "validate", s.path, err)
	}
	return res.corruption(s.path)
}

// Compact rewrites the store keeping only the most recent record per key,
// dropping records older than maxAge (0 keeps all ages) and records whose key
// no longer refers to an existing file. Output is sorted by key, so compacting
// an unchanged store yields byte-identical content.
func (s *Store) Compact(maxAge time.Duration) (CompactResult, error) {
	var result CompactResult
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.Degraded() {
		return result, nil
	}

	if err := s.lock.Lock(); err != nil {
		return result, fmt.Errorf("fpstore: lock store: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	res, err := scanFile(s.path)
	if err != nil {
		return result, fmt.Errorf("fpstore: read store: %w", err)
	}
	result.Before = len(res.records)
	result.Malformed = len(res.malformed)

	latest := latestByKey(res.records)
	result.Superseded = len(res.records) - len(latest)

	var cutoff int64
	if maxAge > 0 {
		cutoff = s.now().Add(-maxAge).Unix()
	}
	kept := make([]Record, 0, len(latest))
	for _, rec := range latest {
		if maxAge > 0 && rec.Timestamp < cutoff {
			result.Expired++
			continue
		}
		if !s.exists(rec.Key) {
			result.Missing++
			continue
		}
		kept = append(kept, rec)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Key < kept[j].Key })
	result.Kept = len(kept)

	if err := writeAtomic(s.path, kept); err != nil {
		return result, fmt.Errorf("fpstore: rewrite store: %w", err)
	}

	index := make(map[string]Record, len(kept))
	for _, rec := range kept {
		index[rec.Key] = rec
	}
	s.mu.Lock()
	s.index = index
	s.records = len(kept)
	s.mu.Unlock()

	s.logger.Info("compacted fingerprint store",
		logging.String("path", s.path),
		logging.Int("before", result.Before),
		logging.Int("kept", result.Kept),
		logging.Int("superseded", result.Superseded),
		logging.Int("expired", result.Expired),
		logging.Int("missing", result.Missing),
		logging.String(logging.FieldEventType, "fpstore_compacted"),
	)
	return result, nil
}

// Rebuild snapshots the current file to a timestamped backup, then rewrites
// the store with every well-formed record in original order. When even that
// fails the store degrades to an empty in-memory map and the error is returned.
func (s *Store) Rebuild() (RebuildResult, error) {
	var result RebuildResult
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.lock.Lock(); err != nil {
		s.degrade(err)
		return result, fmt.Errorf("fpstore: lock store: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	data, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return result, s.resetEmpty(fmt.Errorf("fpstore: read damaged store: %w", err))
	}
	if len(data) > 0 {
		backup, err := s.snapshot(data)
		if err != nil {
			return result, s.resetEmpty(fmt.Errorf("fpstore: backup damaged store: %w", err))
		}
		result.BackupPath = backup
	}

	res := scanBytes(data)
	result.Kept = len(res.records)
	result.Discarded = len(res.malformed)
	if err := writeAtomic(s.path, res.records); err != nil {
		return result, s.resetEmpty(fmt.Errorf("fpstore: write rebuilt store: %w", err))
	}

	s.mu.Lock()
	s.index = latestByKey(res.records)
	s.records = len(res.records)
	s.degraded = false
	s.mu.Unlock()

	s.logger.Info("rebuilt fingerprint store",
		logging.String("path", s.path),
		logging.Int("kept", result.Kept),
		logging.Int("discarded", result.Discarded),
		logging.String("backup", result.BackupPath),
		logging.String(logging.FieldEventType, "fpstore_rebuilt"),
	)
	return result, nil
}

// BackupPattern is the glob matching rebuild snapshots of this store.
func (s *Store) BackupPattern() string {
	return filepath.Base(s.path) + ".corrupt-*"
}

func (s *Store) snapshot(data []byte) (string, error) {
	stamp := s.now().UTC().Format("20060102-150405")
	backup := fmt.Sprintf("%s.corrupt-%s", s.path, stamp)
	if _, err := os.Stat(backup); err == nil {
		backup = fmt.Sprintf("%s.corrupt-%s.%d", s.path, stamp, s.now().UnixNano())
	}
	if err := os.WriteFile(backup, data, 0o644); err != nil {
		return "", err
	}
	return backup, nil
}

// resetEmpty replaces the file with an empty store; if that fails too the
// store continues in memory only.
func (s *Store) resetEmpty(cause error) error {
	if err := writeAtomic(s.path, nil); err != nil {
		s.degrade(errors.Join(cause, err))
		return cause
	}
	s.mu.Lock()
	s.index = make(map[string]Record)
	s.records = 0
	s.mu.Unlock()
	logging.WarnWithContext(s.logger, "fingerprint store reset to empty", "fpstore_reset",
		logging.String("path", s.path),
		logging.Error(cause),
		logging.String(logging.FieldImpact, "cached values will be recomputed"),
	)
	return cause
}

func (s *Store) degrade(cause error) {
	s.mu.Lock()
	s.index = make(map[string]Record)
	s.records = 0
	s.degraded = true
	s.mu.Unlock()
	logging.WarnWithContext(s.logger, "fingerprint store unavailable; continuing without persistence", "fpstore_degraded",
		logging.String("path", s.path),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, "check cache_dir permissions and free space"),
		logging.String(logging.FieldImpact, "this run will not reuse or persist cached values"),
	)
}

func latestByKey(records []Record) map[string]Record {
	index := make(map[string]Record, len(records))
	for _, rec := range records {
		index[rec.Key] = rec
	}
	return index
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// appendLine writes one complete line with a single write call. A previous
// interrupted append (no trailing newline) is terminated first so the new
// record starts on its own line.
func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if size := info.Size(); size > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, size-1); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if last[0] != '\n' {
			line = "\n" + line
		}
	}
	if _, err := io.WriteString(f, line); err != nil {
		return err
	}
	return f.Close()
}

// writeAtomic replaces path with a header followed by records via temp file
// and rename.
func writeAtomic(path string, records []Record) error {
	var b strings.Builder
	b.WriteString(header)
	b.WriteByte('\n')
	for _, rec := range records {
		b.WriteString(encodeRecord(rec))
	}
	return fileutil.WriteFileAtomic(path, []byte(b.String()), 0o644)
}
