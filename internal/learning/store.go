package learning

import (
	"context"
	"crypto/rand"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"gifwright/internal/logging"
	"gifwright/internal/services"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes shape. Older databases
// must be deleted; the training log cannot be migrated across versions.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was written by a different schema.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Model is the persistent pattern learning model. Reads are served from an
// in-memory copy of model_entries; writes go through SQLite first.
type Model struct {
	db     *sql.DB
	path   string
	params Params
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]Entry
	version int

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// RebuildResult summarises a replay of the training log.
type RebuildResult struct {
	Events  int
	Entries int
	Version int
}

// Open connects to (or creates) the model database at path.
func Open(ctx context.Context, path string, params Params, logger *slog.Logger) (*Model, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create model directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	m := &Model{
		db:      db,
		path:    path,
		params:  params,
		logger:  logging.NewComponentLogger(logger, "learning"),
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
	if err := m.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := m.load(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

// Path returns the database location.
func (m *Model) Path() string { return m.path }

// Params returns the tunables the model was opened with.
func (m *Model) Params() Params { return m.params }

// Close closes the underlying database connection.
func (m *Model) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}

// Version is the model version, bumped by every Rebuild.
func (m *Model) Version() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// Entries lists the model ordered by pattern key.
func (m *Model) Entries() []Entry {
	m.mu.RLock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Pattern.Key() < out[j].Pattern.Key() })
	return out
}

// Predict recommends settings for p, if any entry qualifies.
func (m *Model) Predict(p Pattern) (Prediction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return predict(m.entries, p, m.params)
}

// Train records one outcome for pattern p and folds it into the model. The
// event is logged and the entry upserted in one transaction; on any error the
// model is unchanged.
func (m *Model) Train(ctx context.Context, p Pattern, settings Settings, outcome Outcome) (Entry, error) {
	score, err := outcome.Score()
	if err != nil {
		return Entry{}, services.Wrap(services.ErrValidation, "learning", "train", "", err)
	}
	patternJSON, settingsJSON, err := m.encode(p, settings)
	if err != nil {
		return Entry{}, err
	}
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ev := TrainingEvent{
		ID:           m.newID(),
		Pattern:      p,
		Settings:     settings,
		Outcome:      outcome,
		LearningRate: m.params.LearningRate,
		RecordedAt:   m.now().UTC(),
	}
	key := p.Key()
	current, exists := m.entries[key]
	next := apply(current, exists, ev, score)
	storedSettings, err := json.Marshal(next.Settings)
	if err != nil {
		return Entry{}, fmt.Errorf("encode settings: %w", err)
	}

	err = m.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO training_log (id, pattern_key, pattern_json, settings_json, outcome, learning_rate, recorded_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ev.ID.String(), key, string(patternJSON), string(settingsJSON), string(outcome), ev.LearningRate, ev.RecordedAt.UnixNano(),
		); err != nil {
			return fmt.Errorf("append training log: %w", err)
		}
		return upsertEntry(ctx, tx, next, patternJSON, storedSettings)
	})
	if err != nil {
		return Entry{}, err
	}
	m.entries[key] = next

	m.logger.Debug("model trained",
		logging.String("pattern", key),
		logging.String("outcome", string(outcome)),
		logging.Int("sample_count", next.SampleCount),
		logging.Float64("confidence", next.Confidence),
	)
	return next, nil
}

// Rebuild discards model_entries and replays the training log in ID order,
// then bumps the model version.
func (m *Model) Rebuild(ctx context.Context) (RebuildResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	events, err := m.events(ctx)
	if err != nil {
		return RebuildResult{}, err
	}
	entries := Replay(events, m.params)
	version := m.version + 1

	err = m.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM model_entries"); err != nil {
			return fmt.Errorf("clear model entries: %w", err)
		}
		for _, e := range entries {
			patternJSON, err := json.Marshal(e.Pattern)
			if err != nil {
				return fmt.Errorf("encode pattern: %w", err)
			}
			settingsJSON, err := json.Marshal(e.Settings)
			if err != nil {
				return fmt.Errorf("encode settings: %w", err)
			}
			if err := upsertEntry(ctx, tx, e, patternJSON, settingsJSON); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE model_meta SET model_version = ?, rebuilt_at = ? WHERE id = 1",
			version, m.now().UTC().Unix(),
		); err != nil {
			return fmt.Errorf("bump model version: %w", err)
		}
		return nil
	})
	if err != nil {
		return RebuildResult{}, err
	}

	m.entries = entries
	m.version = version
	m.logger.Info("model rebuilt from training log",
		logging.Int("events", len(events)),
		logging.Int("entries", len(entries)),
		logging.Int("model_version", version),
	)
	return RebuildResult{Events: len(events), Entries: len(entries), Version: version}, nil
}

// Events returns the full training log in ID order.
func (m *Model) Events(ctx context.Context) ([]TrainingEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.events(ctx)
}

func (m *Model) encode(p Pattern, settings Settings) ([]byte, []byte, error) {
	patternJSON, err := json.Marshal(p)
	if err != nil {
		return nil, nil, fmt.Errorf("encode pattern: %w", err)
	}
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return nil, nil, fmt.Errorf("encode settings: %w", err)
	}
	if limit := m.params.MaxPayloadBytes; limit > 0 {
		if size := len(patternJSON) + len(settingsJSON); size > limit {
			return nil, nil, services.Wrap(services.ErrTrainingDataOverflow, "learning", "train",
				fmt.Sprintf("payload %d bytes exceeds limit %d", size, limit), nil)
		}
	}
	return patternJSON, settingsJSON, nil
}

func (m *Model) newID() ulid.ULID {
	m.idMu.Lock()
	defer m.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(m.now()), m.entropy)
}

func (m *Model) initSchema(ctx context.Context) error {
	var tableExists int
	err := m.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return m.withTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
				return fmt.Errorf("create schema: %w", err)
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
				return fmt.Errorf("record schema version: %w", err)
			}
			return nil
		})
	}

	var version int
	if err := m.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to start over)",
			ErrSchemaMismatch, version, schemaVersion, m.path)
	}
	return nil
}

func (m *Model) load(ctx context.Context) error {
	if err := m.db.QueryRowContext(ctx, "SELECT model_version FROM model_meta WHERE id = 1").Scan(&m.version); err != nil {
		return fmt.Errorf("read model version: %w", err)
	}
	rows, err := m.db.QueryContext(ctx,
		`SELECT pattern_json, settings_json, confidence, sample_count, mean_score, last_updated FROM model_entries`)
	if err != nil {
		return fmt.Errorf("load model entries: %w", err)
	}
	defer rows.Close()

	m.entries = make(map[string]Entry)
	for rows.Next() {
		var (
			patternJSON, settingsJSON string
			updated                   int64
			e                         Entry
		)
		if err := rows.Scan(&patternJSON, &settingsJSON, &e.Confidence, &e.SampleCount, &e.MeanScore, &updated); err != nil {
			return fmt.Errorf("scan model entry: %w", err)
		}
		if err := json.Unmarshal([]byte(patternJSON), &e.Pattern); err != nil {
			return fmt.Errorf("decode pattern: %w", err)
		}
		if err := json.Unmarshal([]byte(settingsJSON), &e.Settings); err != nil {
			return fmt.Errorf("decode settings: %w", err)
		}
		e.LastUpdated = time.Unix(0, updated).UTC()
		m.entries[e.Pattern.Key()] = e
	}
	return rows.Err()
}

func (m *Model) events(ctx context.Context) ([]TrainingEvent, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, pattern_json, settings_json, outcome, learning_rate, recorded_at FROM training_log ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("read training log: %w", err)
	}
	defer rows.Close()

	var events []TrainingEvent
	for rows.Next() {
		var (
			id, patternJSON, settingsJSON, outcome string
			recorded                               int64
			ev                                     TrainingEvent
		)
		if err := rows.Scan(&id, &patternJSON, &settingsJSON, &outcome, &ev.LearningRate, &recorded); err != nil {
			return nil, fmt.Errorf("scan training event: %w", err)
		}
		if ev.ID, err = ulid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse training event id %q: %w", id, err)
		}
		if err := json.Unmarshal([]byte(patternJSON), &ev.Pattern); err != nil {
			return nil, fmt.Errorf("decode pattern: %w", err)
		}
		if err := json.Unmarshal([]byte(settingsJSON), &ev.Settings); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
		ev.Outcome = Outcome(outcome)
		ev.RecordedAt = time.Unix(0, recorded).UTC()
		events = append(events, ev)
	}
	return events, rows.Err()
}

func upsertEntry(ctx context.Context, tx *sql.Tx, e Entry, patternJSON, settingsJSON []byte) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO model_entries (pattern_key, pattern_json, settings_json, confidence, sample_count, mean_score, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(pattern_key) DO UPDATE SET
		   settings_json = excluded.settings_json,
		   confidence = excluded.confidence,
		   sample_count = excluded.sample_count,
		   mean_score = excluded.mean_score,
		   last_updated = excluded.last_updated`,
		e.Pattern.Key(), string(patternJSON), string(settingsJSON), e.Confidence, e.SampleCount, e.MeanScore, e.LastUpdated.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert model entry: %w", err)
	}
	return nil
}

// withTx runs fn in a transaction, retrying the whole transaction while
// SQLite reports the database as busy.
func (m *Model) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return retryOnBusy(ctx, func() error {
		tx, err := m.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
