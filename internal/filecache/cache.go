package filecache

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"gifwright/internal/fpstore"
	"gifwright/internal/logging"
	"gifwright/internal/services"
)

// ErrPayloadTooLarge is returned when a payload exceeds the configured ceiling.
var ErrPayloadTooLarge = errors.New("cache payload exceeds size ceiling")

// Options configures a cache.
type Options struct {
	Logger *slog.Logger
	// MaxPayloadBytes caps encoded payloads; 0 disables the ceiling.
	MaxPayloadBytes int
	// Store is passed through to fpstore.Open.
	Store fpstore.Options
}

// base holds the fingerprint store shared by the typed caches.
type base struct {
	name       string
	store      *fpstore.Store
	logger     *slog.Logger
	maxPayload int
}

func openBase(name, path string, opts Options) (base, error) {
	logger := logging.NewComponentLogger(opts.Logger, name)
	storeOpts := opts.Store
	if storeOpts.Logger == nil {
		storeOpts.Logger = opts.Logger
	}
	store, err := fpstore.Open(path, storeOpts)
	if err != nil {
		return base{}, fmt.Errorf("open %s: %w", name, err)
	}
	return base{name: name, store: store, logger: logger, maxPayload: opts.MaxPayloadBytes}, nil
}

// Store exposes the underlying fingerprint store for maintenance commands.
func (b *base) Store() *fpstore.Store { return b.store }

// Close releases the underlying store.
func (b *base) Close() error { return b.store.Close() }

// lookup is the result of a single stat plus store read.
type lookup struct {
	key     string
	fp      fpstore.Fingerprint
	payload string
	found   bool // fingerprint matched
	known   bool // key present, possibly with a stale fingerprint
}

// record books the lookup in stats. Callers that reject a matched payload
// pass usable=false so it counts as stale.
func (l lookup) record(stats *Stats, usable bool) {
	if l.found && usable {
		stats.hit()
		return
	}
	stats.miss(l.known)
}

// probe stats the file once and reads any cached payload for it.
func (b *base) probe(path string) (lookup, error) {
	key, err := cacheKey(path)
	if err != nil {
		return lookup{}, err
	}
	fp, err := fpstore.Stat(key)
	if err != nil {
		return lookup{key: key}, services.Wrap(services.ErrNotFound, b.name, "stat", key, err)
	}
	l := lookup{key: key, fp: fp}
	if payload, ok := b.store.Get(key, fp); ok {
		l.payload, l.found, l.known = payload, true, true
		return l, nil
	}
	_, l.known = b.store.Lookup(key)
	return l, nil
}

// put writes payload back, honoring the payload ceiling. Failures are logged
// and counted; they never fail the caller's operation.
func (b *base) put(key string, fp fpstore.Fingerprint, payload string, stats *Stats) error {
	var err error
	if b.maxPayload > 0 && len(payload) > b.maxPayload {
		err = fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(payload), b.maxPayload)
	} else {
		err = b.store.Put(key, fp, payload)
	}
	if err != nil {
		return b.writeFailed(key, err, stats)
	}
	stats.wrote(nil)
	return nil
}

// writeFailed counts and logs a write that did not reach the store.
func (b *base) writeFailed(key string, err error, stats *Stats) error {
	stats.wrote(err)
	logging.WarnWithContext(b.logger, "cache write skipped", b.name+"_write_failed",
		logging.String(logging.FieldFile, key),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check cache directory space and max_payload_bytes"),
		logging.String(logging.FieldImpact, "value will be recomputed on the next run"),
	)
	return err
}

func cacheKey(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", services.Wrap(services.ErrValidation, "filecache", "key", "empty path", nil)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", path, err)
	}
	return abs, nil
}
