// Package filecache layers typed caches over fingerprint stores.
//
// Each cache is keyed by absolute file path and validated against the file's
// current size and modification time, so a lookup costs a single stat. On a
// miss the caller recomputes the value and it is written back immediately.
// Hit and miss accounting is returned through an explicit Stats value rather
// than package-level counters.
package filecache
