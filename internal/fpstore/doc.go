// Package fpstore implements a durable key→(fingerprint, payload) map stored
// as a line-oriented flat file.
//
// Every write appends one complete record; the most recent record per key is
// authoritative and older ones are removed only by Compact. A lookup succeeds
// only when the caller's current fingerprint equals the stored one, so a
// changed file is reported as a miss rather than a stale hit.
//
// # File format
//
//	# gifwright fpstore v1
//	key|size|mtime|timestamp|payload
//
// size is bytes, mtime is Unix nanoseconds, timestamp is the Unix second the
// record was written. Backslash, pipe, newline, and carriage return are
// escaped inside key and payload. The format stays readable in a text editor
// and partially recoverable: Validate reports malformed lines and Rebuild
// keeps every well-formed record after snapshotting the damaged file.
//
// Writers are serialized in-process by a mutex and across processes by an
// advisory lock on "<store>.lock". Readers use an in-memory index and never
// block on file I/O.
package fpstore
