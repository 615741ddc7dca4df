// Package services defines shared utilities consumed by the workflow runner,
// the caches, and the external media integrations.
//
// Key responsibilities:
//   - Context helpers that stamp batch IDs, file paths, and stage names for
//     logging and tracing.
//   - Structured error markers plus the Wrap helper so callers can tell a
//     recoverable failure (probe timeout, store corruption) from a hard one.
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability, retries) stays uniform across the batch.
package services
