// Package ffprobe provides a typed wrapper around ffprobe JSON output and a
// media.Prober backed by the ffprobe binary.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Prober: media.Prober adapter with per-call timeout and error tagging
//
// Timeouts surface as services.ErrTimeout and unparseable output as
// services.ErrProbeFailure so callers can retry with reduced settings.
package ffprobe
