// Package media defines the probe and transcode collaborators the pipeline
// drives, plus a circuit breaker that keeps a failing probe tool from
// stalling a batch.
//
// Concrete adapters live in subpackages: ffprobe for metadata and ffmpeg for
// GIF encoding.
package media
