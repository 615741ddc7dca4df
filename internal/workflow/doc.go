// Package workflow drives a batch of input videos to GIF artifacts.
//
// A Runner fans inputs out to a bounded worker pool. Each worker takes one
// file end to end: analysis cache lookup, probe through the circuit breaker,
// settings from the learning model or the static fallback, transcode with a
// reduced-settings retry, then model training and the analysis cache write.
// When the pool drains, the batch's artifacts go through the duplicate pass
// (annotate, classify, resolve).
//
// Cancellation stops dispatch immediately. Files already in flight finish
// their current call but skip every cache and training write.
package workflow
