// Package config loads, normalizes, and validates gifwright configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// GIFWRIGHT_CACHE_DIR. The Config type centralizes the cache locations, the
// learning-model parameters, the duplicate thresholds, and the worker cap so the
// CLI and the batch runner discover them in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
