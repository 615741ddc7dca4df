// Package notifications delivers batch events via ntfy.
//
// The service publishes to the topic URL configured in config.toml and
// degrades to a no-op when no topic is set. Callers depend only on the
// Service interface, so delivery failures never affect a batch.
package notifications
