// Package learning recommends GIF encode settings from past outcomes.
//
// Inputs are bucketed into a small discrete Pattern. Each pattern keeps one
// Entry whose confidence is an evidence-weighted running mean of outcome
// scores. Prediction prefers an exact pattern with enough samples and
// confidence, then the most similar confident pattern.
//
// Every training signal is appended to a SQLite training log keyed by ULID,
// so the model can be rebuilt exactly by replaying the log in order.
package learning
