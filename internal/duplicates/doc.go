// Package duplicates classifies pairs of generated GIF artifacts into
// duplicate tiers, from exact binary matches down to name and property
// heuristics.
//
// Tiers are evaluated as an ordered rule list; the first matching rule
// decides the pair. Thresholds are configuration, see Thresholds.
package duplicates
