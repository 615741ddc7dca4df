// Package disposition decides which artifact of a duplicate pair to keep and
// carries out the removal.
//
// Decisions come from an ordered rule chain (traceable source, canonical
// location, creation time, size, modification time, path order). Before an
// artifact with a traceable source is removed, a plausibility guard checks it
// against that source; a failed check turns the removal into a skip flagged
// for manual review.
//
// Removal is configurable: delete, quarantine into the recovery directory,
// or report only.
package disposition
