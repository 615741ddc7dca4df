// Package textutil provides filename text helpers: stem extraction, Unicode
// normalisation for comparisons, prefix similarity and filename sanitizing.
//
// Comparisons fold case and normalise to NFC so that names produced on
// different filesystems (for example NFD on macOS) compare equal.
package textutil
