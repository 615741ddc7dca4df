package textutil

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Stem returns the base name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// NormalizeStem returns the comparison form of a file stem: NFC, case folded,
// trimmed.
func NormalizeStem(stem string) string {
	stem = strings.TrimSpace(stem)
	if stem == "" {
		return ""
	}
	return folder.String(norm.NFC.String(stem))
}

// StemKey is NormalizeStem(Stem(path)).
func StemKey(path string) string {
	return NormalizeStem(Stem(path))
}

// PrefixSimilarity returns the length of the common prefix of the normalised
// stems of a and b, in runes, divided by the longer stem's length. Identical
// stems score 1; empty stems score 0.
func PrefixSimilarity(a, b string) float64 {
	na, nb := StemKey(a), StemKey(b)
	longest := max(utf8.RuneCountInString(na), utf8.RuneCountInString(nb))
	if longest == 0 {
		return 0
	}
	common := 0
	for na != "" && nb != "" {
		ra, sa := utf8.DecodeRuneInString(na)
		rb, sb := utf8.DecodeRuneInString(nb)
		if ra != rb {
			break
		}
		common++
		na, nb = na[sa:], nb[sb:]
	}
	return float64(common) / float64(longest)
}
