// Package area canonicalizes free-text place names so that user input,
// stored preferences and match records can be compared for equality.
package area

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize returns the canonical form of an area name: lowercased,
// diacritics stripped (combining marks and their spacing forms such as
// "´" and "¨"), trimmed and with internal whitespace runs collapsed
// to a single space. "LÉRUM ", "lerum" and "Lerum" all normalize to "lerum".
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	lowered := strings.ToLower(s)

	// The chain holds state, so it is built per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), runes.Remove(runes.In(unicode.Sk)), norm.NFC)
	stripped, _, err := transform.String(t, lowered)
	if err != nil {
		stripped = lowered
	}

	return strings.Join(strings.Fields(stripped), " ")
}

// Equal reports whether two area names are the same place after
// normalization.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
