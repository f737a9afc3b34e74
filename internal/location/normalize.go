// Package location maps free-text address fragments onto the gazetteer.
package location

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lower-cases s, strips diacritics and reduces every run of
// characters other than letters, digits and commas to a single space.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}

	var b strings.Builder
	b.Grow(len(stripped))
	space, afterComma := false, false
	for _, r := range strings.ToLower(stripped) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 && !afterComma {
				b.WriteByte(' ')
			}
			space, afterComma = false, false
			b.WriteRune(r)
		case r == ',':
			space, afterComma = false, true
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}

// splitParts normalizes an address and returns its comma-separated parts,
// dropping empty ones and street-level parts that start with "rua".
func splitParts(address string) []string {
	var parts []string
	for _, p := range strings.Split(Normalize(address), ",") {
		p = strings.TrimSpace(p)
		if p == "" || p == "rua" || strings.HasPrefix(p, "rua ") {
			continue
		}
		parts = append(parts, p)
	}
	return parts
}

func isEmptyAddress(address string) bool {
	switch strings.ToLower(strings.TrimSpace(address)) {
	case "", "n/a", "-", "na":
		return true
	}
	return false
}
