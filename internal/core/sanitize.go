package core

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// asciiFold decomposes characters and strips combining marks, so
// accented letters fold to their ASCII base ("café" -> "cafe").
var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// SanitizeName projects a remote display name onto the wire protocol's
// identifier alphabet: diacritics folded to ASCII, remaining non-ASCII
// runes dropped, spaces replaced with underscores. Distinct inputs can
// collapse to the same output; the directory keeps such entities apart
// by remote id and does not deduplicate the names further.
func SanitizeName(name string) string {
	folded, _, err := transform.String(asciiFold, name)
	if err != nil {
		folded = name
	}

	var sb strings.Builder
	for _, r := range folded {
		switch {
		case r == ' ':
			sb.WriteByte('_')
		case r > unicode.MaxASCII:
			// Dropped entirely, like the transliteration fallback.
		case unicode.IsControl(r):
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// canonicalName is the case-insensitive lookup form of a sanitized name.
func canonicalName(name string) string {
	return strings.ToLower(name)
}
