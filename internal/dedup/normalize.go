package dedup

import (
	"strings"
	"unicode"
)

// NormalizeText canonicalizes text for content fingerprinting: lowercase,
// runs of whitespace collapsed to single spaces, non-printable runes
// dropped. Two scans of the same paper that differ only in OCR noise around
// spacing and control characters hash identically.
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsPrint(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}
	return b.String()
}
