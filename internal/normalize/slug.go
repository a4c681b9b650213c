// Package normalize holds the pure text and URL normalizers shared by the
// directory pipeline: slugs, entity comparison, websites and domains.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slug lowercases text, folds Latin diacritics, and collapses every run of
// characters outside [a-z0-9] into a single hyphen. Leading and trailing
// hyphens are stripped. Slug(Slug(x)) == Slug(x) for every x.
func Slug(text string) string {
	if text == "" {
		return ""
	}

	folded := strings.ToLower(fold(text))

	var b strings.Builder
	b.Grow(len(folded))
	pendingDash := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

// SameEntity reports whether a and b refer to the same entity after slug
// normalization. Two empty slugs never match.
func SameEntity(a, b string) bool {
	sa := Slug(a)
	return sa != "" && sa == Slug(b)
}

// fold decomposes s and drops combining marks so "Café" becomes "Cafe".
// On transform failure the input is returned unchanged.
func fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
