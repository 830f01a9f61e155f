package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// NormalizeSlug derives a stable course id from a human title. Input is
// NFKC-normalized and lower-cased before folding to [a-z0-9-], so the same
// title always yields the same idempotency key regardless of how the admin
// typed it.
func NormalizeSlug(title string) string {
	folded := cases.Lower(language.Und).String(norm.NFKC.String(title))

	var b strings.Builder
	prevDash := true // suppress leading dash
	for _, r := range folded {
		switch {
		case r < 128 && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			prevDash = false
		case !prevDash:
			b.WriteByte('-')
			prevDash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// ValidSlug reports whether s is a well-formed course id.
func ValidSlug(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-' && i > 0 && i < len(s)-1:
		default:
			return false
		}
	}
	return !strings.Contains(s, "--")
}
