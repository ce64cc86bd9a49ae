package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold case-folds s and removes diacritics.
func Fold(s string) string {
	if s == "" {
		return ""
	}
	// Transformers carry internal state, so each call builds its own chain.
	chain := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), cases.Fold(), norm.NFC)
	out, _, err := transform.String(chain, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// Words returns the folded letter and digit runs of s. Apostrophes inside a
// word are dropped so "can't" yields "cant".
func Words(s string) []string {
	folded := Fold(s)
	words := make([]string, 0, len(folded)/5+1)
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			words = append(words, b.String())
			b.Reset()
		}
	}
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case (r == '\'' || r == '’') && b.Len() > 0:
		default:
			flush()
		}
	}
	flush()
	return words
}

// Normalize folds s and collapses every non-alphanumeric run to one space.
func Normalize(s string) string {
	return strings.Join(Words(s), " ")
}
