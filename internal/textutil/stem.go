package textutil

import "strings"

// Stem strips regular English inflections from a folded word: plural -s,
// -es and -ies, past -ed, and progressive -ing, undoubling a final consonant
// left behind ("running" becomes "run"). Short words are returned unchanged.
func Stem(word string) string {
	n := len(word)
	switch {
	case n <= 3:
		return word
	case strings.HasSuffix(word, "ies") && n > 4:
		return word[:n-3] + "y"
	case strings.HasSuffix(word, "sses"):
		return word[:n-2]
	case strings.HasSuffix(word, "ing") && n > 5:
		return undouble(word[:n-3])
	case strings.HasSuffix(word, "ed") && n > 4 && !strings.HasSuffix(word, "eed"):
		return undouble(word[:n-2])
	case strings.HasSuffix(word, "es") && n > 4 && hasSibilantEnd(word[:n-2]):
		return word[:n-2]
	case strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss") &&
		!strings.HasSuffix(word, "us") && !strings.HasSuffix(word, "is"):
		return word[:n-1]
	}
	return word
}

func undouble(stem string) string {
	n := len(stem)
	if n >= 3 && stem[n-1] == stem[n-2] && isConsonant(stem[n-1]) && !strings.ContainsRune("lsz", rune(stem[n-1])) {
		return stem[:n-1]
	}
	return stem
}

func hasSibilantEnd(stem string) bool {
	for _, suffix := range []string{"s", "x", "z", "ch", "sh"} {
		if strings.HasSuffix(stem, suffix) {
			return true
		}
	}
	return false
}

func isConsonant(b byte) bool {
	return b >= 'a' && b <= 'z' && !strings.ContainsRune("aeiou", rune(b))
}
