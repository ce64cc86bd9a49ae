package analysis

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"cinelex/internal/textutil"
)

// Coarse part-of-speech classes reported in pos_stats.
const (
	POSWord        = "WORD"
	POSNumber      = "NUM"
	POSPunctuation = "PUNCT"
	POSFunction    = "FUNC"
)

var particles = map[string]bool{
	"up": true, "down": true, "out": true, "off": true, "in": true, "on": true, "over": true,
	"away": true, "back": true, "around": true, "through": true, "along": true, "about": true,
}

type token struct {
	text  string
	norm  string
	kind  string
	start int
	end   int
}

// fragment is a piece of cue text, terminated when it ends a sentence.
type fragment struct {
	text       string
	terminated bool
}

func splitSentences(text string) []fragment {
	r := []rune(text)
	var (
		out   []fragment
		start int
	)
	for i := 0; i < len(r); i++ {
		if !isTerminal(r[i]) {
			continue
		}
		j := i + 1
		for j < len(r) && (isTerminal(r[j]) || isCloser(r[j])) {
			j++
		}
		if j < len(r) && !unicode.IsSpace(r[j]) {
			i = j - 1
			continue
		}
		if piece := strings.TrimSpace(string(r[start:j])); piece != "" {
			out = append(out, fragment{text: piece, terminated: true})
		}
		start = j
		i = j - 1
	}
	if piece := strings.TrimSpace(string(r[start:])); piece != "" {
		out = append(out, fragment{text: piece})
	}
	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

func isCloser(r rune) bool {
	return r == '"' || r == '\'' || r == ')' || r == ']' || r == '”' || r == '’'
}

// tokenize splits a sentence into tokens with rune offsets.
func tokenize(sentence string) []token {
	r := []rune(sentence)
	var tokens []token
	for i := 0; i < len(r); {
		switch {
		case unicode.IsSpace(r[i]):
			i++
		case unicode.IsLetter(r[i]):
			j := i + 1
			for j < len(r) && (unicode.IsLetter(r[j]) || unicode.IsDigit(r[j]) ||
				(isJoiner(r[j]) && j+1 < len(r) && unicode.IsLetter(r[j+1]))) {
				j++
			}
			text := string(r[i:j])
			norm := textutil.Normalize(text)
			kind := POSWord
			if textutil.IsStopWord(strings.ReplaceAll(norm, " ", "")) {
				kind = POSFunction
			}
			tokens = append(tokens, token{text: text, norm: norm, kind: kind, start: i, end: j})
			i = j
		case unicode.IsDigit(r[i]):
			j := i + 1
			for j < len(r) && (unicode.IsDigit(r[j]) ||
				((r[j] == '.' || r[j] == ',' || r[j] == ':') && j+1 < len(r) && unicode.IsDigit(r[j+1]))) {
				j++
			}
			text := string(r[i:j])
			tokens = append(tokens, token{text: text, norm: text, kind: POSNumber, start: i, end: j})
			i = j
		default:
			tokens = append(tokens, token{text: string(r[i]), kind: POSPunctuation, start: i, end: i + 1})
			i++
		}
	}
	return tokens
}

func isJoiner(r rune) bool {
	return r == '\'' || r == '’' || r == '-'
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
