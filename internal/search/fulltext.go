package search

import "cinelex/internal/textutil"

const lexemeWeight = 0.1

// lexemes returns the distinct stemmed content words of s in order.
func lexemes(s string) []string {
	words := textutil.ContentWords(s)
	seen := make(map[string]struct{}, len(words))
	out := words[:0]
	for _, w := range words {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// textRank approximates ts_rank(title_vector, query, 32). Every query lexeme
// must occur in the title; the raw rank grows with the matched lexemes and
// normalization 32 maps it into [0, 1) as rank/(rank+1).
func textRank(title, query []string) float64 {
	if len(query) == 0 || len(title) == 0 {
		return 0
	}
	present := make(map[string]struct{}, len(title))
	for _, lex := range title {
		present[lex] = struct{}{}
	}
	for _, lex := range query {
		if _, ok := present[lex]; !ok {
			return 0
		}
	}
	raw := lexemeWeight * float64(len(query))
	return raw / (raw + 1)
}
