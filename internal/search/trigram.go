package search

import "cinelex/internal/textutil"

// trigrams returns the ordered trigrams of s the way pg_trgm extracts them:
// each alphanumeric word is padded with two leading spaces and one trailing
// space before slicing.
func trigrams(s string) []string {
	var out []string
	for _, word := range textutil.Words(s) {
		padded := []rune("  " + word + " ")
		for i := 0; i+3 <= len(padded); i++ {
			out = append(out, string(padded[i:i+3]))
		}
	}
	return out
}

func trigramSet(grams []string) map[string]struct{} {
	set := make(map[string]struct{}, len(grams))
	for _, g := range grams {
		set[g] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for g := range a {
		if _, ok := b[g]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}

// similarity is pg_trgm similarity(a, b).
func similarity(a, b string) float64 {
	return jaccard(trigramSet(trigrams(a)), trigramSet(trigrams(b)))
}

// wordSimilarity is pg_trgm word_similarity(a, b): the greatest similarity
// between the trigram set of a and any contiguous extent of the ordered
// trigrams of b.
func wordSimilarity(a, b string) float64 {
	first := trigramSet(trigrams(a))
	second := trigrams(b)
	if len(first) == 0 || len(second) == 0 {
		return 0
	}
	best := 0.0
	for i := range second {
		if _, ok := first[second[i]]; !ok {
			continue
		}
		extent := map[string]struct{}{}
		shared := 0
		for j := i; j < len(second); j++ {
			g := second[j]
			if _, seen := extent[g]; !seen {
				extent[g] = struct{}{}
				if _, ok := first[g]; ok {
					shared++
				}
			}
			if _, ok := first[g]; !ok {
				continue
			}
			score := float64(shared) / float64(len(first)+len(extent)-shared)
			if score > best {
				best = score
			}
		}
	}
	return best
}
