package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cinelex/internal/services"
	"cinelex/internal/textutil"
)

const (
	defaultMaxExamples = 2
	timeRangeWidth     = 5 * time.Minute
)

// TextAnalyzer turns text into a linguistic profile.
type TextAnalyzer interface {
	Analyze(ctx context.Context, text string) (LinguisticProfile, error)
}

// LexicalAnalyzer is a dictionary-free analyzer built on cue parsing,
// rule-based tokenization, and an optional difficulty table.
type LexicalAnalyzer struct {
	table       DifficultyTable
	maxExamples int
}

// LexicalOption configures a LexicalAnalyzer.
type LexicalOption func(*LexicalAnalyzer)

// WithDifficultyTable rates concepts from table before falling back to the
// length and rarity heuristic.
func WithDifficultyTable(table DifficultyTable) LexicalOption {
	return func(a *LexicalAnalyzer) { a.table = table }
}

// WithMaxExamples caps the examples kept per concept.
func WithMaxExamples(n int) LexicalOption {
	return func(a *LexicalAnalyzer) {
		if n > 0 {
			a.maxExamples = n
		}
	}
}

// NewLexicalAnalyzer builds the default analyzer.
func NewLexicalAnalyzer(opts ...LexicalOption) *LexicalAnalyzer {
	a := &LexicalAnalyzer{maxExamples: defaultMaxExamples}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type segment struct {
	offset int
	at     *int
}

type sentence struct {
	text     string
	segments []segment
}

func (s sentence) timeAt(offset int) *int {
	var at *int
	for _, seg := range s.segments {
		if seg.offset > offset {
			break
		}
		at = seg.at
	}
	return at
}

type conceptEntry struct {
	profile ConceptProfile
	surface string
	verb    string
}

type conceptSet struct {
	kind    ConceptType
	order   []string
	entries map[string]*conceptEntry
}

func newConceptSet(kind ConceptType) *conceptSet {
	return &conceptSet{kind: kind, entries: map[string]*conceptEntry{}}
}

func (c *conceptSet) add(key string, example ConceptOccurrence, maxExamples int) *conceptEntry {
	entry, ok := c.entries[key]
	if !ok {
		entry = &conceptEntry{profile: ConceptProfile{Concept: key}}
		c.entries[key] = entry
		c.order = append(c.order, key)
	}
	entry.profile.NumOccurrences++
	if len(entry.profile.Examples) < maxExamples {
		entry.profile.Examples = append(entry.profile.Examples, example)
	}
	return entry
}

type timedOccurrence struct {
	entry *conceptEntry
	at    int
}

// Analyze parses text as subtitles (or plain text) and builds its profile.
func (a *LexicalAnalyzer) Analyze(ctx context.Context, text string) (LinguisticProfile, error) {
	if strings.TrimSpace(text) == "" {
		return LinguisticProfile{}, fmt.Errorf("%w: text is empty", services.ErrValidation)
	}
	cues := ParseCues(text)
	sentences := buildSentences(cues)
	if len(sentences) == 0 {
		return LinguisticProfile{}, fmt.Errorf("%w: text has no sentences", services.ErrValidation)
	}

	words := newConceptSet(ConceptWord)
	phrasal := newConceptSet(ConceptPhrasalVerb)
	posCounts := map[string]int{}
	var (
		totalTokens int
		timed       []timedOccurrence
	)
	for _, s := range sentences {
		if err := ctx.Err(); err != nil {
			return LinguisticProfile{}, err
		}
		tokens := tokenize(s.text)
		totalTokens += len(tokens)
		for i, tok := range tokens {
			posCounts[tok.kind]++
			if tok.kind != POSWord {
				continue
			}
			at := s.timeAt(tok.start)
			key := textutil.Stem(tok.norm)
			entry := words.add(key, ConceptOccurrence{Context: s.text, StartChar: tok.start, EndChar: tok.end, Time: at}, a.maxExamples)
			if entry.surface == "" {
				entry.surface = tok.norm
			}
			if at != nil {
				timed = append(timed, timedOccurrence{entry: entry, at: *at})
			}

			if i+1 < len(tokens) && particles[tokens[i+1].norm] {
				particle := tokens[i+1]
				phrase := key + " " + particle.norm
				pv := phrasal.add(phrase, ConceptOccurrence{Context: s.text, StartChar: tok.start, EndChar: particle.end, Time: at}, a.maxExamples)
				if pv.surface == "" {
					pv.surface = tok.norm + " " + particle.norm
					pv.verb = key
				}
				if at != nil {
					timed = append(timed, timedOccurrence{entry: pv, at: *at})
				}
			}
		}
	}

	var sum float64
	var rated int
	for _, set := range []*conceptSet{words, phrasal} {
		for _, key := range set.order {
			entry := set.entries[key]
			d := round2(a.rate(set.kind, entry))
			entry.profile.Difficulty = &d
			sum += d
			rated++
		}
	}

	profile := LinguisticProfile{
		AnalysisVersion: Version,
		Concepts: map[ConceptType][]ConceptProfile{
			ConceptWord:        words.profiles(),
			ConceptPhrasalVerb: phrasal.profiles(),
			ConceptIdiom:       {},
		},
		POSStats:           make(map[string]NumberAndRatio, len(posCounts)),
		SentencesCount:     len(sentences),
		SentencesAvgLength: round2(float64(totalTokens) / float64(len(sentences))),
	}
	for kind, count := range posCounts {
		profile.POSStats[kind] = NumberAndRatio{Number: count, Ratio: round2(float64(count) / float64(totalTokens))}
	}
	if rated > 0 {
		overall := round2(sum / float64(rated))
		profile.Difficulty = &overall
	}
	if duration, ok := cueDuration(cues); ok {
		seconds := int(duration / time.Second)
		profile.Duration = &seconds
		profile.TimeRanges = timeRanges(seconds, timed)
	}
	return profile, nil
}

func (a *LexicalAnalyzer) rate(kind ConceptType, entry *conceptEntry) float64 {
	occurrences := entry.profile.NumOccurrences
	if kind == ConceptPhrasalVerb {
		if rating, ok := a.table.lookup(entry.profile.Concept, entry.surface); ok {
			return rating
		}
		verb := heuristicDifficulty(entry.verb, occurrences)
		if rating, ok := a.table.lookup(entry.verb); ok {
			verb = rating
		}
		return clamp(verb+1, 1, 10)
	}
	if rating, ok := a.table.lookup(entry.surface, entry.profile.Concept); ok {
		return rating
	}
	return heuristicDifficulty(entry.surface, occurrences)
}

func (c *conceptSet) profiles() []ConceptProfile {
	out := make([]ConceptProfile, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.entries[key].profile)
	}
	return out
}

// buildSentences joins cue fragments into sentences, remembering which cue
// each part of a sentence came from.
func buildSentences(cues []Cue) []sentence {
	var (
		out     []sentence
		current sentence
	)
	flush := func() {
		if strings.TrimSpace(current.text) != "" {
			out = append(out, current)
		}
		current = sentence{}
	}
	for _, cue := range cues {
		var at *int
		if cue.Timed {
			seconds := int(cue.Start / time.Second)
			at = &seconds
		}
		for _, frag := range splitSentences(cue.Text) {
			if current.text != "" {
				current.text += " "
			}
			current.segments = append(current.segments, segment{offset: runeLen(current.text), at: at})
			current.text += frag.text
			if frag.terminated {
				flush()
			}
		}
	}
	flush()
	return out
}

func cueDuration(cues []Cue) (time.Duration, bool) {
	var (
		end   time.Duration
		timed bool
	)
	for _, cue := range cues {
		if !cue.Timed {
			continue
		}
		timed = true
		end = max(end, cue.End)
	}
	return end, timed
}

// timeRanges buckets rated occurrences into five-minute windows.
func timeRanges(duration int, occurrences []timedOccurrence) []TimeRangeStats {
	width := int(timeRangeWidth / time.Second)
	count := (duration + width - 1) / width
	if count == 0 {
		count = 1
	}
	sums := make([]float64, count)
	hits := make([]int, count)
	for _, occ := range occurrences {
		if occ.entry.profile.Difficulty == nil {
			continue
		}
		bucket := min(occ.at/width, count-1)
		sums[bucket] += *occ.entry.profile.Difficulty
		hits[bucket]++
	}
	ranges := make([]TimeRangeStats, count)
	for i := range ranges {
		ranges[i] = TimeRangeStats{StartTime: i * width, EndTime: min((i+1)*width, duration)}
		if hits[i] > 0 {
			d := round2(sums[i] / float64(hits[i]))
			ranges[i].Difficulty = &d
		}
	}
	return ranges
}
