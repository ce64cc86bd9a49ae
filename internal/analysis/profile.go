package analysis

import (
	"encoding/json"
	"fmt"

	"cinelex/internal/services"
)

// Version is the analysis_version written by this package.
const Version = "1"

// ConceptType keys the concepts map.
type ConceptType string

const (
	ConceptWord        ConceptType = "word"
	ConceptPhrasalVerb ConceptType = "phrasal_verb"
	ConceptIdiom       ConceptType = "idiom"
)

// NumberAndRatio is a count together with its share of the total.
type NumberAndRatio struct {
	Number int     `json:"number"`
	Ratio  float64 `json:"ratio"`
}

// ConceptOccurrence locates one example of a concept. Offsets are rune
// positions inside Context; Time is the cue start in seconds.
type ConceptOccurrence struct {
	Context   string `json:"context"`
	StartChar int    `json:"start_char"`
	EndChar   int    `json:"end_char"`
	Time      *int   `json:"time,omitempty"`
}

// ConceptProfile aggregates every occurrence of a concept.
type ConceptProfile struct {
	Concept        string              `json:"concept"`
	NumOccurrences int                 `json:"num_occurrences"`
	Examples       []ConceptOccurrence `json:"examples"`
	Difficulty     *float64            `json:"difficulty,omitempty"`
}

// TimeRangeStats summarizes one five-minute window of a timed text.
type TimeRangeStats struct {
	StartTime  int      `json:"start_time"`
	EndTime    int      `json:"end_time"`
	Difficulty *float64 `json:"difficulty,omitempty"`
}

// LinguisticProfile is the persisted result of an analysis.
type LinguisticProfile struct {
	AnalysisVersion    string                           `json:"analysis_version"`
	Concepts           map[ConceptType][]ConceptProfile `json:"concepts"`
	POSStats           map[string]NumberAndRatio        `json:"pos_stats"`
	SentencesCount     int                              `json:"sentences_count"`
	SentencesAvgLength float64                          `json:"sentences_avg_length"`
	Duration           *int                             `json:"duration,omitempty"`
	TimeRanges         []TimeRangeStats                 `json:"time_ranges,omitempty"`
	Difficulty         *float64                         `json:"difficulty,omitempty"`
}

// Encode serializes p for storage.
func Encode(p LinguisticProfile) ([]byte, error) {
	if p.AnalysisVersion == "" {
		p.AnalysisVersion = Version
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode profile: %w", err)
	}
	return data, nil
}

// Decode parses a stored profile written under version. Unknown versions,
// and payloads whose embedded version disagrees, are rejected.
func Decode(version string, data []byte) (LinguisticProfile, error) {
	if version != Version {
		return LinguisticProfile{}, fmt.Errorf("%w: unknown analysis version %q", services.ErrValidation, version)
	}
	var p LinguisticProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return LinguisticProfile{}, fmt.Errorf("%w: decode profile: %v", services.ErrValidation, err)
	}
	if p.AnalysisVersion != version {
		return LinguisticProfile{}, fmt.Errorf("%w: profile declares version %q, expected %q",
			services.ErrValidation, p.AnalysisVersion, version)
	}
	return p, nil
}
