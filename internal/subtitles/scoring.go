package subtitles

import (
	"errors"
	"fmt"
	"math"

	"cinelex/internal/services"
	"cinelex/internal/subtitles/opensubtitles"
)

const (
	translationPenalty = 1000
	trustedBonus       = 5
	storageQualityMax  = 0.8
)

// Score ranks a candidate for selection. AI and machine translations are
// effectively excluded by a large penalty; trusted uploaders earn a bonus and
// popularity contributes logarithmically. Invalid candidates score -Inf.
func Score(c opensubtitles.Candidate) float64 {
	score, err := scoreCandidate(c)
	if err != nil {
		return math.Inf(-1)
	}
	return score
}

func scoreCandidate(c opensubtitles.Candidate) (float64, error) {
	if c.FileID <= 0 {
		return 0, errors.New("candidate has no file")
	}
	if c.DownloadCount < 0 {
		return 0, fmt.Errorf("negative download count %d", c.DownloadCount)
	}
	var score float64
	if c.AITranslated {
		score -= translationPenalty
	}
	if c.MachineTranslated {
		score -= translationPenalty
	}
	if c.FromTrusted {
		score += trustedBonus
	}
	if c.DownloadCount > 0 {
		score += math.Log(float64(c.DownloadCount) + 1)
	}
	return score, nil
}

// SelectBest returns the first candidate holding the highest score. It fails
// with services.ErrEmptyCandidateSet when no candidate scores above -Inf.
func SelectBest(candidates []opensubtitles.Candidate) (opensubtitles.Candidate, float64, error) {
	best := -1
	bestScore := math.Inf(-1)
	for i, candidate := range candidates {
		score := Score(candidate)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return opensubtitles.Candidate{}, bestScore, services.Wrap(services.ErrEmptyCandidateSet,
			"subtitles", "select", fmt.Sprintf("%d candidates", len(candidates)), nil)
	}
	return candidates[best], bestScore, nil
}

// StorageQuality is the normalized 0-1 score stored with a subtitle for
// display. It does not influence selection.
func StorageQuality(c opensubtitles.Candidate) float64 {
	var quality float64
	if c.DownloadCount > 0 {
		quality += math.Min(0.3, math.Log(float64(c.DownloadCount)+1)/10)
	}
	if c.Votes > 0 {
		quality += c.Ratings / 10 * 0.2
	}
	if c.HD {
		quality += 0.15
	}
	if c.FromTrusted {
		quality += 0.15
	}
	if c.AITranslated || c.MachineTranslated {
		quality -= 0.2
	}
	return math.Max(0, math.Min(1, quality/storageQualityMax))
}
