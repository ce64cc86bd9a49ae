package subtitles_test

import (
	"errors"
	"math"
	"testing"

	"cinelex/internal/services"
	"cinelex/internal/subtitles"
	"cinelex/internal/subtitles/opensubtitles"
)

func TestScore(t *testing.T) {
	cases := []struct {
		name string
		c    opensubtitles.Candidate
		want float64
	}{
		{"plain", opensubtitles.Candidate{FileID: 1}, 0},
		{"downloads", opensubtitles.Candidate{FileID: 1, DownloadCount: 99}, math.Log(100)},
		{"trusted", opensubtitles.Candidate{FileID: 1, FromTrusted: true}, 5},
		{"ai", opensubtitles.Candidate{FileID: 1, AITranslated: true, DownloadCount: 9}, -1000 + math.Log(10)},
		{"ai and machine", opensubtitles.Candidate{FileID: 1, AITranslated: true, MachineTranslated: true}, -2000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := subtitles.Score(tc.c); math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("Score = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestScoreInvalidCandidateIsNegativeInfinity(t *testing.T) {
	for _, c := range []opensubtitles.Candidate{{FileID: 0}, {FileID: 1, DownloadCount: -3}} {
		if got := subtitles.Score(c); !math.IsInf(got, -1) {
			t.Fatalf("expected -Inf for %+v, got %v", c, got)
		}
	}
}

func TestSelectBestPrefersHumanTranslations(t *testing.T) {
	candidates := []opensubtitles.Candidate{
		{FileID: 1, AITranslated: true, DownloadCount: 1_000_000},
		{FileID: 2, DownloadCount: 10},
		{FileID: 3, DownloadCount: 10},
		{FileID: 4, MachineTranslated: true, FromTrusted: true},
	}
	best, score, err := subtitles.SelectBest(candidates)
	if err != nil {
		t.Fatalf("SelectBest: %v", err)
	}
	if best.FileID != 2 {
		t.Fatalf("expected first maximum (file 2), got %d", best.FileID)
	}
	if math.Abs(score-math.Log(11)) > 1e-9 {
		t.Fatalf("unexpected score %v", score)
	}
}

func TestSelectBestEmptySet(t *testing.T) {
	for _, candidates := range [][]opensubtitles.Candidate{nil, {{FileID: 0}}} {
		_, _, err := subtitles.SelectBest(candidates)
		if !errors.Is(err, services.ErrEmptyCandidateSet) {
			t.Fatalf("expected empty candidate set, got %v", err)
		}
		if services.Classify(err) != services.OutcomeTerminal {
			t.Fatalf("empty candidate set should not be retried, got %v", services.Classify(err))
		}
	}
}

func TestStorageQuality(t *testing.T) {
	cases := []struct {
		name string
		c    opensubtitles.Candidate
		want float64
	}{
		{"empty", opensubtitles.Candidate{}, 0},
		{"hd trusted", opensubtitles.Candidate{HD: true, FromTrusted: true}, 0.3 / 0.8},
		{"ratings ignored without votes", opensubtitles.Candidate{Ratings: 10}, 0},
		{"saturated", opensubtitles.Candidate{DownloadCount: 1_000_000, Votes: 3, Ratings: 10, HD: true, FromTrusted: true}, 1},
		{"translated floor", opensubtitles.Candidate{AITranslated: true}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := subtitles.StorageQuality(tc.c); math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("StorageQuality = %v, want %v", got, tc.want)
			}
		})
	}
}
