package testsupport

import (
	"context"
	"testing"
	"time"

	"cinelex/internal/config"
	"cinelex/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	s, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

// SeedMovie upserts a minimal movie row.
func SeedMovie(t testing.TB, s *store.Store, tmdbID int64, title string, voteCount int, release string) *store.Movie {
	t.Helper()

	movie := &store.Movie{
		TMDBID:    tmdbID,
		Title:     title,
		Language:  "en",
		VoteCount: voteCount,
		Genres:    []string{"Drama"},
	}
	if release != "" {
		date, err := time.Parse("2006-01-02", release)
		if err != nil {
			t.Fatalf("parse release %q: %v", release, err)
		}
		movie.ReleaseDate = &date
	}
	if _, err := s.UpsertMovie(context.Background(), movie); err != nil {
		t.Fatalf("UpsertMovie: %v", err)
	}
	return movie
}

// SeedSubtitle inserts an active PENDING subtitle for movieID.
func SeedSubtitle(t testing.TB, s *store.Store, movieID int64, language, hash string) *store.Subtitle {
	t.Helper()

	sub, _, err := s.InsertSubtitle(context.Background(), &store.Subtitle{
		MovieID:     movieID,
		Language:    language,
		Source:      "test",
		Format:      "srt",
		Version:     "test-release",
		ContentHash: hash,
		StoragePath: "media/test/" + hash + ".srt",
	})
	if err != nil {
		t.Fatalf("InsertSubtitle: %v", err)
	}
	return sub
}
