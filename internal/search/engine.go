package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"cinelex/internal/logging"
	"cinelex/internal/store"
	"cinelex/internal/textutil"
)

const (
	MinQueryLength    = 3
	MaxQueryLength    = 50
	FullTextThreshold = 8
	MaxResults        = 10

	// Rows whose word similarity to the query falls under this stay out of
	// full-text results unless their text rank is positive.
	wordSimilarityFloor = 0.7
	trigramFloor        = 0.1
	popularityScale     = 100000
)

// Strategy names the ranking path used for a query.
type Strategy string

const (
	StrategyNone     Strategy = "none"
	StrategyTrigram  Strategy = "trigram"
	StrategyFullText Strategy = "fts"
)

// SearchHit is one ranked title.
type SearchHit struct {
	MovieID     int64    `json:"movie_id"`
	Title       string   `json:"title"`
	ReleaseYear *int     `json:"release_year"`
	Popularity  float64  `json:"popularity"`
	RankScore   float64  `json:"rank_score"`
	Author      string   `json:"author"`
	Difficulty  *float64 `json:"difficulty"`
	PosterURL   string   `json:"poster_url"`
	Genres      []string `json:"genres"`
}

// RowSource streams the search projection of the catalog.
type RowSource interface {
	ForEachSearchRow(ctx context.Context, fn func(store.SearchRow) error) error
}

// Observer receives per-query timings.
type Observer interface {
	ObserveSearch(strategy string, hits int, elapsed time.Duration)
}

// Engine ranks catalog titles against free-text queries.
type Engine struct {
	rows     RowSource
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithObserver reports query timings to o.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// NewEngine constructs a search engine over rows.
func NewEngine(rows RowSource, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		rows:   rows,
		logger: logging.NewComponentLogger(logger, "search"),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Plan normalizes a raw query and picks its ranking strategy. Queries shorter
// than MinQueryLength, or empty once trimmed, get StrategyNone.
func Plan(raw string) (string, Strategy) {
	if utf8.RuneCountInString(raw) < MinQueryLength {
		return "", StrategyNone
	}
	if utf8.RuneCountInString(raw) > MaxQueryLength {
		raw = string([]rune(raw)[:MaxQueryLength])
	}
	query := textutil.Fold(strings.TrimSpace(raw))
	if query == "" {
		return "", StrategyNone
	}
	if utf8.RuneCountInString(query) > FullTextThreshold {
		return query, StrategyFullText
	}
	return query, StrategyTrigram
}

// Search returns up to MaxResults hits for raw. Unusable queries and queries
// matching nothing return an empty slice and no error.
func (e *Engine) Search(ctx context.Context, raw string) ([]SearchHit, error) {
	started := e.now()
	query, strategy := Plan(raw)
	hits := []SearchHit{}
	var err error
	switch strategy {
	case StrategyTrigram:
		hits, err = e.trigramSearch(ctx, query)
	case StrategyFullText:
		hits, err = e.fullTextSearch(ctx, query)
	}
	if err != nil {
		return nil, err
	}
	elapsed := e.now().Sub(started)
	if e.observer != nil {
		e.observer.ObserveSearch(string(strategy), len(hits), elapsed)
	}
	e.logger.Debug("search completed",
		logging.String("strategy", string(strategy)),
		logging.Int("hits", len(hits)),
		logging.Duration("elapsed", elapsed),
	)
	return hits, nil
}

type scored struct {
	hit     SearchHit
	primary float64
	votes   int
}

func (e *Engine) trigramSearch(ctx context.Context, query string) ([]SearchHit, error) {
	var matches []scored
	err := e.rows.ForEachSearchRow(ctx, func(row store.SearchRow) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		sim := similarity(textutil.Fold(row.Title), query)
		if sim < trigramFloor {
			return nil
		}
		hit := newHit(row)
		hit.RankScore = round4(sim)
		matches = append(matches, scored{hit: hit, primary: 1 - sim, votes: row.VoteCount})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("trigram search: %w", err)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.primary != b.primary {
			return a.primary < b.primary
		}
		if a.votes != b.votes {
			return a.votes > b.votes
		}
		return a.hit.MovieID < b.hit.MovieID
	})
	return collect(matches), nil
}

func (e *Engine) fullTextSearch(ctx context.Context, query string) ([]SearchHit, error) {
	queryLexemes := lexemes(query)
	var matches []scored
	err := e.rows.ForEachSearchRow(ctx, func(row store.SearchRow) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		title := textutil.Fold(row.Title)
		weight := votesWeight(row.VoteCount)
		rank := textRank(lexemes(title), queryLexemes) * weight
		wsim := wordSimilarity(title, query)
		if rank <= 0 && wsim <= wordSimilarityFloor {
			return nil
		}
		final := math.Max(rank, wsim*weight)
		hit := newHit(row)
		hit.RankScore = round4(final)
		matches = append(matches, scored{hit: hit, primary: final, votes: row.VoteCount})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("full-text search: %w", err)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.primary != b.primary {
			return a.primary > b.primary
		}
		if a.votes != b.votes {
			return a.votes > b.votes
		}
		return a.hit.MovieID < b.hit.MovieID
	})
	return collect(matches), nil
}

func collect(matches []scored) []SearchHit {
	if len(matches) > MaxResults {
		matches = matches[:MaxResults]
	}
	hits := make([]SearchHit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, m.hit)
	}
	return hits
}

func newHit(row store.SearchRow) SearchHit {
	hit := SearchHit{
		MovieID:    row.MovieID,
		Title:      row.Title,
		Popularity: Popularity(row.VoteCount),
		Author:     row.Author,
		Difficulty: row.Difficulty,
		PosterURL:  row.PosterURL,
		Genres:     row.Genres,
	}
	if hit.Genres == nil {
		hit.Genres = []string{}
	}
	if row.ReleaseDate != nil {
		year := row.ReleaseDate.Year()
		hit.ReleaseYear = &year
	}
	return hit
}

func votesWeight(votes int) float64 {
	return math.Log(float64(max(votes, 1)) + 1)
}

// Popularity maps a vote count onto a roughly [0, 1] scale.
func Popularity(votes int) float64 {
	return round4(votesWeight(votes) / math.Log(popularityScale))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
