package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cinelex/internal/services"
)

const movieColumns = "id, tmdb_id, title, original_title, language, original_language, release_date, genres_json, runtime, overview, poster_url, backdrop_url, vote_average, vote_count, author, difficulty, created_at, updated_at"

func scanMovie(scanner rowScanner) (*Movie, error) {
	var (
		m          Movie
		releaseRaw sql.NullString
		genresRaw  string
		runtime    sql.NullInt64
		difficulty sql.NullFloat64
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&m.ID, &m.TMDBID, &m.Title, &m.OriginalTitle, &m.Language, &m.OriginalLanguage,
		&releaseRaw, &genresRaw, &runtime, &m.Overview, &m.PosterURL, &m.BackdropURL,
		&m.VoteAverage, &m.VoteCount, &m.Author, &difficulty, &createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}
	m.ReleaseDate = datePtr(releaseRaw)
	m.Genres = decodeGenres(genresRaw)
	m.Runtime = intPtr(runtime)
	m.Difficulty = floatPtr(difficulty)
	if t, err := parseTimeString(createdRaw); err == nil {
		m.CreatedAt = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		m.UpdatedAt = t
	}
	return &m, nil
}

// UpsertMovie inserts or overwrites the movie keyed by TMDB id. Every
// ingested field is replaced; difficulty is left to the analysis pipeline.
func (s *Store) UpsertMovie(ctx context.Context, m *Movie) (int64, error) {
	if m == nil {
		return 0, errors.New("movie is nil")
	}
	if m.TMDBID == 0 {
		return 0, fmt.Errorf("%w: movie has no tmdb id", services.ErrValidation)
	}
	now := s.timestamp()
	var id int64
	err := retryOnBusy(ensureContext(ctx), func() error {
		return s.db.QueryRowContext(ctx,
			`INSERT INTO movies (
                tmdb_id, title, original_title, language, original_language, release_date,
                genres_json, runtime, overview, poster_url, backdrop_url, vote_average,
                vote_count, author, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(tmdb_id) DO UPDATE SET
                title = excluded.title,
                original_title = excluded.original_title,
                language = excluded.language,
                original_language = excluded.original_language,
                release_date = excluded.release_date,
                genres_json = excluded.genres_json,
                runtime = excluded.runtime,
                overview = excluded.overview,
                poster_url = excluded.poster_url,
                backdrop_url = excluded.backdrop_url,
                vote_average = excluded.vote_average,
                vote_count = excluded.vote_count,
                author = excluded.author,
                updated_at = excluded.updated_at
            RETURNING id`,
			m.TMDBID, m.Title, m.OriginalTitle, m.Language, m.OriginalLanguage, nullableDate(m.ReleaseDate),
			encodeGenres(m.Genres), nullableInt(m.Runtime), m.Overview, m.PosterURL, m.BackdropURL, m.VoteAverage,
			m.VoteCount, m.Author, now, now,
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("upsert movie %d: %w", m.TMDBID, err)
	}
	m.ID = id
	return id, nil
}

// GetMovie fetches a movie by id. It returns ErrNotFound when absent.
func (s *Store) GetMovie(ctx context.Context, id int64) (*Movie, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+movieColumns+` FROM movies WHERE id = ?`, id)
	m, err := scanMovie(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("movie %d: %w", id, services.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get movie: %w", err)
	}
	return m, nil
}

// GetMovieByTMDBID fetches a movie by its TMDB identifier.
func (s *Store) GetMovieByTMDBID(ctx context.Context, tmdbID int64) (*Movie, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+movieColumns+` FROM movies WHERE tmdb_id = ?`, tmdbID)
	m, err := scanMovie(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tmdb movie %d: %w", tmdbID, services.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get movie by tmdb id: %w", err)
	}
	return m, nil
}

// CountMovies returns the number of catalog rows.
func (s *Store) CountMovies(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM movies`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count movies: %w", err)
	}
	return count, nil
}

// MissingCursor is a keyset position for MoviesMissingSubtitles.
type MissingCursor struct {
	ReleaseDate string
	MovieID     int64
}

// MoviesMissingSubtitles lists movies with no active subtitle in language,
// newest release first. Pass the returned cursor to fetch the next page; a
// nil cursor means there are no more rows.
func (s *Store) MoviesMissingSubtitles(ctx context.Context, language string, limit int, after *MissingCursor) ([]Movie, *MissingCursor, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + prefixed("m", movieColumns) + `
        FROM movies m
        WHERE NOT EXISTS (
            SELECT 1 FROM subtitles s
            WHERE s.movie_id = m.id AND s.language = ? AND s.is_active = 1
        )`
	args := []any{language}
	if after != nil {
		query += ` AND (COALESCE(m.release_date, ''), m.id) < (?, ?)`
		args = append(args, after.ReleaseDate, after.MovieID)
	}
	query += ` ORDER BY COALESCE(m.release_date, '') DESC, m.id DESC LIMIT ?`
	args = append(args, limit)

	movies, err := s.queryMovies(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("movies missing subtitles: %w", err)
	}
	if len(movies) < limit {
		return movies, nil, nil
	}
	last := movies[len(movies)-1]
	cursor := &MissingCursor{MovieID: last.ID}
	if last.ReleaseDate != nil {
		cursor.ReleaseDate = last.ReleaseDate.Format(dateLayout)
	}
	return movies, cursor, nil
}

// MissingSubtitlesPage returns a page of movies lacking an active subtitle in
// language, most voted first.
func (s *Store) MissingSubtitlesPage(ctx context.Context, language string, page, pageSize int) (MissingPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	const where = `
        FROM movies m
        WHERE NOT EXISTS (
            SELECT 1 FROM subtitles s
            WHERE s.movie_id = m.id AND s.language = ? AND s.is_active = 1
        )`
	result := MissingPage{Page: page, PageSize: pageSize, Movies: []Movie{}}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1)`+where, language).Scan(&result.Total); err != nil {
		return result, fmt.Errorf("count missing subtitles: %w", err)
	}
	movies, err := s.queryMovies(ctx,
		`SELECT `+prefixed("m", movieColumns)+where+`
        ORDER BY m.vote_count DESC, COALESCE(m.release_date, '') DESC, m.id ASC
        LIMIT ? OFFSET ?`,
		language, pageSize, (page-1)*pageSize)
	if err != nil {
		return result, fmt.Errorf("list missing subtitles: %w", err)
	}
	result.Movies = movies
	return result, nil
}

// ForEachSearchRow streams every movie's search projection to fn. Iteration
// stops at the first error returned by fn.
func (s *Store) ForEachSearchRow(ctx context.Context, fn func(SearchRow) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, release_date, vote_count, author, difficulty, poster_url, genres_json FROM movies`)
	if err != nil {
		return fmt.Errorf("query search rows: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			row        SearchRow
			releaseRaw sql.NullString
			difficulty sql.NullFloat64
			genresRaw  string
		)
		if err := rows.Scan(&row.MovieID, &row.Title, &releaseRaw, &row.VoteCount, &row.Author,
			&difficulty, &row.PosterURL, &genresRaw); err != nil {
			return fmt.Errorf("scan search row: %w", err)
		}
		row.ReleaseDate = datePtr(releaseRaw)
		row.Difficulty = floatPtr(difficulty)
		row.Genres = decodeGenres(genresRaw)
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *Store) queryMovies(ctx context.Context, query string, args ...any) ([]Movie, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movies := []Movie{}
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, err
		}
		movies = append(movies, *m)
	}
	return movies, rows.Err()
}

// ReleaseYear returns the year of m's release date, or 0 when unknown.
func (m Movie) ReleaseYear() int {
	if m.ReleaseDate == nil {
		return 0
	}
	return m.ReleaseDate.Year()
}
