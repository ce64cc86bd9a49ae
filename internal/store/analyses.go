package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cinelex/internal/services"
)

const analysisColumns = "id, movie_id, subtitle_id, subtitle_version, kind, analysis_version, profile_json, is_latest, created_at"

func scanAnalysis(scanner rowScanner) (*AnalysisResult, error) {
	var (
		result     AnalysisResult
		subtitleID sql.NullInt64
		kind       string
		latest     int
		createdRaw string
	)
	if err := scanner.Scan(&result.ID, &result.MovieID, &subtitleID, &result.SubtitleVersion, &kind,
		&result.AnalysisVersion, &result.ProfileJSON, &latest, &createdRaw); err != nil {
		return nil, err
	}
	if subtitleID.Valid {
		id := subtitleID.Int64
		result.SubtitleID = &id
	}
	result.Kind = AnalysisKind(kind)
	result.IsLatest = latest != 0
	if t, err := parseTimeString(createdRaw); err == nil {
		result.CreatedAt = t
	}
	return &result, nil
}

// SaveAnalysis stores result as the latest analysis for its movie. In the
// same transaction the previous latest result is demoted and the movie's
// difficulty is updated.
func (s *Store) SaveAnalysis(ctx context.Context, result *AnalysisResult, difficulty *float64) error {
	if result == nil {
		return errors.New("analysis result is nil")
	}
	if !result.Kind.Valid() {
		return fmt.Errorf("%w: unknown analysis kind %q", services.ErrValidation, result.Kind)
	}
	return s.withTx(ctx, func(tx txExecutor) error {
		now := s.timestamp()
		if _, err := tx.ExecContext(ctx,
			`UPDATE analysis_results SET is_latest = 0 WHERE movie_id = ? AND is_latest = 1`,
			result.MovieID); err != nil {
			return fmt.Errorf("demote previous analysis: %w", err)
		}
		var subtitleID any
		if result.SubtitleID != nil {
			subtitleID = *result.SubtitleID
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO analysis_results (
                movie_id, subtitle_id, subtitle_version, kind, analysis_version, profile_json, is_latest, created_at
            ) VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
			result.MovieID, subtitleID, result.SubtitleVersion, result.Kind, result.AnalysisVersion,
			result.ProfileJSON, now)
		if err != nil {
			return fmt.Errorf("insert analysis: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE movies SET difficulty = ?, updated_at = ? WHERE id = ?`,
			nullableFloat(difficulty), now, result.MovieID); err != nil {
			return fmt.Errorf("update movie difficulty: %w", err)
		}
		result.ID = id
		result.IsLatest = true
		if t, err := parseTimeString(now); err == nil {
			result.CreatedAt = t
		}
		return nil
	})
}

// LatestAnalysis returns the current analysis for a movie.
func (s *Store) LatestAnalysis(ctx context.Context, movieID int64) (*AnalysisResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+analysisColumns+` FROM analysis_results
         WHERE movie_id = ? AND is_latest = 1
         ORDER BY id DESC LIMIT 1`, movieID)
	result, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis for movie %d: %w", movieID, services.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("latest analysis: %w", err)
	}
	return result, nil
}

// CountAnalyses returns the number of analysis rows for a movie.
func (s *Store) CountAnalyses(ctx context.Context, movieID int64) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM analysis_results WHERE movie_id = ?`, movieID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count analyses: %w", err)
	}
	return count, nil
}
