package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cinelex/internal/services"
)

const subtitleColumns = "id, movie_id, language, source, format, version, content_hash, storage_path, quality_score, metadata_json, is_active, processing_status, processing_attempts, last_processing_attempt, processing_error, processed_at, created_at"

func scanSubtitle(scanner rowScanner) (*Subtitle, error) {
	var (
		sub         Subtitle
		quality     sql.NullFloat64
		active      int
		status      string
		lastAttempt sql.NullString
		procErr     sql.NullString
		processedAt sql.NullString
		createdRaw  string
	)
	if err := scanner.Scan(
		&sub.ID, &sub.MovieID, &sub.Language, &sub.Source, &sub.Format, &sub.Version, &sub.ContentHash,
		&sub.StoragePath, &quality, &sub.MetadataJSON, &active, &status, &sub.ProcessingAttempts,
		&lastAttempt, &procErr, &processedAt, &createdRaw,
	); err != nil {
		return nil, err
	}
	sub.QualityScore = floatPtr(quality)
	sub.IsActive = active != 0
	sub.ProcessingStatus = ProcessingStatus(status)
	sub.LastProcessingAttempt = timePtr(lastAttempt)
	sub.ProcessingError = procErr.String
	sub.ProcessedAt = timePtr(processedAt)
	if t, err := parseTimeString(createdRaw); err == nil {
		sub.CreatedAt = t
	}
	return &sub, nil
}

// InsertSubtitle stores a new active PENDING subtitle. When an active row
// with the same movie, language, and content hash exists it returns that row
// and created=false.
func (s *Store) InsertSubtitle(ctx context.Context, sub *Subtitle) (*Subtitle, bool, error) {
	if sub == nil {
		return nil, false, errors.New("subtitle is nil")
	}
	if sub.MetadataJSON == "" {
		sub.MetadataJSON = "{}"
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO subtitles (
            movie_id, language, source, format, version, content_hash, storage_path,
            quality_score, metadata_json, is_active, processing_status, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
        ON CONFLICT DO NOTHING`,
		sub.MovieID, sub.Language, sub.Source, sub.Format, sub.Version, sub.ContentHash, sub.StoragePath,
		nullableFloat(sub.QualityScore), sub.MetadataJSON, ProcessingPending, s.timestamp(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert subtitle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		existing, err := s.FindActiveSubtitle(ctx, sub.MovieID, sub.Language, sub.ContentHash)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("last insert id: %w", err)
	}
	created, err := s.GetSubtitle(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// FindActiveSubtitle returns the active row for (movie, language, hash).
func (s *Store) FindActiveSubtitle(ctx context.Context, movieID int64, language, hash string) (*Subtitle, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+subtitleColumns+` FROM subtitles
         WHERE movie_id = ? AND language = ? AND content_hash = ? AND is_active = 1`,
		movieID, language, hash)
	sub, err := scanSubtitle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active subtitle for movie %d: %w", movieID, services.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find active subtitle: %w", err)
	}
	return sub, nil
}

// GetSubtitle fetches a subtitle by id.
func (s *Store) GetSubtitle(ctx context.Context, id int64) (*Subtitle, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+subtitleColumns+` FROM subtitles WHERE id = ?`, id)
	sub, err := scanSubtitle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subtitle %d: %w", id, services.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get subtitle: %w", err)
	}
	return sub, nil
}

// ListSubtitles returns every subtitle of a movie, newest first.
func (s *Store) ListSubtitles(ctx context.Context, movieID int64) ([]Subtitle, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subtitleColumns+` FROM subtitles WHERE movie_id = ? ORDER BY created_at DESC, id DESC`, movieID)
	if err != nil {
		return nil, fmt.Errorf("list subtitles: %w", err)
	}
	defer rows.Close()
	subs := []Subtitle{}
	for rows.Next() {
		sub, err := scanSubtitle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subtitle: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// ClaimParams controls which subtitles are eligible for a claim.
type ClaimParams struct {
	Limit       int
	Now         time.Time
	MaxAttempts int
	StaleAfter  time.Duration
}

// WorkItem is a claimed subtitle together with the movie ordering key.
type WorkItem struct {
	Subtitle
	MovieVoteCount int `json:"movie_vote_count"`
}

// ClaimSubtitles atomically moves up to Limit eligible subtitles to
// PROCESSING, incrementing their attempt counters. Eligible rows are active
// and either PENDING, FAILED below MaxAttempts, or PROCESSING with a last
// attempt older than StaleAfter. Concurrent callers never receive the same row.
func (s *Store) ClaimSubtitles(ctx context.Context, params ClaimParams) ([]WorkItem, error) {
	if params.Limit <= 0 {
		return nil, nil
	}
	now := params.Now
	if now.IsZero() {
		now = s.now()
	}
	stamp := formatTime(now)
	staleBefore := formatTime(now.Add(-params.StaleAfter))

	var items []WorkItem
	err := s.withTx(ctx, func(tx txExecutor) error {
		ids, err := claimIDs(ctx, tx, params, stamp, staleBefore)
		if err != nil || len(ids) == 0 {
			items = nil
			return err
		}
		args := make([]any, len(ids))
		for i, id := range ids {
			args[i] = id
		}
		rows, err := tx.QueryContext(ctx,
			`SELECT `+prefixed("s", subtitleColumns)+`, m.vote_count
             FROM subtitles s JOIN movies m ON m.id = s.movie_id
             WHERE s.id IN (`+makePlaceholders(len(ids))+`)
             ORDER BY m.vote_count DESC, s.processing_attempts ASC, s.created_at ASC, s.id ASC`,
			args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		items = make([]WorkItem, 0, len(ids))
		for rows.Next() {
			var voteCount int
			sub, err := scanSubtitle(scannerWithExtra{rows, &voteCount})
			if err != nil {
				return err
			}
			items = append(items, WorkItem{Subtitle: *sub, MovieVoteCount: voteCount})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("claim subtitles: %w", err)
	}
	return items, nil
}

// claimIDs performs the single-statement claim and returns the claimed ids.
func claimIDs(ctx context.Context, tx txExecutor, params ClaimParams, stamp, staleBefore string) ([]int64, error) {
	rows, err := tx.QueryContext(ctx,
		`UPDATE subtitles
         SET processing_status = ?,
             processing_attempts = processing_attempts + 1,
             last_processing_attempt = ?
         WHERE id IN (
             SELECT s.id FROM subtitles s
             JOIN movies m ON m.id = s.movie_id
             WHERE s.is_active = 1 AND (
                 s.processing_status = ?
                 OR (s.processing_status = ? AND s.processing_attempts < ?)
                 OR (s.processing_status = ? AND (s.last_processing_attempt IS NULL OR s.last_processing_attempt < ?))
             )
             ORDER BY m.vote_count DESC, s.processing_attempts ASC, s.created_at ASC, s.id ASC
             LIMIT ?
         )
         RETURNING id`,
		ProcessingInProgress, stamp,
		ProcessingPending,
		ProcessingFailed, params.MaxAttempts,
		ProcessingInProgress, staleBefore,
		params.Limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// scannerWithExtra appends trailing destinations to a scan.
type scannerWithExtra struct {
	rowScanner
	extra *int
}

func (s scannerWithExtra) Scan(dest ...any) error {
	return s.rowScanner.Scan(append(dest, s.extra)...)
}

// CompleteSubtitle marks a claimed subtitle PROCESSED.
func (s *Store) CompleteSubtitle(ctx context.Context, id int64) error {
	stamp := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE subtitles
         SET processing_status = ?, processed_at = ?, processing_error = NULL
         WHERE id = ? AND processing_status = ?`,
		ProcessingDone, stamp, id, ProcessingInProgress)
	if err != nil {
		return fmt.Errorf("complete subtitle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: subtitle %d is not being processed", services.ErrConcurrencyConflict, id)
	}
	return nil
}

// FailSubtitle marks a claimed subtitle FAILED with reason.
func (s *Store) FailSubtitle(ctx context.Context, id int64, reason string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE subtitles
         SET processing_status = ?, processing_error = ?
         WHERE id = ? AND processing_status = ?`,
		ProcessingFailed, reason, id, ProcessingInProgress)
	if err != nil {
		return fmt.Errorf("fail subtitle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: subtitle %d is not being processed", services.ErrConcurrencyConflict, id)
	}
	return nil
}

// DeactivateSubtitle clears is_active so the row leaves the work queue and a
// replacement with the same hash may be stored.
func (s *Store) DeactivateSubtitle(ctx context.Context, id int64) error {
	if _, err := s.execWithRetry(ctx, `UPDATE subtitles SET is_active = 0 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deactivate subtitle: %w", err)
	}
	return nil
}
