package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cinelex/internal/services"
)

const syncJobColumns = "id, job_key, year, language, max_results, status, priority, attempts, last_attempt, processed_count, failed_count, error_message, retry_of, superseded, created_at, updated_at"

func scanSyncJob(scanner rowScanner) (*SyncJob, error) {
	var (
		job         SyncJob
		status      string
		lastAttempt sql.NullString
		errMsg      sql.NullString
		retryOf     sql.NullString
		superseded  int
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(
		&job.ID, &job.JobKey, &job.Year, &job.Language, &job.MaxResults, &status, &job.Priority,
		&job.Attempts, &lastAttempt, &job.ProcessedCount, &job.FailedCount, &errMsg, &retryOf,
		&superseded, &createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}
	job.Status = SyncStatus(status)
	job.LastAttempt = timePtr(lastAttempt)
	job.ErrorMessage = errMsg.String
	job.RetryOf = retryOf.String
	job.Superseded = superseded != 0
	if t, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = t
	}
	return &job, nil
}

// InsertSyncJob records a new PENDING sync job. The caller assigns the id.
func (s *Store) InsertSyncJob(ctx context.Context, job *SyncJob) error {
	return s.withTx(ctx, func(tx txExecutor) error {
		return insertSyncJob(ctx, tx, job, s.timestamp())
	})
}

func insertSyncJob(ctx context.Context, tx txExecutor, job *SyncJob, now string) error {
	if job == nil || job.ID == "" {
		return errors.New("sync job requires an id")
	}
	if job.Status == "" {
		job.Status = SyncPending
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sync_jobs (
            id, job_key, year, language, max_results, status, priority, attempts,
            last_attempt, processed_count, failed_count, error_message, retry_of,
            superseded, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, NULL, ?, 0, ?, ?)`,
		job.ID, job.JobKey, job.Year, job.Language, job.MaxResults, job.Status, job.Priority, job.Attempts,
		nullableTime(job.LastAttempt), nullableString(job.RetryOf), now, now,
	); err != nil {
		return fmt.Errorf("insert sync job: %w", err)
	}
	if t, err := parseTimeString(now); err == nil {
		job.CreatedAt, job.UpdatedAt = t, t
	}
	return nil
}

// GetSyncJob fetches a sync job by id.
func (s *Store) GetSyncJob(ctx context.Context, id string) (*SyncJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+syncJobColumns+` FROM sync_jobs WHERE id = ?`, id)
	job, err := scanSyncJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sync job %s: %w", id, services.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get sync job: %w", err)
	}
	return job, nil
}

// ListSyncJobs returns jobs newest first, optionally filtered.
func (s *Store) ListSyncJobs(ctx context.Context, filter SyncJobFilter) ([]SyncJob, error) {
	query := `SELECT ` + syncJobColumns + ` FROM sync_jobs WHERE 1 = 1`
	var args []any
	if len(filter.Statuses) > 0 {
		query += ` AND status IN (` + makePlaceholders(len(filter.Statuses)) + `)`
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	if filter.Year > 0 {
		query += ` AND year = ?`
		args = append(args, filter.Year)
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	return s.querySyncJobs(ctx, query, args...)
}

// ClaimNextSyncJob moves the next PENDING job to IN_PROGRESS and returns it.
// Lower priority values dispatch first, then older jobs. It returns nil when
// nothing is pending.
func (s *Store) ClaimNextSyncJob(ctx context.Context, now time.Time) (*SyncJob, error) {
	var job *SyncJob
	stamp := formatTime(now)
	err := s.withTx(ctx, func(tx txExecutor) error {
		row := tx.QueryRowContext(ctx,
			`UPDATE sync_jobs
             SET status = ?, last_attempt = ?, updated_at = ?
             WHERE id = (
                 SELECT id FROM sync_jobs
                 WHERE status = ?
                 ORDER BY priority ASC, created_at ASC, id ASC
                 LIMIT 1
             )
             RETURNING `+syncJobColumns,
			SyncInProgress, stamp, stamp, SyncPending)
		claimed, err := scanSyncJob(row)
		if errors.Is(err, sql.ErrNoRows) {
			job = nil
			return nil
		}
		if err != nil {
			return err
		}
		job = claimed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim sync job: %w", err)
	}
	return job, nil
}

// UpdateSyncProgress records running counters for an IN_PROGRESS job.
func (s *Store) UpdateSyncProgress(ctx context.Context, id string, processed, failed int) error {
	_, err := s.execWithRetry(ctx,
		`UPDATE sync_jobs SET processed_count = ?, failed_count = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		processed, failed, s.timestamp(), id, SyncInProgress)
	if err != nil {
		return fmt.Errorf("update sync progress: %w", err)
	}
	return nil
}

// FinishSyncJob moves an IN_PROGRESS job to COMPLETED or FAILED.
func (s *Store) FinishSyncJob(ctx context.Context, id string, status SyncStatus, processed, failed int, errMsg string) error {
	if status != SyncCompleted && status != SyncFailed {
		return fmt.Errorf("%w: sync job cannot finish as %s", services.ErrValidation, status)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE sync_jobs
         SET status = ?, processed_count = ?, failed_count = ?, error_message = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		status, processed, failed, nullableString(errMsg), s.timestamp(), id, SyncInProgress)
	if err != nil {
		return fmt.Errorf("finish sync job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: sync job %s is not in progress", services.ErrConcurrencyConflict, id)
	}
	return nil
}

// FailInterruptedSyncJobs marks jobs left IN_PROGRESS by a previous process
// as FAILED so the retry sweep can pick them up.
func (s *Store) FailInterruptedSyncJobs(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE sync_jobs SET status = ?, error_message = ?, updated_at = ? WHERE status = ?`,
		SyncFailed, "interrupted by shutdown", s.timestamp(), SyncInProgress)
	if err != nil {
		return 0, fmt.Errorf("fail interrupted sync jobs: %w", err)
	}
	return res.RowsAffected()
}

// RetryCandidates returns FAILED jobs that are not superseded and have
// attempts below maxAttempts. Backoff timing is left to the caller.
func (s *Store) RetryCandidates(ctx context.Context, maxAttempts int) ([]SyncJob, error) {
	return s.querySyncJobs(ctx,
		`SELECT `+syncJobColumns+` FROM sync_jobs
         WHERE status = ? AND superseded = 0 AND attempts < ?
         ORDER BY priority ASC, created_at ASC`,
		SyncFailed, maxAttempts)
}

// ScheduleRetry inserts retry as a new PENDING job and marks original as
// superseded in one transaction. A job can be superseded only once.
func (s *Store) ScheduleRetry(ctx context.Context, originalID string, retry *SyncJob) error {
	return s.withTx(ctx, func(tx txExecutor) error {
		now := s.timestamp()
		res, err := tx.ExecContext(ctx,
			`UPDATE sync_jobs SET superseded = 1, updated_at = ?
             WHERE id = ? AND status = ? AND superseded = 0`,
			now, originalID, SyncFailed)
		if err != nil {
			return fmt.Errorf("supersede sync job: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: sync job %s already superseded or not failed", services.ErrConcurrencyConflict, originalID)
		}
		retry.RetryOf = originalID
		retry.Status = SyncPending
		return insertSyncJob(ctx, tx, retry, now)
	})
}

func (s *Store) querySyncJobs(ctx context.Context, query string, args ...any) ([]SyncJob, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sync jobs: %w", err)
	}
	defer rows.Close()
	jobs := []SyncJob{}
	for rows.Next() {
		job, err := scanSyncJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sync job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}
