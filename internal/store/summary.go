package store

import (
	"context"
	"fmt"
	"time"
)

// Summary aggregates counts across tables for status output.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	summary := Summary{
		SyncJobs:  map[SyncStatus]int{},
		Subtitles: map[ProcessingStatus]int{},
		DBPath:    s.path,
	}
	var err error
	if summary.Movies, err = s.CountMovies(ctx); err != nil {
		return summary, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM sync_jobs GROUP BY status`)
	if err != nil {
		return summary, fmt.Errorf("sync job stats: %w", err)
	}
	for rows.Next() {
		var status SyncStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return summary, err
		}
		summary.SyncJobs[status] = count
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx,
		`SELECT processing_status, COUNT(1) FROM subtitles WHERE is_active = 1 GROUP BY processing_status`)
	if err != nil {
		return summary, fmt.Errorf("subtitle stats: %w", err)
	}
	for rows.Next() {
		var status ProcessingStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return summary, err
		}
		summary.Subtitles[status] = count
	}
	rows.Close()

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM analysis_results`).Scan(&summary.Analyses); err != nil {
		return summary, fmt.Errorf("analysis stats: %w", err)
	}
	return summary, nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}
