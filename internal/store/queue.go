package store

import (
	"context"
	"time"
)

// WorkQueue exposes the subtitle claim contract with fixed eligibility limits.
type WorkQueue struct {
	store       *Store
	maxAttempts int
	staleAfter  time.Duration
}

// NewWorkQueue binds claim limits to a store.
func NewWorkQueue(s *Store, maxAttempts int, staleAfter time.Duration) *WorkQueue {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	if staleAfter <= 0 {
		staleAfter = time.Hour
	}
	return &WorkQueue{store: s, maxAttempts: maxAttempts, staleAfter: staleAfter}
}

// ClaimBatch claims up to limit eligible subtitles as of now.
func (q *WorkQueue) ClaimBatch(ctx context.Context, limit int, now time.Time) ([]WorkItem, error) {
	return q.store.ClaimSubtitles(ctx, ClaimParams{
		Limit:       limit,
		Now:         now,
		MaxAttempts: q.maxAttempts,
		StaleAfter:  q.staleAfter,
	})
}

// Complete marks a claimed item PROCESSED.
func (q *WorkQueue) Complete(ctx context.Context, id int64) error {
	return q.store.CompleteSubtitle(ctx, id)
}

// Fail marks a claimed item FAILED.
func (q *WorkQueue) Fail(ctx context.Context, id int64, reason string) error {
	return q.store.FailSubtitle(ctx, id, reason)
}
