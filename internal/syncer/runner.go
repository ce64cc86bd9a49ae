package syncer

import (
	"context"
	"errors"
	"time"

	"cinelex/internal/catalog/tmdb"
	"cinelex/internal/logging"
	"cinelex/internal/services"
	"cinelex/internal/store"
)

// Run claims and executes jobs until ctx is cancelled, polling when the
// queue is empty.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		ran, err := o.RunNext(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			logging.ErrorWithContext(o.logger, "sync runner iteration failed", "sync_runner_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check database access"))
		}
		if ran && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(o.pollInterval):
		}
	}
}

// RunNext claims the highest-priority PENDING job and executes it. It
// reports false when nothing was pending.
func (o *Orchestrator) RunNext(ctx context.Context) (bool, error) {
	job, err := o.store.ClaimNextSyncJob(ctx, o.now())
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	return true, o.execute(ctx, job)
}

func (o *Orchestrator) execute(ctx context.Context, job *store.SyncJob) error {
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithStage(ctx, "sync")
	logger := logging.WithContext(ctx, o.logger)
	logger.Info("sync job started",
		logging.Int("year", job.Year),
		logging.String("language", job.Language),
		logging.Int("max_results", job.MaxResults),
		logging.Int("attempts", job.Attempts))

	start := o.now()
	processed, failed := 0, 0
	var fatal error
	for record, err := range o.source.Fetch(ctx, job.Year, job.Language, job.MaxResults) {
		if err != nil {
			var recErr *tmdb.RecordError
			var pageErr *tmdb.PageError
			switch {
			case errors.As(err, &recErr):
				failed++
				o.observe(OutcomeFailed)
			case errors.As(err, &pageErr):
				logging.WarnWithContext(logger, "discover page skipped", "sync_page_failed",
					logging.Int("page", pageErr.Page),
					logging.String("from", pageErr.Range.From),
					logging.Error(err),
					logging.String(logging.FieldImpact, "movies on this page were not ingested"))
				continue
			default:
				fatal = err
			}
			if fatal != nil {
				break
			}
		} else if _, upsertErr := o.store.UpsertMovie(ctx, movieFromRecord(record)); upsertErr != nil {
			failed++
			o.observe(OutcomeFailed)
			logger.Error("failed to save movie",
				logging.Int64("tmdb_id", record.TMDBID),
				logging.String("title", record.Title),
				logging.Error(upsertErr))
		} else {
			processed++
			o.observe(OutcomeUpserted)
		}
		if err := o.store.UpdateSyncProgress(ctx, job.ID, processed, failed); err != nil {
			logger.Warn("sync progress update failed", logging.Error(err))
		}
	}

	// Finalize even when shutdown cancelled ctx.
	finalCtx := context.WithoutCancel(ctx)
	status, message := store.SyncCompleted, ""
	if fatal != nil {
		status, message = store.SyncFailed, fatal.Error()
	}
	if err := o.store.FinishSyncJob(finalCtx, job.ID, status, processed, failed, message); err != nil {
		logging.ErrorWithContext(logger, "sync job finalize failed", "sync_finalize_failed", logging.Error(err))
		return err
	}

	attrs := []logging.Attr{
		logging.String("status", string(status)),
		logging.Int("processed", processed),
		logging.Int("failed", failed),
		logging.Duration("duration", o.now().Sub(start)),
	}
	if fatal != nil {
		logging.ErrorWithContext(logger, "sync job failed", "sync_failed",
			append(attrs, logging.Error(fatal), logging.String("outcome", services.Classify(fatal).String()))...)
		return nil
	}
	logger.Info("sync job completed", logging.Args(attrs...)...)
	return nil
}

func (o *Orchestrator) observe(outcome string) {
	if o.observer != nil {
		o.observer.ObserveIngested(outcome)
	}
}

func movieFromRecord(rec tmdb.Record) *store.Movie {
	movie := &store.Movie{
		TMDBID:           rec.TMDBID,
		Title:            rec.Title,
		OriginalTitle:    rec.OriginalTitle,
		Language:         rec.Language,
		OriginalLanguage: rec.OriginalLanguage,
		Genres:           rec.Genres,
		Runtime:          rec.Runtime,
		Overview:         rec.Overview,
		PosterURL:        rec.PosterURL,
		BackdropURL:      rec.BackdropURL,
		VoteAverage:      rec.VoteAverage,
		VoteCount:        rec.VoteCount,
		Author:           rec.Author,
	}
	if !rec.ReleaseDate.IsZero() {
		released := rec.ReleaseDate
		movie.ReleaseDate = &released
	}
	return movie
}

// RetrySweep re-enqueues failed jobs whose backoff has elapsed and returns
// how many were scheduled.
func (o *Orchestrator) RetrySweep(ctx context.Context) (int, error) {
	candidates, err := o.store.RetryCandidates(ctx, o.maxAttempts)
	if err != nil {
		return 0, err
	}
	now := o.now()
	scheduled := 0
	for _, job := range candidates {
		if !RetryDue(job.LastAttempt, job.Attempts, now) {
			continue
		}
		retry := &store.SyncJob{
			ID:         o.newID(),
			JobKey:     job.JobKey,
			Year:       job.Year,
			Language:   job.Language,
			MaxResults: job.MaxResults,
			Priority:   job.Priority + 1,
			Attempts:   job.Attempts + 1,
		}
		if err := o.store.ScheduleRetry(ctx, job.ID, retry); err != nil {
			if errors.Is(err, services.ErrConcurrencyConflict) {
				o.logger.Error("sync retry already scheduled", logging.String(logging.FieldJobID, job.ID), logging.Error(err))
				continue
			}
			return scheduled, err
		}
		scheduled++
		o.logger.Info("sync job retry scheduled",
			logging.String(logging.FieldJobID, retry.ID),
			logging.String("retry_of", job.ID),
			logging.Int("attempts", retry.Attempts),
			logging.Int("priority", retry.Priority))
	}
	return scheduled, nil
}

// RunRetrySweeps runs RetrySweep on the configured interval until ctx ends.
func (o *Orchestrator) RunRetrySweeps(ctx context.Context) {
	ticker := time.NewTicker(o.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.RetrySweep(ctx); err != nil && ctx.Err() == nil {
				o.logger.Warn("sync retry sweep failed", logging.Error(err))
			}
		}
	}
}
