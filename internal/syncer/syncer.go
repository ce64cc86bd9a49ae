package syncer

import (
	"context"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"cinelex/internal/catalog/tmdb"
	"cinelex/internal/config"
	"cinelex/internal/logging"
	"cinelex/internal/services"
	"cinelex/internal/store"
)

// Source streams catalog records for one year.
type Source interface {
	Fetch(ctx context.Context, year int, language string, maxResults int) iter.Seq2[tmdb.Record, error]
}

// Observer receives per-record ingestion outcomes.
type Observer interface {
	ObserveIngested(outcome string)
}

// Record outcomes reported to the Observer.
const (
	OutcomeUpserted = "upserted"
	OutcomeFailed   = "failed"
)

// Orchestrator enqueues sync jobs and executes them against a Source.
type Orchestrator struct {
	store    *store.Store
	source   Source
	logger   *slog.Logger
	observer Observer

	defaultLanguage   string
	defaultMaxResults int
	maxAttempts       int
	pollInterval      time.Duration
	sweepInterval     time.Duration

	now   func() time.Time
	newID func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides uuid job ids.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// WithObserver reports ingestion outcomes.
func WithObserver(observer Observer) Option {
	return func(o *Orchestrator) { o.observer = observer }
}

// New constructs an orchestrator.
func New(st *store.Store, source Source, cfg config.Sync, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:             st,
		source:            source,
		logger:            logging.NewComponentLogger(logger, "syncer"),
		defaultLanguage:   cfg.DefaultLanguage,
		defaultMaxResults: cfg.DefaultMaxResults,
		maxAttempts:       cfg.MaxAttempts,
		pollInterval:      time.Duration(cfg.PollInterval) * time.Second,
		sweepInterval:     time.Duration(cfg.RetrySweepInterval) * time.Second,
		now:               time.Now,
		newID:             uuid.NewString,
	}
	if o.pollInterval <= 0 {
		o.pollInterval = 5 * time.Second
	}
	if o.sweepInterval <= 0 {
		o.sweepInterval = 5 * time.Minute
	}
	if o.maxAttempts <= 0 {
		o.maxAttempts = 3
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) language(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return o.defaultLanguage
	}
	return lang
}

// EnqueueSingle records one PENDING job for year and returns its id.
// A negative maxResults selects the configured default.
func (o *Orchestrator) EnqueueSingle(ctx context.Context, year int, language string, maxResults, priority int) (string, error) {
	if err := tmdb.ValidateYear(year, o.now()); err != nil {
		return "", err
	}
	if maxResults < 0 {
		maxResults = o.defaultMaxResults
	}
	return o.insert(ctx, year, o.language(language), maxResults, priority)
}

// EnqueueRange records one job per year from end down to start. The ids are
// returned in enqueue order, newest year first.
func (o *Orchestrator) EnqueueRange(ctx context.Context, start, end int, language string, maxResults, priority int) ([]string, error) {
	now := o.now()
	if err := validateRange(start, end, now); err != nil {
		return nil, err
	}
	if maxResults < 0 {
		maxResults = o.defaultMaxResults
	}
	language = o.language(language)
	plans := PlanRange(start, end, maxResults, priority, now)
	o.logger.Info("enqueueing year range",
		logging.Int("start_year", start),
		logging.Int("end_year", end),
		logging.Int("total_years", len(plans)),
		logging.Int("max_results", maxResults))

	ids := make([]string, 0, len(plans))
	for _, plan := range plans {
		id, err := o.insert(ctx, plan.Year, language, plan.MaxResults, plan.Priority)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (o *Orchestrator) insert(ctx context.Context, year int, language string, maxResults, priority int) (string, error) {
	job := &store.SyncJob{
		ID:         o.newID(),
		JobKey:     JobKey(year, language),
		Year:       year,
		Language:   language,
		MaxResults: maxResults,
		Status:     store.SyncPending,
		Priority:   priority,
	}
	if err := o.store.InsertSyncJob(ctx, job); err != nil {
		return "", services.Wrap(services.ErrRequest, "sync", "enqueue", "record sync job", err)
	}
	o.logger.Info("sync job enqueued",
		logging.String(logging.FieldJobID, job.ID),
		logging.Int("year", year),
		logging.Int("max_results", maxResults),
		logging.Int("priority", priority))
	return job.ID, nil
}

// Job returns one sync job.
func (o *Orchestrator) Job(ctx context.Context, id string) (*store.SyncJob, error) {
	return o.store.GetSyncJob(ctx, id)
}

// ListJobs returns sync jobs newest first.
func (o *Orchestrator) ListJobs(ctx context.Context, filter store.SyncJobFilter) ([]store.SyncJob, error) {
	return o.store.ListSyncJobs(ctx, filter)
}

// Recover fails jobs a previous process left IN_PROGRESS.
func (o *Orchestrator) Recover(ctx context.Context) error {
	n, err := o.store.FailInterruptedSyncJobs(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		logging.WarnWithContext(o.logger, "failed interrupted sync jobs", "sync_recovered",
			logging.Int64("count", n),
			logging.String(logging.FieldImpact, "jobs will be retried by the sweep"))
	}
	return nil
}
