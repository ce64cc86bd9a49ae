package processing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"cinelex/internal/analysis"
	"cinelex/internal/blobstore"
	"cinelex/internal/config"
	"cinelex/internal/logging"
	"cinelex/internal/services"
	"cinelex/internal/store"
)

const defaultBatchSize = 30

// Item outcomes reported to an Observer.
const (
	OutcomeProcessed = "processed"
	OutcomeFailed    = "failed"
)

// Claimer is the work-claiming contract of the subtitle queue.
type Claimer interface {
	ClaimBatch(ctx context.Context, limit int, now time.Time) ([]store.WorkItem, error)
	Complete(ctx context.Context, id int64) error
	Fail(ctx context.Context, id int64, reason string) error
}

// ResultStore persists analysis output.
type ResultStore interface {
	SaveAnalysis(ctx context.Context, result *store.AnalysisResult, difficulty *float64) error
}

// Observer receives queue activity.
type Observer interface {
	ObserveClaimed(items int)
	ObserveItem(outcome string)
}

// Stats summarizes one Run.
type Stats struct {
	Batches   int `json:"batches"`
	Claimed   int `json:"claimed"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Driver runs claimed subtitles through a TextAnalyzer.
type Driver struct {
	claimer    Claimer
	blobs      blobstore.Store
	analyzer   analysis.TextAnalyzer
	results    ResultStore
	batchSize  int
	maxBatches int
	maxItems   int
	logger     *slog.Logger
	observer   Observer
	now        func() time.Time
}

// Option configures a Driver.
type Option func(*Driver)

// WithObserver reports claims and outcomes to o.
func WithObserver(o Observer) Option {
	return func(d *Driver) { d.observer = o }
}

// WithClock overrides the claim clock.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDriver builds a driver from processing settings. Zero max_batches or
// max_items means unlimited.
func NewDriver(claimer Claimer, blobs blobstore.Store, analyzer analysis.TextAnalyzer, results ResultStore, cfg config.Processing, logger *slog.Logger, opts ...Option) *Driver {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	d := &Driver{
		claimer:    claimer,
		blobs:      blobs,
		analyzer:   analyzer,
		results:    results,
		batchSize:  batchSize,
		maxBatches: max(cfg.MaxBatches, 0),
		maxItems:   max(cfg.MaxItems, 0),
		logger:     logging.NewComponentLogger(logger, "processing"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run claims and processes batches until the queue is empty or a ceiling is
// reached. Per-item failures are recorded on the item and do not stop the run.
func (d *Driver) Run(ctx context.Context) (Stats, error) {
	ctx = services.WithStage(ctx, "process")
	logger := logging.WithContext(ctx, d.logger)
	var stats Stats
	for {
		if d.maxBatches > 0 && stats.Batches >= d.maxBatches {
			break
		}
		limit := d.batchSize
		if d.maxItems > 0 {
			remaining := d.maxItems - stats.Claimed
			if remaining <= 0 {
				break
			}
			limit = min(limit, remaining)
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		items, err := d.claimer.ClaimBatch(ctx, limit, d.now())
		if err != nil {
			return stats, fmt.Errorf("claim batch: %w", err)
		}
		if len(items) == 0 {
			break
		}
		stats.Batches++
		stats.Claimed += len(items)
		if d.observer != nil {
			d.observer.ObserveClaimed(len(items))
		}
		logger.Debug("batch claimed", logging.Int("items", len(items)), logging.Int("batch", stats.Batches))

		for _, item := range items {
			if d.handle(ctx, item) {
				stats.Processed++
			} else {
				stats.Failed++
			}
		}
	}
	logger.Info("processing run finished",
		logging.String(logging.FieldEventType, "processing_complete"),
		logging.Int("batches", stats.Batches),
		logging.Int("processed", stats.Processed),
		logging.Int("failed", stats.Failed))
	return stats, nil
}

// handle processes one item and always finalizes it.
func (d *Driver) handle(ctx context.Context, item store.WorkItem) bool {
	itemCtx := services.WithItemID(ctx, strconv.FormatInt(item.ID, 10))
	logger := logging.WithContext(itemCtx, d.logger)
	finalizeCtx := context.WithoutCancel(itemCtx)

	err := d.Process(itemCtx, item)
	if err == nil {
		if cerr := d.claimer.Complete(finalizeCtx, item.ID); cerr != nil {
			d.logFinalizeError(logger, item, cerr)
		}
		d.observe(OutcomeProcessed)
		logger.Debug("subtitle processed", logging.Int64("movie_id", item.MovieID))
		return true
	}

	reason := strings.TrimSpace(err.Error())
	if reason == "" {
		reason = "processing failed"
	}
	if ferr := d.claimer.Fail(finalizeCtx, item.ID, reason); ferr != nil {
		d.logFinalizeError(logger, item, ferr)
	}
	d.observe(OutcomeFailed)
	logging.WarnWithContext(logger, "subtitle processing failed", "processing_failure",
		logging.Int64("movie_id", item.MovieID),
		logging.Int("attempts", item.ProcessingAttempts),
		logging.Error(err),
		logging.String(logging.FieldImpact, "subtitle will be retried until its attempt limit"))
	return false
}

func (d *Driver) logFinalizeError(logger *slog.Logger, item store.WorkItem, err error) {
	if errors.Is(err, services.ErrConcurrencyConflict) {
		logging.ErrorWithContext(logger, "claimed subtitle changed state during processing", "processing_conflict",
			logging.Int64("subtitle_id", item.ID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "another worker may have reclaimed a stale item"),
			logging.String(logging.FieldErrorHint, "raise processing.stale_timeout above the longest analysis time"))
		return
	}
	logger.Error("failed to finalize subtitle", logging.Int64("subtitle_id", item.ID), logging.Error(err))
}

func (d *Driver) observe(outcome string) {
	if d.observer != nil {
		d.observer.ObserveItem(outcome)
	}
}

// Process fetches, decodes, analyzes, and persists one subtitle. It does not
// change the item's queue state.
func (d *Driver) Process(ctx context.Context, item store.WorkItem) error {
	data, err := d.blobs.Get(ctx, item.StoragePath)
	if err != nil {
		return fmt.Errorf("fetch subtitle %s: %w", item.StoragePath, err)
	}
	text, err := decodeText(data)
	if err != nil {
		return err
	}
	profile, err := d.analyzer.Analyze(ctx, text)
	if err != nil {
		return fmt.Errorf("analyze subtitle: %w", err)
	}
	encoded, err := analysis.Encode(profile)
	if err != nil {
		return err
	}
	subtitleID := item.ID
	result := &store.AnalysisResult{
		MovieID:         item.MovieID,
		SubtitleID:      &subtitleID,
		SubtitleVersion: item.Version,
		Kind:            store.KindMovie,
		AnalysisVersion: profile.AnalysisVersion,
		ProfileJSON:     string(encoded),
	}
	if err := d.results.SaveAnalysis(ctx, result, profile.Difficulty); err != nil {
		return fmt.Errorf("persist analysis: %w", err)
	}
	return nil
}

// decodeText reads subtitle bytes as UTF-8, replacing invalid sequences.
func decodeText(data []byte) (string, error) {
	text := strings.TrimPrefix(string(data), "\ufeff")
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "\ufffd")
	}
	if strings.TrimSpace(text) == "" {
		return "", services.Wrap(services.ErrValidation, "processing", "decode", "subtitle is empty", nil)
	}
	return text, nil
}
