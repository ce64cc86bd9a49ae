package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"cinelex/internal/config"
	"cinelex/internal/jobs"
	"cinelex/internal/logging"
	"cinelex/internal/processing"
	"cinelex/internal/ratelimit"
	"cinelex/internal/store"
	"cinelex/internal/subtitles"
)

// Background job names.
const (
	JobAcquire = "acquire"
	JobProcess = "process"
)

const (
	acquireJobTimeout = 6 * time.Hour
	processJobTimeout = 2 * time.Hour
)

// ErrAlreadyRunning is returned when Start is called twice or another
// daemon holds the lock.
var ErrAlreadyRunning = errors.New("already running")

// Daemon owns the long-running lanes and the HTTP API.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	c      *Components
	pool   *jobs.Pool

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	acquiring atomic.Bool

	running   atomic.Bool
	startedAt time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
}

// Status is the daemon view served by /api/status and the status command.
type Status struct {
	Running            bool               `json:"running"`
	PID                int                `json:"pid"`
	StartedAt          *time.Time         `json:"started_at,omitempty"`
	LockPath           string             `json:"lock_path"`
	APIAddress         string             `json:"api_address,omitempty"`
	Lanes              map[string]bool    `json:"lanes"`
	Store              store.Summary      `json:"store"`
	Limiters           []ratelimit.Budget `json:"limiters"`
	RemainingDownloads *int               `json:"remaining_downloads,omitempty"`
}

// New constructs a daemon over wired components.
func New(c *Components) (*Daemon, error) {
	if c == nil || c.Config == nil || c.Store == nil {
		return nil, errors.New("daemon requires wired components")
	}
	logger := logging.NewComponentLogger(c.Logger, "daemon")
	d := &Daemon{
		cfg:      c.Config,
		logger:   logger,
		c:        c,
		pool:     jobs.NewPool(c.Config.API.JobWorkers, c.Logger, jobs.WithObserver(c.Metrics)),
		lockPath: c.Config.LockPath(),
		lock:     flock.New(c.Config.LockPath()),
	}
	d.api = newAPIServer(c.Config, d, c.Logger)
	return d, nil
}

// Start acquires the single-instance lock and launches every lane.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return fmt.Errorf("daemon %w", ErrAlreadyRunning)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another cinelex daemon is %w", ErrAlreadyRunning)
	}

	if err := d.c.Syncer.Recover(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("recover sync jobs: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.pool.Start(runCtx)

	d.goLane(func() { _ = d.c.Syncer.Run(runCtx) })
	d.goLane(func() { d.c.Syncer.RunRetrySweeps(runCtx) })
	if d.acquisitionLane() {
		interval := seconds(d.cfg.Acquisition.Interval)
		d.goLane(func() { d.every(runCtx, JobAcquire, interval, d.enqueueScheduledAcquisition) })
	}
	if d.cfg.Processing.Enabled {
		interval := seconds(d.cfg.Processing.Interval)
		d.goLane(func() { d.every(runCtx, JobProcess, interval, d.enqueueScheduledProcessing) })
	}

	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.wg.Wait()
		d.pool.Stop()
		_ = d.lock.Unlock()
		return err
	}

	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("cinelex daemon started",
		logging.String("lock", d.lockPath),
		logging.Bool("acquisition_lane", d.acquisitionLane()),
		logging.Bool("processing_lane", d.cfg.Processing.Enabled))
	return nil
}

// Stop cancels the lanes, drains the job pool, and releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.wg.Wait()
	d.pool.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("cinelex daemon stopped")
}

// Close stops the daemon and releases the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.c.Close()
}

func (d *Daemon) goLane(fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn()
	}()
}

func (d *Daemon) every(ctx context.Context, lane string, interval time.Duration, fn func() error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(); err != nil && !errors.Is(err, ErrAcquisitionRunning) {
				d.logger.Warn("scheduled lane run not queued", logging.String("lane", lane), logging.Error(err))
			}
		}
	}
}

func (d *Daemon) acquisitionLane() bool {
	return d.cfg.Acquisition.Enabled && d.c.Acquirer != nil
}

func (d *Daemon) enqueueScheduledAcquisition() error {
	_, err := d.EnqueueAcquisition("", 0)
	return err
}

func (d *Daemon) enqueueScheduledProcessing() error {
	_, err := d.EnqueueProcessing(ProcessRequest{})
	return err
}

// EnqueueAcquisition schedules an acquisition run. Empty language and
// non-positive maxDownloads select the configured defaults.
func (d *Daemon) EnqueueAcquisition(language string, maxDownloads int) (string, error) {
	if d.c.Acquirer == nil {
		return "", ErrAcquisitionDisabled
	}
	if d.acquiring.Load() {
		return "", ErrAcquisitionRunning
	}
	return d.pool.Enqueue(JobAcquire, func(ctx context.Context) (map[string]any, error) {
		if !d.acquiring.CompareAndSwap(false, true) {
			return nil, ErrAcquisitionRunning
		}
		defer d.acquiring.Store(false)
		stats, err := d.c.Acquire(ctx, language, maxDownloads)
		return acquisitionMetadata(stats), err
	}, acquireJobTimeout)
}

// ProcessRequest overrides processing ceilings for one run. Zero values keep
// the configured settings.
type ProcessRequest struct {
	BatchSize  int `json:"batch_size" validate:"gte=0,lte=1000"`
	MaxBatches int `json:"max_batches" validate:"gte=0"`
	MaxItems   int `json:"max_items" validate:"gte=0"`
}

// Settings overlays the positive fields of r on base.
func (r ProcessRequest) Settings(base config.Processing) config.Processing {
	if r.BatchSize > 0 {
		base.BatchSize = r.BatchSize
	}
	if r.MaxBatches > 0 {
		base.MaxBatches = r.MaxBatches
	}
	if r.MaxItems > 0 {
		base.MaxItems = r.MaxItems
	}
	return base
}

// EnqueueProcessing schedules a processing run.
func (d *Daemon) EnqueueProcessing(req ProcessRequest) (string, error) {
	settings := req.Settings(d.cfg.Processing)
	return d.pool.Enqueue(JobProcess, func(ctx context.Context) (map[string]any, error) {
		stats, err := d.c.NewDriver(settings).Run(ctx)
		return processingMetadata(stats), err
	}, processJobTimeout)
}

// Job returns a background job status.
func (d *Daemon) Job(id string) (jobs.Status, bool) {
	return d.pool.Status(id)
}

// Jobs lists remembered background jobs.
func (d *Daemon) Jobs() []jobs.Status {
	return d.pool.List()
}

// Status reports runtime and store state.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	summary, err := d.c.Store.Summary(ctx)
	if err != nil {
		return Status{}, err
	}
	running := d.running.Load()
	status := Status{
		Running:  running,
		PID:      os.Getpid(),
		LockPath: d.lockPath,
		Lanes: map[string]bool{
			"sync":        running,
			"retry_sweep": running,
			"acquisition": running && d.acquisitionLane(),
			"processing":  running && d.cfg.Processing.Enabled,
		},
		Store:    summary,
		Limiters: d.c.Budgets(),
	}
	if running {
		started := d.startedAt
		status.StartedAt = &started
		status.APIAddress = d.api.address()
	}
	if d.c.OpenSubtitles != nil {
		if remaining, ok := d.c.OpenSubtitles.RemainingDownloads(); ok {
			status.RemainingDownloads = &remaining
		}
	}
	return status, nil
}

func acquisitionMetadata(stats subtitles.Stats) map[string]any {
	return map[string]any{
		"total_attempted":    stats.Attempted,
		"successful":         stats.Successful,
		"failed":             stats.Failed,
		"no_subtitles_found": stats.NoSubtitlesFound,
		"duplicates":         stats.Duplicates,
		"quota_exhausted":    stats.QuotaExhausted,
	}
}

func processingMetadata(stats processing.Stats) map[string]any {
	return map[string]any{
		"batches":   stats.Batches,
		"claimed":   stats.Claimed,
		"processed": stats.Processed,
		"failed":    stats.Failed,
	}
}

func seconds(v int) time.Duration {
	if v <= 0 {
		return time.Minute
	}
	return time.Duration(v) * time.Second
}

// lockHeld reports whether another process holds the daemon lock at path.
func lockHeld(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	probe := flock.New(path)
	ok, err := probe.TryLock()
	if err != nil {
		return false
	}
	if ok {
		_ = probe.Unlock()
		return false
	}
	return true
}

// DaemonRunning reports whether a daemon currently holds cfg's lock.
func DaemonRunning(cfg *config.Config) bool {
	return lockHeld(cfg.LockPath())
}
