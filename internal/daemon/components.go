package daemon

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"cinelex/internal/analysis"
	"cinelex/internal/blobstore"
	"cinelex/internal/catalog/tmdb"
	"cinelex/internal/config"
	"cinelex/internal/logging"
	"cinelex/internal/metrics"
	"cinelex/internal/processing"
	"cinelex/internal/ratelimit"
	"cinelex/internal/search"
	"cinelex/internal/services"
	"cinelex/internal/store"
	"cinelex/internal/subtitles"
	"cinelex/internal/subtitles/opensubtitles"
	"cinelex/internal/syncer"
)

// Components holds the wired pipelines shared by the daemon and the CLI.
type Components struct {
	Config  *config.Config
	Logger  *slog.Logger
	Store   *store.Store
	Blobs   blobstore.Store
	Metrics *metrics.Metrics

	TMDB          *tmdb.Client
	OpenSubtitles *opensubtitles.Client

	Syncer   *syncer.Orchestrator
	Acquirer *subtitles.Acquirer
	Analyzer analysis.TextAnalyzer
	Queue    *store.WorkQueue
	Search   *search.Engine
}

// Wire builds every component from cfg. Acquirer and OpenSubtitles stay nil
// when OpenSubtitles is disabled.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "wire", "config is required", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	m := metrics.New()

	st, err := store.Open(cfg)
	if err != nil {
		return nil, err
	}
	c := &Components{Config: cfg, Logger: logger, Store: st, Metrics: m}

	if c.Blobs, err = blobstore.New(ctx, cfg, logger); err != nil {
		_ = st.Close()
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "wire", "byte store", err)
	}

	limiter := ratelimit.New("tmdb", cfg.TMDB.RequestsPerSecond, ratelimit.WithObserver(m))
	if c.TMDB, err = tmdb.New(cfg.TMDB, tmdb.WithLogger(logger), tmdb.WithLimiter(limiter)); err != nil {
		_ = st.Close()
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "wire", "tmdb client", err)
	}
	c.Syncer = syncer.New(st, c.TMDB, cfg.Sync, logger, syncer.WithObserver(m))

	if cfg.OpenSubtitles.Enabled {
		c.OpenSubtitles, err = opensubtitles.New(cfg.OpenSubtitles,
			opensubtitles.WithLogger(logger),
			opensubtitles.WithLimiterOptions(ratelimit.WithObserver(m)))
		if err != nil {
			_ = st.Close()
			return nil, services.Wrap(services.ErrConfiguration, "daemon", "wire", "opensubtitles client", err)
		}
		c.Acquirer = subtitles.NewAcquirer(st, c.OpenSubtitles, c.Blobs, logger, subtitles.WithObserver(m))
	}

	var analyzerOpts []analysis.LexicalOption
	if path := strings.TrimSpace(cfg.Processing.DifficultyTable); path != "" {
		table, err := analysis.LoadDifficultyTable(path)
		if err != nil {
			_ = st.Close()
			return nil, services.Wrap(services.ErrConfiguration, "daemon", "wire", "difficulty table", err)
		}
		analyzerOpts = append(analyzerOpts, analysis.WithDifficultyTable(table))
	}
	c.Analyzer = analysis.NewLexicalAnalyzer(analyzerOpts...)
	c.Queue = store.NewWorkQueue(st, cfg.Processing.MaxAttempts, time.Duration(cfg.Processing.StaleTimeout)*time.Second)
	c.Search = search.NewEngine(st, logger, search.WithObserver(m))
	return c, nil
}

// ErrAcquisitionDisabled is returned when acquisition is requested without an
// OpenSubtitles client.
var ErrAcquisitionDisabled = services.Wrap(services.ErrConfiguration, "subtitles", "acquire", "opensubtitles is disabled", nil)

// ErrAcquisitionRunning rejects an acquisition request while a pass is in flight.
var ErrAcquisitionRunning = services.Wrap(services.ErrConcurrencyConflict, "subtitles", "acquire", "an acquisition pass is already running", nil)

// Acquire runs one acquisition pass.
func (c *Components) Acquire(ctx context.Context, language string, maxDownloads int) (subtitles.Stats, error) {
	if c.Acquirer == nil {
		return subtitles.Stats{}, ErrAcquisitionDisabled
	}
	if strings.TrimSpace(language) == "" {
		language = c.Config.Acquisition.Language
	}
	if maxDownloads <= 0 {
		maxDownloads = c.Config.Acquisition.MaxDownloads
	}
	return c.Acquirer.AcquireMissing(ctx, language, maxDownloads)
}

// UploadSubtitle stores a hand-supplied subtitle for a movie. An empty
// language falls back to acquisition.language. Uploads work without
// OpenSubtitles.
func (c *Components) UploadSubtitle(ctx context.Context, movieID int64, language, fileName string, data []byte) (*store.Subtitle, bool, error) {
	movie, err := c.Store.GetMovie(ctx, movieID)
	if err != nil {
		return nil, false, err
	}
	if strings.TrimSpace(language) == "" {
		language = c.Config.Acquisition.Language
	}
	acq := c.Acquirer
	if acq == nil {
		acq = subtitles.NewAcquirer(c.Store, nil, c.Blobs, c.Logger)
	}
	return acq.Upload(ctx, *movie, language, fileName, data)
}

// EnqueueSync validates req and inserts one sync job per requested year.
func (c *Components) EnqueueSync(ctx context.Context, req SyncRequest) ([]string, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Year == 0 {
		return c.Syncer.EnqueueRange(ctx, req.StartYear, req.EndYear, req.Language, req.maxResults(), req.Priority)
	}
	id, err := c.Syncer.EnqueueSingle(ctx, req.Year, req.Language, req.maxResults(), req.Priority)
	if err != nil {
		return nil, err
	}
	return []string{id}, nil
}

// NewDriver returns a processing driver using settings.
func (c *Components) NewDriver(settings config.Processing) *processing.Driver {
	return processing.NewDriver(c.Queue, c.Blobs, c.Analyzer, c.Store, settings, c.Logger,
		processing.WithObserver(c.Metrics))
}

// Budgets snapshots every external-API limiter.
func (c *Components) Budgets() []ratelimit.Budget {
	var budgets []ratelimit.Budget
	if c.TMDB != nil {
		budgets = append(budgets, c.TMDB.Limiter().Snapshot())
	}
	if c.OpenSubtitles != nil {
		for _, l := range c.OpenSubtitles.Limiters() {
			budgets = append(budgets, l.Snapshot())
		}
	}
	return budgets
}

// Close releases the store.
func (c *Components) Close() error {
	if c == nil || c.Store == nil {
		return nil
	}
	return c.Store.Close()
}
