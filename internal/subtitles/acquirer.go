package subtitles

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"cinelex/internal/blobstore"
	"cinelex/internal/logging"
	"cinelex/internal/services"
	"cinelex/internal/store"
	"cinelex/internal/subtitles/opensubtitles"
)

const (
	// SourceOpenSubtitles is recorded on every subtitle fetched from OpenSubtitles.
	SourceOpenSubtitles = "opensubtitles"
	// SourceUpload is recorded on subtitles supplied through the API.
	SourceUpload = "upload"

	maxVersionLength = 50
	missingPageSize  = 50
	defaultFormat    = "srt"
)

// Acquisition outcomes reported to an Observer.
const (
	OutcomeStored      = "stored"
	OutcomeDuplicate   = "duplicate"
	OutcomeNoCandidate = "no_candidate"
	OutcomeFailed      = "failed"
)

var supportedFormats = map[string]bool{"srt": true, "vtt": true, "ass": true, "ssa": true}

// Source finds and downloads subtitle files.
type Source interface {
	Search(ctx context.Context, req opensubtitles.SearchRequest) (opensubtitles.SearchResponse, error)
	Download(ctx context.Context, fileID int64, opts opensubtitles.DownloadOptions) (opensubtitles.DownloadResult, error)
}

// Observer receives per-movie acquisition outcomes.
type Observer interface {
	ObserveAcquired(outcome string)
}

// Stats summarizes one AcquireMissing run.
type Stats struct {
	Attempted        int       `json:"total_attempted"`
	Successful       int       `json:"successful"`
	Failed           int       `json:"failed"`
	NoSubtitlesFound int       `json:"no_subtitles_found"`
	Duplicates       int       `json:"duplicates"`
	QuotaExhausted   bool      `json:"quota_exhausted"`
	StartedAt        time.Time `json:"started_at"`
	CompletedAt      time.Time `json:"completed_at"`
}

// Acquirer downloads subtitles for movies that lack one.
type Acquirer struct {
	store    *store.Store
	source   Source
	blobs    blobstore.Store
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
}

// Option configures an Acquirer.
type Option func(*Acquirer)

// WithObserver reports outcomes to o.
func WithObserver(o Observer) Option {
	return func(a *Acquirer) { a.observer = o }
}

// WithClock overrides the clock used for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Acquirer) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAcquirer wires the store, subtitle source, and blob store together.
func NewAcquirer(st *store.Store, source Source, blobs blobstore.Store, logger *slog.Logger, opts ...Option) *Acquirer {
	a := &Acquirer{
		store:  st,
		source: source,
		blobs:  blobs,
		logger: logging.NewComponentLogger(logger, "acquirer"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AcquireMissing walks movies without an active subtitle in language, newest
// release first, until maxDownloads subtitles are stored or the list is
// exhausted. It stops early, without an error, when the download quota runs
// out; Stats.QuotaExhausted reports that case.
func (a *Acquirer) AcquireMissing(ctx context.Context, language string, maxDownloads int) (stats Stats, err error) {
	language = strings.ToLower(strings.TrimSpace(language))
	stats.StartedAt = a.now()
	if language == "" {
		return stats, fmt.Errorf("%w: language is required", services.ErrValidation)
	}
	if maxDownloads <= 0 {
		return stats, fmt.Errorf("%w: max downloads must be positive", services.ErrValidation)
	}
	ctx = services.WithStage(ctx, "acquire")
	logger := logging.WithContext(ctx, a.logger)
	logger.Info("subtitle acquisition started",
		logging.String("language", language),
		logging.Int("target_downloads", maxDownloads))

	defer func() {
		stats.CompletedAt = a.now()
		logger.Info("subtitle acquisition finished",
			logging.Int("successful", stats.Successful),
			logging.Int("failed", stats.Failed),
			logging.Int("no_subtitles", stats.NoSubtitlesFound),
			logging.Int("total_attempted", stats.Attempted),
			logging.Bool("quota_exhausted", stats.QuotaExhausted),
			logging.Duration("duration", stats.CompletedAt.Sub(stats.StartedAt)))
	}()

	var cursor *store.MissingCursor
	for {
		movies, next, err := a.store.MoviesMissingSubtitles(ctx, language, missingPageSize, cursor)
		if err != nil {
			return stats, err
		}
		for _, movie := range movies {
			if stats.Successful >= maxDownloads {
				return stats, nil
			}
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			stats.Attempted++
			created, err := a.acquire(ctx, movie, language)
			switch {
			case err == nil && created:
				stats.Successful++
				a.observe(OutcomeStored)
			case err == nil:
				stats.Duplicates++
				a.observe(OutcomeDuplicate)
			case errors.Is(err, services.ErrQuotaExhausted):
				stats.QuotaExhausted = true
				logging.WarnWithContext(logger, "download quota exhausted, stopping acquisition", "subtitle_quota_exhausted",
					logging.Int64("movie_id", movie.ID),
					logging.Int("successful", stats.Successful),
					logging.String(logging.FieldImpact, "remaining movies wait for the next quota window"),
					logging.String(logging.FieldErrorHint, "quota resets daily; raise the account tier for more downloads"))
				return stats, nil
			case errors.Is(err, services.ErrEmptyCandidateSet):
				stats.Failed++
				stats.NoSubtitlesFound++
				a.observe(OutcomeNoCandidate)
				logger.Debug("no usable subtitle found",
					logging.Int64("movie_id", movie.ID),
					logging.Int64("tmdb_id", movie.TMDBID))
			case services.Classify(err) == services.OutcomeTerminal:
				stats.Failed++
				a.observe(OutcomeFailed)
				return stats, err
			default:
				stats.Failed++
				a.observe(OutcomeFailed)
				logging.WarnWithContext(logger, "subtitle acquisition failed for movie", "subtitle_acquire_failed",
					logging.Int64("movie_id", movie.ID),
					logging.Int64("tmdb_id", movie.TMDBID),
					logging.Error(err),
					logging.String(logging.FieldImpact, "movie remains without subtitles"))
			}
		}
		if next == nil || stats.Successful >= maxDownloads {
			return stats, nil
		}
		cursor = next
	}
}

func (a *Acquirer) observe(outcome string) {
	if a.observer != nil {
		a.observer.ObserveAcquired(outcome)
	}
}

// acquire searches, selects, downloads, and stores one subtitle. created is
// false when an identical active subtitle already existed.
func (a *Acquirer) acquire(ctx context.Context, movie store.Movie, language string) (bool, error) {
	resp, err := a.source.Search(ctx, opensubtitles.SearchRequest{
		TMDBID:    movie.TMDBID,
		Languages: []string{language},
	})
	if err != nil {
		return false, err
	}
	best, score, err := SelectBest(resp.Candidates)
	if err != nil {
		return false, err
	}
	payload, err := a.source.Download(ctx, best.FileID, opensubtitles.DownloadOptions{})
	if err != nil {
		return false, err
	}
	if len(payload.Data) == 0 {
		return false, services.Wrap(services.ErrValidation, "subtitles", "download", "empty subtitle payload", nil)
	}
	if payload.FileName == "" {
		payload.FileName = best.FileName
	}
	_, created, err := a.Store(ctx, movie, language, best, payload)
	if err != nil {
		return false, err
	}
	if created {
		a.logger.Info("subtitle stored",
			logging.Int64("movie_id", movie.ID),
			logging.Int64("file_id", best.FileID),
			logging.Float64("score", score),
			logging.Int("remaining_downloads", payload.Remaining))
	}
	return created, nil
}

// Store persists a downloaded subtitle: the bytes go to the blob store under
// media/{movie_id}/subtitles/{language}/{version}_{hash}.{format} and a
// PENDING row is inserted. An identical active subtitle is returned as-is
// with created=false and no blob write.
func (a *Acquirer) Store(ctx context.Context, movie store.Movie, language string, candidate opensubtitles.Candidate, payload opensubtitles.DownloadResult) (*store.Subtitle, bool, error) {
	metadata, err := json.Marshal(candidate)
	if err != nil {
		return nil, false, fmt.Errorf("encode subtitle metadata: %w", err)
	}
	quality := StorageQuality(candidate)
	return a.save(ctx, movie, payload.Data, store.Subtitle{
		Language:     language,
		Source:       SourceOpenSubtitles,
		Format:       FormatFromFileName(payload.FileName),
		Version:      Version(candidate.Release),
		QualityScore: &quality,
		MetadataJSON: string(metadata),
	})
}

type uploadMetadata struct {
	FileName   string    `json:"file_name"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Upload stores a subtitle supplied by hand. The file name must carry a
// supported extension. Once a new row is stored, every other active subtitle
// of the movie in language is deactivated.
func (a *Acquirer) Upload(ctx context.Context, movie store.Movie, language, fileName string, data []byte) (*store.Subtitle, bool, error) {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		return nil, false, fmt.Errorf("%w: language is required", services.ErrValidation)
	}
	format, ok := ParseFormat(fileName)
	if !ok {
		return nil, false, fmt.Errorf("%w: unsupported subtitle format %q", services.ErrValidation, path.Ext(fileName))
	}
	if len(data) == 0 {
		return nil, false, fmt.Errorf("%w: subtitle file is empty", services.ErrValidation)
	}
	if !utf8.Valid(data) {
		return nil, false, fmt.Errorf("%w: subtitle file is not UTF-8", services.ErrValidation)
	}
	base := path.Base(strings.TrimSpace(fileName))
	metadata, err := json.Marshal(uploadMetadata{FileName: base, UploadedAt: a.now().UTC()})
	if err != nil {
		return nil, false, fmt.Errorf("encode subtitle metadata: %w", err)
	}
	sub, created, err := a.save(ctx, movie, data, store.Subtitle{
		Language:     language,
		Source:       SourceUpload,
		Format:       format,
		Version:      Version(strings.TrimSuffix(base, path.Ext(base))),
		MetadataJSON: string(metadata),
	})
	if err != nil || !created {
		return sub, created, err
	}
	if err := a.retire(ctx, movie.ID, language, sub.ID); err != nil {
		return sub, created, err
	}
	a.logger.Info("subtitle uploaded",
		logging.Int64("movie_id", movie.ID),
		logging.Int64("subtitle_id", sub.ID),
		logging.String("language", language),
		logging.String("format", format))
	return sub, created, nil
}

// retire deactivates the active subtitles of a movie in language other than keep.
func (a *Acquirer) retire(ctx context.Context, movieID int64, language string, keep int64) error {
	subs, err := a.store.ListSubtitles(ctx, movieID)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if sub.ID == keep || !sub.IsActive || sub.Language != language {
			continue
		}
		if err := a.store.DeactivateSubtitle(ctx, sub.ID); err != nil {
			return err
		}
		a.logger.Debug("subtitle replaced",
			logging.Int64("movie_id", movieID),
			logging.Int64("subtitle_id", sub.ID),
			logging.Int64("replacement_id", keep))
	}
	return nil
}

// save writes data to the blob store and inserts row. It returns an identical
// active subtitle untouched with created=false.
func (a *Acquirer) save(ctx context.Context, movie store.Movie, data []byte, row store.Subtitle) (*store.Subtitle, bool, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	existing, err := a.store.FindActiveSubtitle(ctx, movie.ID, row.Language, hash)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, services.ErrNotFound) {
		return nil, false, err
	}

	key := StoragePath(movie.ID, row.Language, row.Version, hash, row.Format)
	if err := a.blobs.Put(ctx, key, data); err != nil {
		return nil, false, fmt.Errorf("store subtitle bytes: %w", err)
	}

	row.MovieID = movie.ID
	row.ContentHash = hash
	row.StoragePath = key
	sub, created, err := a.store.InsertSubtitle(ctx, &row)
	if err != nil {
		return nil, false, err
	}
	if !created && sub.StoragePath != key {
		// A concurrent acquirer stored the same bytes under another key.
		if err := a.blobs.Delete(ctx, key); err != nil {
			a.logger.Debug("orphan subtitle blob not removed", logging.String("key", key), logging.Error(err))
		}
	}
	return sub, created, nil
}

// Version derives the stored version label from a release name, capped at
// 50 characters.
func Version(release string) string {
	release = strings.TrimSpace(release)
	if utf8.RuneCountInString(release) <= maxVersionLength {
		return release
	}
	return string([]rune(release)[:maxVersionLength])
}

// FormatFromFileName maps a file extension onto a supported subtitle format,
// defaulting to srt.
func FormatFromFileName(name string) string {
	if format, ok := ParseFormat(name); ok {
		return format
	}
	return defaultFormat
}

// ParseFormat reports the subtitle format named by the file extension and
// whether it is supported.
func ParseFormat(name string) (string, bool) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(strings.TrimSpace(name)), "."))
	return ext, supportedFormats[ext]
}

// StoragePath builds the blob key for a subtitle.
func StoragePath(movieID int64, language, version, hash, format string) string {
	label := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\':
			return '_'
		}
		return r
	}, version)
	if strings.Trim(label, ". ") == "" {
		label = "default"
	}
	return fmt.Sprintf("media/%d/subtitles/%s/%s_%s.%s", movieID, language, label, hash, format)
}
