package store

import "time"

// SyncStatus is the lifecycle state of a sync job.
type SyncStatus string

const (
	SyncPending    SyncStatus = "PENDING"
	SyncInProgress SyncStatus = "IN_PROGRESS"
	SyncCompleted  SyncStatus = "COMPLETED"
	SyncFailed     SyncStatus = "FAILED"
)

// ProcessingStatus is the analysis state of a subtitle.
type ProcessingStatus string

const (
	ProcessingPending    ProcessingStatus = "PENDING"
	ProcessingInProgress ProcessingStatus = "PROCESSING"
	ProcessingDone       ProcessingStatus = "PROCESSED"
	ProcessingFailed     ProcessingStatus = "FAILED"
)

// AnalysisKind names the media an analysis describes.
type AnalysisKind string

const (
	KindMovie AnalysisKind = "movie"
	KindBook  AnalysisKind = "book"
	KindSong  AnalysisKind = "song"
)

// Valid reports whether k is a known kind.
func (k AnalysisKind) Valid() bool {
	switch k {
	case KindMovie, KindBook, KindSong:
		return true
	default:
		return false
	}
}

// Movie is an ingested catalog entry.
type Movie struct {
	ID               int64      `json:"id"`
	TMDBID           int64      `json:"tmdb_id"`
	Title            string     `json:"title"`
	OriginalTitle    string     `json:"original_title"`
	Language         string     `json:"language"`
	OriginalLanguage string     `json:"original_language"`
	ReleaseDate      *time.Time `json:"release_date,omitempty"`
	Genres           []string   `json:"genres"`
	Runtime          *int       `json:"runtime,omitempty"`
	Overview         string     `json:"overview"`
	PosterURL        string     `json:"poster_url"`
	BackdropURL      string     `json:"backdrop_url"`
	VoteAverage      float64    `json:"vote_average"`
	VoteCount        int        `json:"vote_count"`
	Author           string     `json:"author"`
	Difficulty       *float64   `json:"difficulty,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// SyncJob tracks one year of catalog ingestion.
type SyncJob struct {
	ID             string     `json:"id"`
	JobKey         string     `json:"job_key"`
	Year           int        `json:"year"`
	Language       string     `json:"language"`
	MaxResults     int        `json:"max_results"`
	Status         SyncStatus `json:"status"`
	Priority       int        `json:"priority"`
	Attempts       int        `json:"attempts"`
	LastAttempt    *time.Time `json:"last_attempt,omitempty"`
	ProcessedCount int        `json:"processed_count"`
	FailedCount    int        `json:"failed_count"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	RetryOf        string     `json:"retry_of,omitempty"`
	Superseded     bool       `json:"superseded"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// SyncJobFilter narrows ListSyncJobs.
type SyncJobFilter struct {
	Statuses []SyncStatus
	Year     int
	Limit    int
}

// Subtitle is a stored subtitle file and the analysis work item derived from it.
type Subtitle struct {
	ID                    int64            `json:"id"`
	MovieID               int64            `json:"movie_id"`
	Language              string           `json:"language"`
	Source                string           `json:"source"`
	Format                string           `json:"format"`
	Version               string           `json:"version"`
	ContentHash           string           `json:"content_hash"`
	StoragePath           string           `json:"storage_path"`
	QualityScore          *float64         `json:"quality_score,omitempty"`
	MetadataJSON          string           `json:"metadata"`
	IsActive              bool             `json:"is_active"`
	ProcessingStatus      ProcessingStatus `json:"processing_status"`
	ProcessingAttempts    int              `json:"processing_attempts"`
	LastProcessingAttempt *time.Time       `json:"last_processing_attempt,omitempty"`
	ProcessingError       string           `json:"processing_error,omitempty"`
	ProcessedAt           *time.Time       `json:"processed_at,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
}

// AnalysisResult is a persisted linguistic profile.
type AnalysisResult struct {
	ID              int64        `json:"id"`
	MovieID         int64        `json:"movie_id"`
	SubtitleID      *int64       `json:"subtitle_id,omitempty"`
	SubtitleVersion string       `json:"subtitle_version"`
	Kind            AnalysisKind `json:"kind"`
	AnalysisVersion string       `json:"analysis_version"`
	ProfileJSON     string       `json:"-"`
	IsLatest        bool         `json:"is_latest"`
	CreatedAt       time.Time    `json:"created_at"`
}

// SearchRow is the projection of a movie used by the search engine.
type SearchRow struct {
	MovieID     int64
	Title       string
	ReleaseDate *time.Time
	VoteCount   int
	Author      string
	Difficulty  *float64
	PosterURL   string
	Genres      []string
}

// MissingPage is one page of movies lacking an active subtitle.
type MissingPage struct {
	Movies   []Movie `json:"movies"`
	Total    int     `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
}

// Summary aggregates row counts for status output.
type Summary struct {
	Movies    int                      `json:"movies"`
	SyncJobs  map[SyncStatus]int       `json:"sync_jobs"`
	Subtitles map[ProcessingStatus]int `json:"subtitles"`
	Analyses  int                      `json:"analyses"`
	DBPath    string                   `json:"db_path"`
}
