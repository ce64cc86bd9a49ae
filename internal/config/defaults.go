package config

// Storage backends.
const (
	StorageFilesystem = "filesystem"
	StorageS3         = "s3"
)

const (
	defaultConfigPath              = "~/.config/cinelex/config.toml"
	defaultDataDir                 = "~/.local/share/cinelex"
	defaultLogDir                  = "~/.local/share/cinelex/logs"
	defaultStorageRoot             = "~/.local/share/cinelex/blobs"
	defaultTMDBBaseURL             = "https://api.themoviedb.org/3"
	defaultTMDBImageBaseURL        = "https://image.tmdb.org/t/p/original"
	defaultTMDBLanguage            = "en-US"
	defaultTMDBRequestsPerSecond   = 40
	defaultTMDBMaxRetries          = 5
	defaultTMDBTimeoutSeconds      = 10
	defaultOpenSubtitlesBaseURL    = "https://api.opensubtitles.com/api/v1"
	defaultOpenSubtitlesUserAgent  = "cinelex v0.1"
	defaultOpenSubtitlesRPS        = 5
	defaultOpenSubtitlesMaxRetries = 5
	defaultOpenSubtitlesTimeout    = 45
	defaultSyncLanguage            = "en"
	defaultSyncMaxResults          = 100
	defaultSyncMaxAttempts         = 3
	defaultSyncPollInterval        = 5
	defaultSyncRetrySweepInterval  = 300
	defaultProcessingBatchSize     = 30
	defaultProcessingMaxAttempts   = 10
	defaultProcessingStaleTimeout  = 3600
	defaultProcessingInterval      = 60
	defaultAcquisitionLanguage     = "en"
	defaultAcquisitionMaxDownloads = 100
	defaultAcquisitionInterval     = 3600
	defaultAPIBind                 = "127.0.0.1:7490"
	defaultAPIJobWorkers           = 2
	defaultS3Region                = "us-east-1"
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		TMDB: TMDB{
			BaseURL:           defaultTMDBBaseURL,
			ImageBaseURL:      defaultTMDBImageBaseURL,
			Language:          defaultTMDBLanguage,
			RequestsPerSecond: defaultTMDBRequestsPerSecond,
			MaxRetries:        defaultTMDBMaxRetries,
			TimeoutSeconds:    defaultTMDBTimeoutSeconds,
		},
		OpenSubtitles: OpenSubtitles{
			UserAgent:         defaultOpenSubtitlesUserAgent,
			BaseURL:           defaultOpenSubtitlesBaseURL,
			RequestsPerSecond: defaultOpenSubtitlesRPS,
			MaxRetries:        defaultOpenSubtitlesMaxRetries,
			TimeoutSeconds:    defaultOpenSubtitlesTimeout,
		},
		Sync: Sync{
			DefaultLanguage:    defaultSyncLanguage,
			DefaultMaxResults:  defaultSyncMaxResults,
			MaxAttempts:        defaultSyncMaxAttempts,
			PollInterval:       defaultSyncPollInterval,
			RetrySweepInterval: defaultSyncRetrySweepInterval,
		},
		Processing: Processing{
			Enabled:      true,
			BatchSize:    defaultProcessingBatchSize,
			MaxAttempts:  defaultProcessingMaxAttempts,
			StaleTimeout: defaultProcessingStaleTimeout,
			Interval:     defaultProcessingInterval,
		},
		Acquisition: Acquisition{
			Language:     defaultAcquisitionLanguage,
			MaxDownloads: defaultAcquisitionMaxDownloads,
			Interval:     defaultAcquisitionInterval,
		},
		Storage: Storage{
			Backend: StorageFilesystem,
			Root:    defaultStorageRoot,
			S3: S3{
				Region: defaultS3Region,
			},
		},
		API: API{
			Bind:       defaultAPIBind,
			JobWorkers: defaultAPIJobWorkers,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
