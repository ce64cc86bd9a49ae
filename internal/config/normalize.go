package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.loadEnvFile(); err != nil {
		return err
	}
	c.normalizeTMDB()
	c.normalizeOpenSubtitles()
	c.normalizeSync()
	c.normalizeProcessing()
	c.normalizeAcquisition()
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.EnvFile, err = expandPath(strings.TrimSpace(c.Paths.EnvFile)); err != nil {
		return fmt.Errorf("paths.env_file: %w", err)
	}
	return nil
}

// loadEnvFile populates the process environment from an optional dotenv file.
// Variables already present in the environment are left untouched.
func (c *Config) loadEnvFile() error {
	if c.Paths.EnvFile == "" {
		return nil
	}
	if err := godotenv.Load(c.Paths.EnvFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("paths.env_file: %w", err)
	}
	return nil
}

// envOverride returns the trimmed environment value when set, or current otherwise.
func envOverride(current string, keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return strings.TrimSpace(current)
}

func (c *Config) normalizeTMDB() {
	c.TMDB.APIKey = envOverride(c.TMDB.APIKey, "TMDB_API_KEY")
	c.TMDB.BaseURL = strings.TrimRight(strings.TrimSpace(c.TMDB.BaseURL), "/")
	if c.TMDB.BaseURL == "" {
		c.TMDB.BaseURL = defaultTMDBBaseURL
	}
	c.TMDB.ImageBaseURL = strings.TrimRight(strings.TrimSpace(c.TMDB.ImageBaseURL), "/")
	if c.TMDB.ImageBaseURL == "" {
		c.TMDB.ImageBaseURL = defaultTMDBImageBaseURL
	}
	c.TMDB.Language = strings.TrimSpace(c.TMDB.Language)
	if c.TMDB.Language == "" {
		c.TMDB.Language = defaultTMDBLanguage
	}
	if c.TMDB.RequestsPerSecond <= 0 {
		c.TMDB.RequestsPerSecond = defaultTMDBRequestsPerSecond
	}
	if c.TMDB.MaxRetries < 0 {
		c.TMDB.MaxRetries = 0
	}
}

func (c *Config) normalizeOpenSubtitles() {
	c.OpenSubtitles.APIKey = envOverride(c.OpenSubtitles.APIKey, "OPENSUBTITLES_API_KEY")
	c.OpenSubtitles.Username = envOverride(c.OpenSubtitles.Username, "OPENSUBTITLES_USERNAME")
	c.OpenSubtitles.Password = envOverride(c.OpenSubtitles.Password, "OPENSUBTITLES_PASSWORD")
	c.OpenSubtitles.UserToken = envOverride(c.OpenSubtitles.UserToken, "OPENSUBTITLES_USER_TOKEN")
	c.OpenSubtitles.UserAgent = strings.TrimSpace(c.OpenSubtitles.UserAgent)
	if c.OpenSubtitles.UserAgent == "" {
		c.OpenSubtitles.UserAgent = defaultOpenSubtitlesUserAgent
	}
	c.OpenSubtitles.BaseURL = strings.TrimRight(strings.TrimSpace(c.OpenSubtitles.BaseURL), "/")
	if c.OpenSubtitles.BaseURL == "" {
		c.OpenSubtitles.BaseURL = defaultOpenSubtitlesBaseURL
	}
	if c.OpenSubtitles.RequestsPerSecond <= 0 {
		c.OpenSubtitles.RequestsPerSecond = defaultOpenSubtitlesRPS
	}
	if c.OpenSubtitles.MaxRetries < 0 {
		c.OpenSubtitles.MaxRetries = 0
	}
}

func (c *Config) normalizeSync() {
	c.Sync.DefaultLanguage = strings.TrimSpace(c.Sync.DefaultLanguage)
	if c.Sync.DefaultLanguage == "" {
		c.Sync.DefaultLanguage = defaultSyncLanguage
	}
	if c.Sync.DefaultMaxResults < 0 {
		c.Sync.DefaultMaxResults = 0
	}
}

func (c *Config) normalizeProcessing() {
	if c.Processing.BatchSize <= 0 {
		c.Processing.BatchSize = defaultProcessingBatchSize
	}
	if c.Processing.MaxBatches < 0 {
		c.Processing.MaxBatches = 0
	}
	if c.Processing.MaxItems < 0 {
		c.Processing.MaxItems = 0
	}
	c.Processing.DifficultyTable = strings.TrimSpace(c.Processing.DifficultyTable)
}

func (c *Config) normalizeAcquisition() {
	c.Acquisition.Language = strings.ToLower(strings.TrimSpace(c.Acquisition.Language))
	if c.Acquisition.Language == "" {
		c.Acquisition.Language = defaultAcquisitionLanguage
	}
}

func (c *Config) normalizeStorage() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageFilesystem
	}
	if strings.TrimSpace(c.Storage.Root) == "" {
		c.Storage.Root = defaultStorageRoot
	}
	var err error
	if c.Storage.Root, err = expandPath(c.Storage.Root); err != nil {
		return fmt.Errorf("storage.root: %w", err)
	}
	s3 := &c.Storage.S3
	s3.AccessKey = envOverride(s3.AccessKey, "CINELEX_S3_ACCESS_KEY", "AWS_ACCESS_KEY_ID")
	s3.SecretKey = envOverride(s3.SecretKey, "CINELEX_S3_SECRET_KEY", "AWS_SECRET_ACCESS_KEY")
	s3.Endpoint = strings.TrimSpace(s3.Endpoint)
	s3.Bucket = strings.TrimSpace(s3.Bucket)
	s3.Prefix = strings.Trim(strings.TrimSpace(s3.Prefix), "/")
	s3.Region = strings.TrimSpace(s3.Region)
	if s3.Region == "" {
		s3.Region = defaultS3Region
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = envOverride(c.API.Token, "CINELEX_API_TOKEN")
	if c.API.JobWorkers <= 0 {
		c.API.JobWorkers = defaultAPIJobWorkers
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
