package config

import (
	"errors"
	"fmt"
	"strings"

	"cinelex/internal/services"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTMDB(); err != nil {
		return err
	}
	if err := c.validateOpenSubtitles(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateProcessing(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTMDB() error {
	if c.TMDB.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("%w: tmdb.api_key is required. Set TMDB_API_KEY env var or edit %s (create with 'cinelex config init')",
			services.ErrConfiguration, defaultPath)
	}
	if c.TMDB.RequestsPerSecond <= 0 {
		return errors.New("tmdb.requests_per_second must be positive")
	}
	if c.TMDB.TimeoutSeconds <= 0 {
		return errors.New("tmdb.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateOpenSubtitles() error {
	if !c.OpenSubtitles.Enabled {
		return nil
	}
	if c.OpenSubtitles.APIKey == "" {
		return fmt.Errorf("%w: opensubtitles.api_key must be set when opensubtitles.enabled is true (or set OPENSUBTITLES_API_KEY)",
			services.ErrConfiguration)
	}
	if c.OpenSubtitles.UserAgent == "" {
		return errors.New("opensubtitles.user_agent must be set when opensubtitles.enabled is true")
	}
	if (c.OpenSubtitles.Username == "") != (c.OpenSubtitles.Password == "") {
		return errors.New("opensubtitles.username and opensubtitles.password must be set together")
	}
	if c.OpenSubtitles.TimeoutSeconds <= 0 {
		return errors.New("opensubtitles.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateSync() error {
	if err := ensurePositiveMap(map[string]int{
		"sync.max_attempts":         c.Sync.MaxAttempts,
		"sync.poll_interval":        c.Sync.PollInterval,
		"sync.retry_sweep_interval": c.Sync.RetrySweepInterval,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateProcessing() error {
	if err := ensurePositiveMap(map[string]int{
		"processing.batch_size":    c.Processing.BatchSize,
		"processing.max_attempts":  c.Processing.MaxAttempts,
		"processing.stale_timeout": c.Processing.StaleTimeout,
		"processing.interval":      c.Processing.Interval,
		"acquisition.interval":     c.Acquisition.Interval,
	}); err != nil {
		return err
	}
	if c.Acquisition.MaxDownloads <= 0 {
		return errors.New("acquisition.max_downloads must be positive")
	}
	if c.Acquisition.Enabled && !c.OpenSubtitles.Enabled {
		return errors.New("acquisition.enabled requires opensubtitles.enabled")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageFilesystem:
		if strings.TrimSpace(c.Storage.Root) == "" {
			return errors.New("storage.root must be set for the filesystem backend")
		}
	case StorageS3:
		if c.Storage.S3.Bucket == "" {
			return errors.New("storage.s3.bucket must be set for the s3 backend")
		}
		if (c.Storage.S3.AccessKey == "") != (c.Storage.S3.SecretKey == "") {
			return errors.New("storage.s3.access_key and storage.s3.secret_key must be set together")
		}
	default:
		return fmt.Errorf("storage.backend: unsupported value %q (use %q or %q)", c.Storage.Backend, StorageFilesystem, StorageS3)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
