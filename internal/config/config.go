package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	EnvFile string `toml:"env_file"`
}

// TMDB contains configuration for The Movie Database API.
type TMDB struct {
	APIKey            string `toml:"api_key"`
	BaseURL           string `toml:"base_url"`
	ImageBaseURL      string `toml:"image_base_url"`
	Language          string `toml:"language"`
	RequestsPerSecond int    `toml:"requests_per_second"`
	MaxRetries        int    `toml:"max_retries"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
}

// OpenSubtitles contains configuration for subtitle search and download.
type OpenSubtitles struct {
	Enabled           bool   `toml:"enabled"`
	APIKey            string `toml:"api_key"`
	UserAgent         string `toml:"user_agent"`
	Username          string `toml:"username"`
	Password          string `toml:"password"`
	UserToken         string `toml:"user_token"`
	BaseURL           string `toml:"base_url"`
	RequestsPerSecond int    `toml:"requests_per_second"`
	MaxRetries        int    `toml:"max_retries"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
}

// Sync contains catalog ingestion settings.
type Sync struct {
	DefaultLanguage    string `toml:"default_language"`
	DefaultMaxResults  int    `toml:"default_max_results"`
	MaxAttempts        int    `toml:"max_attempts"`
	PollInterval       int    `toml:"poll_interval"`
	RetrySweepInterval int    `toml:"retry_sweep_interval"`
}

// Processing contains subtitle analysis queue settings.
type Processing struct {
	Enabled         bool   `toml:"enabled"`
	BatchSize       int    `toml:"batch_size"`
	MaxBatches      int    `toml:"max_batches"`
	MaxItems        int    `toml:"max_items"`
	MaxAttempts     int    `toml:"max_attempts"`
	StaleTimeout    int    `toml:"stale_timeout"`
	Interval        int    `toml:"interval"`
	DifficultyTable string `toml:"difficulty_table"`
}

// Acquisition contains subtitle backfill settings.
type Acquisition struct {
	Enabled      bool   `toml:"enabled"`
	Language     string `toml:"language"`
	MaxDownloads int    `toml:"max_downloads"`
	Interval     int    `toml:"interval"`
}

// S3 contains object storage settings for the s3 backend.
type S3 struct {
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	Bucket    string `toml:"bucket"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Prefix    string `toml:"prefix"`
}

// Storage selects the byte store that holds subtitle files.
type Storage struct {
	Backend string `toml:"backend"`
	Root    string `toml:"root"`
	S3      S3     `toml:"s3"`
}

// API contains HTTP API settings.
type API struct {
	Bind       string `toml:"bind"`
	Token      string `toml:"token"`
	JobWorkers int    `toml:"job_workers"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for cinelex.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and env file locations
//   - TMDB: catalog ingestion client
//   - OpenSubtitles: subtitle search/download client
//   - Sync: ingestion job defaults and retry policy
//   - Processing: subtitle analysis work queue
//   - Acquisition: periodic subtitle backfill
//   - Storage: byte store backend (filesystem or s3)
//   - API: HTTP bind address, token, and background job pool
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	TMDB          TMDB          `toml:"tmdb"`
	OpenSubtitles OpenSubtitles `toml:"opensubtitles"`
	Sync          Sync          `toml:"sync"`
	Processing    Processing    `toml:"processing"`
	Acquisition   Acquisition   `toml:"acquisition"`
	Storage       Storage       `toml:"storage"`
	API           API           `toml:"api"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("cinelex.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir}
	if c.Storage.Backend == StorageFilesystem {
		dirs = append(dirs, c.Storage.Root)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the SQLite database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "cinelex.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "cinelexd.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
