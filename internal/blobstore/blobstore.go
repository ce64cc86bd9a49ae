// Package blobstore holds subtitle file bytes on the local filesystem or in
// an S3-compatible bucket.
package blobstore

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"cinelex/internal/config"
	"cinelex/internal/logging"
	"cinelex/internal/services"
)

// Store reads and writes blobs addressed by slash-separated relative paths.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// New selects the backend named by cfg.Storage.Backend.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	logger = logging.NewComponentLogger(logger, "blobstore")
	switch cfg.Storage.Backend {
	case config.StorageFilesystem, "":
		logger.Debug("using filesystem blob store", logging.String("root", cfg.Storage.Root))
		return NewFilesystem(cfg.Storage.Root)
	case config.StorageS3:
		logger.Debug("using s3 blob store",
			logging.String("bucket", cfg.Storage.S3.Bucket),
			logging.String("endpoint", cfg.Storage.S3.Endpoint))
		return NewS3(ctx, cfg.Storage.S3, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported storage backend %q", services.ErrConfiguration, cfg.Storage.Backend)
	}
}

// cleanKey normalizes key and rejects keys that escape the store root.
func cleanKey(key string) (string, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty blob key", services.ErrValidation)
	}
	for _, part := range strings.Split(trimmed, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: blob key %q escapes the store root", services.ErrValidation, key)
		}
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+trimmed), "/")
	if cleaned == "" {
		return "", fmt.Errorf("%w: invalid blob key %q", services.ErrValidation, key)
	}
	return cleaned, nil
}
