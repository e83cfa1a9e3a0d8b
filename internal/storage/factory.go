package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/timmy/outreach/internal/config"
	"github.com/timmy/outreach/internal/logger"
)

// NewStorage creates the result mirror from configuration.
// Parameters:
//   - ctx: context used for the bucket check.
//   - cfg: storage section of the application config.
// Returns:
//   - ObjectStorage: initialized client, or nil when storage is disabled.
//   - error: non-nil if the client cannot be created or the bucket is unusable.
func NewStorage(ctx context.Context, cfg config.StorageConfig) (ObjectStorage, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Bucket == "" || cfg.Endpoint == "" {
		return nil, fmt.Errorf("storage: endpoint and bucket are required")
	}

	s3cfg := &S3Config{
		Type:      StorageType(strings.ToLower(cfg.Type)),
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		PublicURL: cfg.PublicURL,
	}
	// Auto-detect storage type if not specified
	if s3cfg.Type == "" {
		s3cfg.Type = detectStorageType(cfg.Endpoint)
	}

	store, err := NewS3Storage(s3cfg)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}

	logger.Info("Result mirror ready: type=%s, bucket=%s", s3cfg.Type, cfg.Bucket)
	return store, nil
}

// detectStorageType attempts to detect the storage type from the endpoint
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
