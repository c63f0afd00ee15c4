package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/imedwei/arr-backup/internal/config"
	"github.com/imedwei/arr-backup/internal/metrics"
)

// RetryConfig holds retry configuration for storage operations.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryableStorage wraps a Storage implementation with retry logic and
// records every attempt under the provider's name.
type RetryableStorage struct {
	storage  Storage
	config   RetryConfig
	provider string
	logger   *slog.Logger
}

// NewRetryableStorage creates a new storage wrapper with retry logic.
func NewRetryableStorage(storage Storage, provider string, config RetryConfig, logger *slog.Logger) *RetryableStorage {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryableStorage{
		storage:  storage,
		config:   config,
		provider: provider,
		logger:   logger.With("component", "storage", "provider", provider),
	}
}

// Upload implements Storage.Upload with retry logic. A seekable reader is
// rewound before every attempt; any other reader gets a single attempt since
// its content cannot be replayed.
func (r *RetryableStorage) Upload(ctx context.Context, key string, reader io.Reader, metadata map[string]string) error {
	seeker, seekable := reader.(io.Seeker)
	if !seekable {
		err := r.storage.Upload(ctx, key, reader, metadata)
		metrics.RecordStorageOperation("upload", r.provider, err == nil)
		return err
	}

	return r.retry(ctx, "upload", func() error {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("failed to rewind upload body: %w", err)
		}
		return r.storage.Upload(ctx, key, reader, metadata)
	})
}

// Exists implements Storage.Exists with retry logic.
func (r *RetryableStorage) Exists(ctx context.Context, key string) (bool, error) {
	var found bool
	err := r.retry(ctx, "exists", func() error {
		var err error
		found, err = r.storage.Exists(ctx, key)
		return err
	})
	return found, err
}

// Delete implements Storage.Delete with retry logic.
func (r *RetryableStorage) Delete(ctx context.Context, key string) error {
	return r.retry(ctx, "delete", func() error {
		return r.storage.Delete(ctx, key)
	})
}

// List implements Storage.List with retry logic.
func (r *RetryableStorage) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var result []ObjectInfo
	err := r.retry(ctx, "list", func() error {
		var err error
		result, err = r.storage.List(ctx, prefix)
		return err
	})
	return result, err
}

// retry executes a function with exponential backoff retry logic.
func (r *RetryableStorage) retry(ctx context.Context, op string, fn func() error) error {
	delay := r.config.InitialDelay

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		err := fn()
		metrics.RecordStorageOperation(op, r.provider, err == nil)
		if err == nil {
			return nil
		}

		if attempt == r.config.MaxAttempts {
			return fmt.Errorf("%s failed after %d attempts: %w", op, r.config.MaxAttempts, err)
		}

		r.logger.Warn("Storage operation failed, retrying",
			"operation", op,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * r.config.Multiplier)
		if delay > r.config.MaxDelay {
			delay = r.config.MaxDelay
		}
	}

	return nil
}

// Close releases the wrapped provider's resources, if it holds any.
func (r *RetryableStorage) Close() error {
	if c, ok := r.storage.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// NewStorage creates a storage provider based on configuration. It returns
// nil when offsite storage is disabled.
func NewStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Storage, error) {
	if !cfg.OffsiteEnabled() {
		return nil, nil
	}

	var storage Storage
	var err error

	switch cfg.StorageProvider {
	case "s3":
		s3Config := S3Config{
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			Prefix:          cfg.BackupFilePrefix,
			ObjectLock:      cfg.S3ObjectLock,
			UsePathStyle:    cfg.S3Endpoint != "", // Use path style for custom endpoints
		}
		storage, err = NewS3Storage(ctx, s3Config)

	case "gcs":
		if err := ValidateServiceAccountJSON(cfg.GoogleServiceAccountJSON); err != nil {
			return nil, fmt.Errorf("invalid GCS service account: %w", err)
		}

		gcsConfig := GCSConfig{
			Bucket:             cfg.GCSBucket,
			ProjectID:          cfg.GoogleProjectID,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			Prefix:             cfg.BackupFilePrefix,
		}
		storage, err = NewGCSStorage(ctx, gcsConfig)

	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", cfg.StorageProvider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s storage: %w", cfg.StorageProvider, err)
	}

	return NewRetryableStorage(storage, cfg.StorageProvider, DefaultRetryConfig(), logger), nil
}
