// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalidConfig is wrapped by every error Load and Validate return.
var ErrInvalidConfig = errors.New("invalid configuration")

// Defaults for optional settings.
const (
	DefaultMaxBackupAge   = time.Hour
	DefaultPollInterval   = 5 * time.Second
	DefaultBackupTimeout  = 60 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	DefaultFilePrefix     = "arr"
)

// Config holds all application configuration.
type Config struct {
	// Server API
	BaseURL string
	APIKey  string

	// Local directories
	ConfigDir string // the server's own data directory, containing Backups/
	DestDir   string

	// Acquisition policy
	DeleteBackup   bool
	ForceBackup    bool
	MaxBackupAge   time.Duration
	PollInterval   time.Duration
	BackupTimeout  time.Duration
	RequestTimeout time.Duration

	// Offsite storage provider configuration, empty to disable
	StorageProvider string // "s3" or "gcs"

	// S3 configuration
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	S3Bucket           string
	S3Region           string
	S3Endpoint         string // Optional custom endpoint
	S3ObjectLock       bool   // Bucket has object lock enabled

	// GCS configuration
	GCSBucket                string
	GoogleProjectID          string
	GoogleServiceAccountJSON string

	// Offsite options
	BackupFilePrefix string
	RetentionDays    int

	// Metrics and health server, 0 to disable
	MetricsPort int

	// Logging
	LogLevel slog.Level
}

// Load reads configuration from environment variables. A .env file in the
// working directory, if present, is loaded first; variables already set in
// the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: failed to read .env file: %v", ErrInvalidConfig, err)
	}

	cfg := &Config{
		BaseURL:   os.Getenv("ARR_URL"),
		APIKey:    os.Getenv("ARR_API_KEY"),
		ConfigDir: os.Getenv("ARR_CONFIG_DIR"),
		DestDir:   os.Getenv("ARR_DEST_DIR"),

		StorageProvider: strings.ToLower(os.Getenv("STORAGE_PROVIDER")),

		// S3
		AWSAccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		S3Bucket:           os.Getenv("S3_BUCKET"),
		S3Region:           os.Getenv("S3_REGION"),
		S3Endpoint:         os.Getenv("S3_ENDPOINT"),

		// GCS
		GCSBucket:                os.Getenv("GCS_BUCKET"),
		GoogleProjectID:          os.Getenv("GOOGLE_PROJECT_ID"),
		GoogleServiceAccountJSON: os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"),

		BackupFilePrefix: getEnv("BACKUP_FILE_PREFIX", DefaultFilePrefix),
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	cfg.DeleteBackup, err = getEnvBool("ARR_DELETE_BACKUP", true)
	collect(err)
	cfg.ForceBackup, err = getEnvBool("ARR_FORCE_BACKUP", false)
	collect(err)
	cfg.MaxBackupAge, err = getEnvDuration("ARR_MAX_BACKUP_AGE", DefaultMaxBackupAge)
	collect(err)
	cfg.PollInterval, err = getEnvDuration("ARR_POLL_INTERVAL", DefaultPollInterval)
	collect(err)
	cfg.BackupTimeout, err = getEnvDuration("ARR_BACKUP_TIMEOUT", DefaultBackupTimeout)
	collect(err)
	cfg.RequestTimeout, err = getEnvDuration("ARR_REQUEST_TIMEOUT", DefaultRequestTimeout)
	collect(err)
	cfg.S3ObjectLock, err = getEnvBool("S3_OBJECT_LOCK", false)
	collect(err)
	cfg.RetentionDays, err = getEnvInt("RETENTION_DAYS", 0) // 0 means no retention policy
	collect(err)
	cfg.MetricsPort, err = getEnvInt("METRICS_PORT", 0)
	collect(err)
	cfg.LogLevel, err = getEnvLevel("LOG_LEVEL", slog.LevelInfo)
	collect(err)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return invalid("ARR_URL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("ARR_URL must be an http or https URL")
	}

	if c.APIKey == "" {
		return invalid("ARR_API_KEY is required")
	}

	if c.ConfigDir == "" {
		return invalid("ARR_CONFIG_DIR is required")
	}

	if c.DestDir == "" {
		return invalid("ARR_DEST_DIR is required")
	}

	if c.MaxBackupAge <= 0 {
		return invalid("ARR_MAX_BACKUP_AGE must be positive")
	}
	if c.PollInterval <= 0 {
		return invalid("ARR_POLL_INTERVAL must be positive")
	}
	if c.BackupTimeout <= 0 {
		return invalid("ARR_BACKUP_TIMEOUT must be positive")
	}
	if c.RequestTimeout <= 0 {
		return invalid("ARR_REQUEST_TIMEOUT must be positive")
	}

	switch c.StorageProvider {
	case "":
	case "s3":
		if err := c.validateS3(); err != nil {
			return err
		}
	case "gcs":
		if err := c.validateGCS(); err != nil {
			return err
		}
	default:
		return invalid(fmt.Sprintf("invalid STORAGE_PROVIDER: %s (must be 's3', 'gcs' or empty)", c.StorageProvider))
	}

	if c.RetentionDays < 0 {
		return invalid("RETENTION_DAYS must be non-negative")
	}

	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return invalid("METRICS_PORT must be a TCP port number")
	}

	return nil
}

func (c *Config) validateS3() error {
	if c.AWSAccessKeyID == "" {
		return invalid("AWS_ACCESS_KEY_ID is required for S3 storage")
	}
	if c.AWSSecretAccessKey == "" {
		return invalid("AWS_SECRET_ACCESS_KEY is required for S3 storage")
	}
	if c.S3Bucket == "" {
		return invalid("S3_BUCKET is required for S3 storage")
	}
	if c.S3Region == "" && c.S3Endpoint == "" {
		return invalid("S3_REGION is required for S3 storage (unless S3_ENDPOINT is set)")
	}
	return nil
}

func (c *Config) validateGCS() error {
	if c.GCSBucket == "" {
		return invalid("GCS_BUCKET is required for GCS storage")
	}
	if c.GoogleProjectID == "" {
		return invalid("GOOGLE_PROJECT_ID is required for GCS storage")
	}
	if c.GoogleServiceAccountJSON == "" {
		return invalid("GOOGLE_SERVICE_ACCOUNT_JSON is required for GCS storage")
	}
	return nil
}

// OffsiteEnabled reports whether retrieved archives are copied to object storage.
func (c *Config) OffsiteEnabled() bool {
	return c.StorageProvider != ""
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}

// getEnv gets a string from environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer from environment variable with a default value.
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, invalid(fmt.Sprintf("%s must be an integer", key))
	}
	return i, nil
}

// getEnvBool gets a boolean from environment variable with a default value.
func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, invalid(fmt.Sprintf("%s must be a boolean", key))
	}
	return b, nil
}

// getEnvDuration gets a Go duration ("90s", "1h") from environment variable
// with a default value.
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, invalid(fmt.Sprintf("%s must be a duration such as 90s or 1h", key))
	}
	return d, nil
}

// getEnvLevel gets a slog level from environment variable with a default value.
func getEnvLevel(key string, defaultValue slog.Level) (slog.Level, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return 0, invalid(fmt.Sprintf("%s must be one of debug, info, warn, error", key))
	}
	return level, nil
}
