// Package storage copies retrieved backup archives to offsite object storage.
package storage

import (
	"context"
	"io"
	"strings"
	"time"
)

// Storage defines the interface for offsite storage operations.
type Storage interface {
	// Upload stores an archive with the given key. If reader is an
	// io.Seeker, retries rewind it before each attempt.
	Upload(ctx context.Context, key string, reader io.Reader, metadata map[string]string) error

	// Exists reports whether an archive with the given key is stored.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes an archive with the given key.
	Delete(ctx context.Context, key string) error

	// List returns all archives matching the given prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// ObjectInfo contains information about a stored archive.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	Metadata     map[string]string
}

// normalizePrefix trims surrounding slashes so "backups/" and "backups" name
// the same folder.
func normalizePrefix(prefix string) string {
	return strings.Trim(prefix, "/")
}

// joinKey and splitKey apply a provider's key prefix.
func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	if key == "" {
		return prefix + "/"
	}
	return prefix + "/" + key
}

func splitKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, prefix+"/")
}
