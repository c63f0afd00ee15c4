package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/goccy/go-json"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// gcsChunkSize is the resumable upload chunk. Backup archives are usually
// tens of megabytes, so a retry resends at most one chunk.
const gcsChunkSize = 8 * 1024 * 1024

// GCSStorage implements Storage interface for Google Cloud Storage.
type GCSStorage struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
}

// GCSConfig holds GCS-specific configuration.
type GCSConfig struct {
	Bucket             string
	ProjectID          string
	ServiceAccountJSON string
	Prefix             string // Optional prefix for all keys
}

// NewGCSStorage creates a new GCS storage provider.
func NewGCSStorage(ctx context.Context, cfg GCSConfig) (*GCSStorage, error) {
	var opts []option.ClientOption
	if cfg.ServiceAccountJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStorage{
		client: client,
		bucket: client.Bucket(cfg.Bucket),
		prefix: normalizePrefix(cfg.Prefix),
	}, nil
}

func (g *GCSStorage) object(key string) *storage.ObjectHandle {
	return g.bucket.Object(joinKey(g.prefix, key))
}

// Upload implements Storage.Upload.
func (g *GCSStorage) Upload(ctx context.Context, key string, reader io.Reader, metadata map[string]string) error {
	w := g.object(key).NewWriter(ctx)
	w.ChunkSize = gcsChunkSize
	w.ContentType = "application/zip"
	w.Metadata = metadata

	if _, err := io.Copy(w, reader); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to upload to GCS: %w", err)
	}

	// The object only becomes visible once the writer is closed
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize GCS upload: %w", err)
	}

	return nil
}

// Exists implements Storage.Exists.
func (g *GCSStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := g.object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read GCS object attributes: %w", err)
	}
	return true, nil
}

// Delete implements Storage.Delete.
func (g *GCSStorage) Delete(ctx context.Context, key string) error {
	if err := g.object(key).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete from GCS: %w", err)
	}
	return nil
}

// List implements Storage.List. Metadata is filled in, unlike S3 where it
// would need a request per object.
func (g *GCSStorage) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	query := &storage.Query{Prefix: joinKey(g.prefix, prefix)}
	if err := query.SetAttrSelection([]string{"Name", "Size", "Updated", "Metadata"}); err != nil {
		return nil, fmt.Errorf("failed to build GCS query: %w", err)
	}

	var objects []ObjectInfo
	it := g.bucket.Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return objects, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list GCS objects: %w", err)
		}

		objects = append(objects, ObjectInfo{
			Key:          splitKey(g.prefix, attrs.Name),
			Size:         attrs.Size,
			LastModified: attrs.Updated,
			Metadata:     attrs.Metadata,
		})
	}
}

// Close closes the GCS client connection.
func (g *GCSStorage) Close() error {
	return g.client.Close()
}

// ValidateServiceAccountJSON checks that the credentials are a service
// account key with the fields the client needs.
func ValidateServiceAccountJSON(jsonStr string) error {
	var sa struct {
		Type        string `json:"type"`
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
	}

	if err := json.Unmarshal([]byte(jsonStr), &sa); err != nil {
		return fmt.Errorf("invalid service account JSON: %w", err)
	}

	if sa.Type != "service_account" {
		return fmt.Errorf("invalid service account type: %q", sa.Type)
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" {
		return fmt.Errorf("service account JSON is missing client_email or private_key")
	}

	return nil
}
