package storage

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Storage implements Storage interface for AWS S3 and S3-compatible services.
type S3Storage struct {
	client     *s3.Client
	uploader   *manager.Uploader
	bucket     string
	prefix     string
	objectLock bool
}

// S3Config holds S3-specific configuration.
type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Bucket          string
	Endpoint        string // Optional custom endpoint
	Prefix          string // Optional prefix for all keys
	ObjectLock      bool   // Send Content-MD5, required by buckets with object lock
	UsePathStyle    bool   // For S3-compatible services
}

// NewS3Storage creates a new S3 storage provider.
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	region := cfg.Region
	if region == "" {
		// Custom endpoints such as MinIO ignore the region but the SDK
		// still requires one for signing.
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &S3Storage{
		client:     client,
		uploader:   manager.NewUploader(client),
		bucket:     cfg.Bucket,
		prefix:     normalizePrefix(cfg.Prefix),
		objectLock: cfg.ObjectLock,
	}, nil
}

// Upload implements Storage.Upload.
func (s *S3Storage) Upload(ctx context.Context, key string, reader io.Reader, metadata map[string]string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(joinKey(s.prefix, key)),
		Body:        reader,
		ContentType: aws.String("application/zip"),
		Metadata:    metadata,
	}

	if s.objectLock {
		sum, err := contentMD5(reader)
		if err != nil {
			return err
		}
		input.ContentMD5 = aws.String(sum)
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	return nil
}

// contentMD5 hashes a seekable body and rewinds it for the upload.
func contentMD5(reader io.Reader) (string, error) {
	seeker, ok := reader.(io.ReadSeeker)
	if !ok {
		return "", fmt.Errorf("object lock uploads need a seekable body")
	}

	hash := md5.New()
	if _, err := io.Copy(hash, seeker); err != nil {
		return "", fmt.Errorf("failed to read data for MD5: %w", err)
	}
	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind body: %w", err)
	}

	return base64.StdEncoding.EncodeToString(hash.Sum(nil)), nil
}

// Exists implements Storage.Exists.
func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(joinKey(s.prefix, key)),
	})
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to head S3 object: %w", err)
	}
	return true, nil
}

// Delete implements Storage.Delete.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(joinKey(s.prefix, key)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}

	return nil
}

// List implements Storage.List.
func (s *S3Storage) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(joinKey(s.prefix, prefix)),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list S3 objects: %w", err)
		}

		for _, obj := range page.Contents {
			objects = append(objects, ObjectInfo{
				Key:          splitKey(s.prefix, aws.ToString(obj.Key)),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				Metadata:     make(map[string]string), // Metadata requires separate HEAD request
			})
		}
	}

	return objects, nil
}
