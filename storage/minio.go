package storage

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"Tunedrop/logger"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Options configures the S3-compatible endpoint.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// ObjectStore stores uploaded media in S3-compatible buckets.
type ObjectStore struct {
	client *minio.Client
	region string
}

// NewObjectStore creates the minio client. It does not touch the network.
func NewObjectStore(opts Options) (*ObjectStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}
	return &ObjectStore{client: client, region: opts.Region}, nil
}

// EnsureBuckets creates any missing bucket.
func (s *ObjectStore) EnsureBuckets(ctx context.Context, buckets ...string) error {
	for _, bucket := range buckets {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
		}
		if exists {
			logger.Info("[Storage] bucket already exists", logger.String("bucket", bucket))
			continue
		}
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
		logger.Info("[Storage] bucket created", logger.String("bucket", bucket))
	}
	return nil
}

// Upload stores data under name and returns the stored object path.
func (s *ObjectStore) Upload(ctx context.Context, bucket, name string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	info, err := s.client.PutObject(ctx, bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s/%s: %w", bucket, name, err)
	}
	return info.Key, nil
}

// SignedURL returns a presigned GET URL valid for expiry.
func (s *ObjectStore) SignedURL(ctx context.Context, bucket, name string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, bucket, name, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s/%s: %w", bucket, name, err)
	}
	return u.String(), nil
}

// Remove deletes an object.
func (s *ObjectStore) Remove(ctx context.Context, bucket, name string) error {
	if err := s.client.RemoveObject(ctx, bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove %s/%s: %w", bucket, name, err)
	}
	return nil
}

// BucketStats summarises a bucket's contents.
type BucketStats struct {
	Bucket       string
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
}

// Stats walks every object in bucket.
func (s *ObjectStore) Stats(ctx context.Context, bucket string) (*BucketStats, error) {
	stats := &BucketStats{Bucket: bucket}
	for object := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Recursive: true}) {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", bucket, object.Err)
		}
		stats.TotalObjects++
		stats.TotalSize += object.Size
		if object.LastModified.After(stats.LastModified) {
			stats.LastModified = object.LastModified
		}
	}
	return stats, nil
}

// NewObjectName returns a random object name that keeps the extension of
// the uploaded file name as given, e.g. "song.MP3" -> "<uuid>.MP3".
func NewObjectName(originalName string) string {
	ext := filepath.Ext(filepath.Base(originalName))
	if ext == "." {
		ext = ""
	}
	return uuid.NewString() + ext
}
