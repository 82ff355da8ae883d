package service

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/AnTengye/contractdash/backend/config"
)

// Archive keeps a copy of every analyzed upload.
type Archive interface {
	Store(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error
	URL(ctx context.Context, objectName string) (string, error)
	Delete(ctx context.Context, objectName string) error
}

// ArchiveObjectName returns <tenant>/<recordID>/<filename>, with any directory
// part of filename dropped.
func ArchiveObjectName(tenant, recordID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" {
		name = "upload"
	}
	if tenant == "" {
		tenant = "default"
	}
	return path.Join(tenant, recordID, name)
}

// MinioService is the object-storage Archive.
type MinioService struct {
	client *minio.Client
	bucket string
	config *config.MinioConfig
}

var _ Archive = (*MinioService)(nil)

func NewMinioService(cfg *config.MinioConfig) (*MinioService, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioService{
		client: client,
		bucket: cfg.Bucket,
		config: cfg,
	}, nil
}

// EnsureBucket creates the archive bucket if it doesn't exist
func (s *MinioService) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.config.Region}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Store uploads one archived document.
func (s *MinioService) Store(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to archive upload: %w", err)
	}
	return nil
}

// maxPresignExpiry is the longest validity S3 accepts for a presigned URL.
const maxPresignExpiry = 7 * 24 * time.Hour

// URL returns a presigned download link valid for ExpireDays, capped at seven days.
func (s *MinioService) URL(ctx context.Context, objectName string) (string, error) {
	expiry := time.Duration(s.config.ExpireDays) * 24 * time.Hour
	if expiry <= 0 || expiry > maxPresignExpiry {
		expiry = maxPresignExpiry
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return u.String(), nil
}

// Delete removes an archived document.
func (s *MinioService) Delete(ctx context.Context, objectName string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete archived upload: %w", err)
	}
	return nil
}
