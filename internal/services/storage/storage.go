// Package storage keeps report artifacts in MinIO. The workflow only stores
// the returned object key and never inspects file contents.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/regdesk/backend/internal/apperrors"
	"github.com/regdesk/backend/internal/config"
)

// ErrObjectNotFound is returned by Stat when the key has no object
var ErrObjectNotFound = errors.New("object not found")

// AllowedExtensions lists the upload types accepted for reports
var AllowedExtensions = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".csv":  "text/csv",
	".txt":  "text/plain",
}

// ObjectInfo describes a stored artifact
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
}

// ArtifactStore is the storage collaborator used by the workflow services
type ArtifactStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	PresignedURL(ctx context.Context, key, filename string) (string, error)
	Remove(ctx context.Context, key string) error
}

// MinioStore implements ArtifactStore on a single bucket
type MinioStore struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

// NewMinioStore connects to MinIO and creates the bucket when missing
func NewMinioStore(ctx context.Context, cfg config.StorageConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &MinioStore{client: client, bucket: cfg.Bucket, expiry: cfg.PresignExpiry}, nil
}

func (s *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return apperrors.Upstream(apperrors.ReasonUnavailable, "failed to store artifact", err)
	}
	return nil
}

func (s *MinioStore) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return ObjectInfo{}, ErrObjectNotFound
		}
		return ObjectInfo{}, apperrors.Upstream(apperrors.ReasonUnavailable, "failed to stat artifact", err)
	}
	return ObjectInfo{Key: info.Key, Size: info.Size, ContentType: info.ContentType}, nil
}

func (s *MinioStore) PresignedURL(ctx context.Context, key, filename string) (string, error) {
	params := url.Values{}
	if filename != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.expiry, params)
	if err != nil {
		return "", apperrors.Upstream(apperrors.ReasonUnavailable, "failed to presign artifact", err)
	}
	return u.String(), nil
}

func (s *MinioStore) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return apperrors.Upstream(apperrors.ReasonUnavailable, "failed to remove artifact", err)
	}
	return nil
}

// ObjectKey builds reports/<company>/<report>/<random>-<slug><ext>
func ObjectKey(companyID, reportID uuid.UUID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := slug.Make(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)))
	if base == "" {
		base = "report"
	}
	return fmt.Sprintf("reports/%s/%s/%s-%s%s", companyID, reportID, uuid.New().String()[:8], base, ext)
}

// ValidateUpload checks the extension and size of an uploaded file and
// returns its content type
func ValidateUpload(filename string, size, maxSize int64) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	contentType, ok := AllowedExtensions[ext]
	if !ok {
		return "", apperrors.Validation("file", fmt.Sprintf("file type %q is not allowed", ext))
	}
	if size <= 0 {
		return "", apperrors.Validation("file", "file is empty")
	}
	if maxSize > 0 && size > maxSize {
		return "", apperrors.Validation("file", fmt.Sprintf("file exceeds %d MB", maxSize/(1024*1024)))
	}
	return contentType, nil
}
