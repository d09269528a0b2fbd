// Package services contains server-side business logic outside the upload
// pipeline. This file implements StorageService, which browses buckets and
// objects and signs retrieval URLs on behalf of the caller.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/filecatalog/internal/common"
	"github.com/dmitrijs2005/filecatalog/internal/server/config"
	"github.com/dmitrijs2005/filecatalog/internal/server/models"
	"github.com/dmitrijs2005/filecatalog/internal/server/storage"
)

// MaxPresignTTL is the longest lifetime S3 accepts for a SigV4 signed URL.
const MaxPresignTTL = 7 * 24 * time.Hour

// StorageService browses the object store and signs retrieval URLs.
type StorageService struct {
	store         storage.Store
	defaultBucket string
	presignTTL    time.Duration
	timeout       time.Duration
}

// NewStorageService returns a StorageService using cfg's default bucket,
// presign lifetime and operation timeout.
func NewStorageService(store storage.Store, cfg *config.Config) *StorageService {
	return &StorageService{
		store:         store,
		defaultBucket: cfg.S3Bucket,
		presignTTL:    cfg.PresignTTL,
		timeout:       cfg.OperationTimeout,
	}
}

func (s *StorageService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *StorageService) bucket(bucket string) (string, error) {
	if bucket != "" {
		return bucket, nil
	}
	if s.defaultBucket == "" {
		return "", fmt.Errorf("%w: no bucket configured", common.ErrConfig)
	}
	return s.defaultBucket, nil
}

// ListBuckets returns the buckets visible to creds.
func (s *StorageService) ListBuckets(ctx context.Context, creds *models.Credentials) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.store.ListBuckets(ctx, creds)
}

// ListObjects lists bucket (or the default bucket) under prefix. With a
// non-empty delimiter, keys below the next delimiter are rolled up into
// common prefixes.
func (s *StorageService) ListObjects(ctx context.Context, creds *models.Credentials, bucket, prefix, delimiter string) (*storage.Listing, error) {
	bucket, err := s.bucket(bucket)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.store.ListObjects(ctx, creds, bucket, prefix, delimiter)
}

// Presign returns a time-limited GET URL for bucket/key. A zero ttl means
// the configured default. The key does not have to exist.
func (s *StorageService) Presign(ctx context.Context, creds *models.Credentials, bucket, key string, ttl time.Duration) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: key is required", common.ErrValidation)
	}
	if ttl == 0 {
		ttl = s.presignTTL
	}
	if ttl <= 0 || ttl > MaxPresignTTL {
		return "", fmt.Errorf("%w: ttl must be within (0, %s]", common.ErrValidation, MaxPresignTTL)
	}

	bucket, err := s.bucket(bucket)
	if err != nil {
		return "", err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.store.Presign(ctx, creds, bucket, key, ttl)
}
