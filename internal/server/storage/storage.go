// Package storage is the object-store capability used by the upload
// pipeline and the browse API. The S3 implementation works with AWS and
// with S3-compatible servers such as MinIO.
package storage

import (
	"context"
	"io"
	"time"

	"github.com/dmitrijs2005/filecatalog/internal/server/models"
)

// Store is implemented by object-store backends. A nil *models.Credentials
// means the store's ambient identity; otherwise calls are made as the
// given caller.
type Store interface {
	// Put writes body to bucket/key, replacing any existing object.
	Put(ctx context.Context, creds *models.Credentials, bucket, key string, body io.Reader, contentType string) error

	// Presign returns a GET URL for bucket/key valid for ttl. Object
	// existence is not checked.
	Presign(ctx context.Context, creds *models.Credentials, bucket, key string, ttl time.Duration) (string, error)

	// ListObjects returns objects under prefix. With a delimiter, keys
	// sharing the next path segment are rolled up into CommonPrefixes.
	ListObjects(ctx context.Context, creds *models.Credentials, bucket, prefix, delimiter string) (*Listing, error)

	// ListBuckets returns the names of buckets visible to the identity.
	ListBuckets(ctx context.Context, creds *models.Credentials) ([]string, error)
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ETag         string    `json:"etag"`
}

// Listing is the result of ListObjects.
type Listing struct {
	Objects        []ObjectInfo `json:"objects"`
	CommonPrefixes []string     `json:"common_prefixes"`
}
