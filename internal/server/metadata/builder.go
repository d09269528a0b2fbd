// Package metadata derives catalog records from a transferred file.
package metadata

import (
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/filecatalog/internal/server/models"
)

// URLBuilder renders the public URLs recorded for an object.
type URLBuilder interface {
	FolderURL(bucket, folder string) string
	FileURL(bucket, folder, fileName string) string
}

// S3URLBuilder produces AWS virtual-hosted style URLs:
// https://{bucket}.s3.{region}.amazonaws.com/{folder}/{file}.
type S3URLBuilder struct {
	Region string
}

func (b S3URLBuilder) FolderURL(bucket, folder string) string {
	u := "https://" + bucket + ".s3." + b.Region + ".amazonaws.com/"
	if folder != "" {
		u += folder + "/"
	}
	return u
}

func (b S3URLBuilder) FileURL(bucket, folder, fileName string) string {
	return b.FolderURL(bucket, folder) + fileName
}

// EndpointURLBuilder produces path-style URLs under an S3-compatible
// endpoint such as MinIO: {endpoint}/{bucket}/{folder}/{file}.
type EndpointURLBuilder struct {
	BaseEndpoint string
}

func (b EndpointURLBuilder) FolderURL(bucket, folder string) string {
	base := strings.TrimRight(b.BaseEndpoint, "/")
	u, err := url.JoinPath(base, bucket, folder)
	if err != nil {
		u = base + "/" + bucket + "/" + folder
	}
	return strings.TrimRight(u, "/") + "/"
}

func (b EndpointURLBuilder) FileURL(bucket, folder, fileName string) string {
	return b.FolderURL(bucket, folder) + fileName
}

// NewURLBuilder picks the endpoint builder when a custom endpoint is
// configured and the AWS builder otherwise.
func NewURLBuilder(region, baseEndpoint string) URLBuilder {
	if baseEndpoint != "" {
		return EndpointURLBuilder{BaseEndpoint: baseEndpoint}
	}
	return S3URLBuilder{Region: region}
}

// Builder creates FileMetadata records.
type Builder struct {
	urls URLBuilder
	now  func() time.Time
}

// NewBuilder returns a Builder stamping records with the current time.
func NewBuilder(urls URLBuilder) *Builder {
	return &Builder{urls: urls, now: time.Now}
}

// Build derives the catalog record for a file stored at loc. The
// timestamp is taken at call time, in UTC, so callers must invoke Build
// only once the transfer has completed.
func (b *Builder) Build(fileName string, size int64, loc models.ResolvedLocation) models.FileMetadata {
	return models.FileMetadata{
		FileName:      fileName,
		FileSizeBytes: size,
		FileExtension: Extension(fileName),
		Folder:        loc.Folder,
		FolderURL:     b.urls.FolderURL(loc.Bucket, loc.Folder),
		FileURL:       b.urls.FileURL(loc.Bucket, loc.Folder, fileName),
		UploadedAt:    b.now().UTC(),
	}
}

// Extension returns the text after the last "." in fileName, or "" when
// there is none.
func Extension(fileName string) string {
	i := strings.LastIndex(fileName, ".")
	if i < 0 {
		return ""
	}
	return fileName[i+1:]
}
