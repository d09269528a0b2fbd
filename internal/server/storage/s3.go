package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/filecatalog/internal/server/models"
)

// Compile-time check to ensure S3Store implements Store.
var _ Store = (*S3Store)(nil)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// s3API is the part of *s3.Client used for writes and listings.
type s3API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	s3.ListBucketsAPIClient
}

// Opts configures an S3Store.
type Opts struct {
	Region       string
	BaseEndpoint string
	UsePathStyle bool
	// AccessKey/SecretKey form the ambient identity. When empty, the AWS
	// default credential chain (env, shared config, instance role) is used.
	AccessKey string
	SecretKey string
	// PartSizeMB and Concurrency tune multipart uploads of large files.
	PartSizeMB  int64
	Concurrency int
}

// S3Store talks to S3 through aws-sdk-go-v2.
type S3Store struct {
	awsCfg      aws.Config
	opts        Opts
	ambient     *s3.Client
	partSize    int64
	concurrency int

	// apiFor is swapped in tests.
	apiFor func(creds *models.Credentials) s3API
}

// NewS3Store loads the AWS configuration for opts and builds the ambient client.
func NewS3Store(ctx context.Context, opts Opts) (*S3Store, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newS3Store(awsCfg, opts), nil
}

func newS3Store(awsCfg aws.Config, opts Opts) *S3Store {
	if opts.PartSizeMB <= 0 {
		opts.PartSizeMB = 16
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	s := &S3Store{
		awsCfg:      awsCfg,
		opts:        opts,
		partSize:    opts.PartSizeMB * 1024 * 1024,
		concurrency: opts.Concurrency,
	}
	s.ambient = newS3ClientFromConfig(awsCfg, s.clientOptions(nil))
	s.apiFor = func(creds *models.Credentials) s3API { return s.clientFor(creds) }
	return s
}

func (s *S3Store) clientOptions(creds *models.Credentials) func(*s3.Options) {
	return func(o *s3.Options) {
		if s.opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(s.opts.BaseEndpoint)
		}
		o.UsePathStyle = s.opts.UsePathStyle
		if creds != nil {
			o.Credentials = credentials.NewStaticCredentialsProvider(creds.AccessKey, creds.SecretKey, creds.SessionToken)
		}
	}
}

// clientFor returns the ambient client for nil credentials and a client
// bound to creds otherwise. Caller-scoped clients are not cached so no
// credential outlives the call that supplied it.
func (s *S3Store) clientFor(creds *models.Credentials) *s3.Client {
	if creds == nil {
		return s.ambient
	}
	return newS3ClientFromConfig(s.awsCfg, s.clientOptions(creds))
}

// Put uploads body through the multipart upload manager.
func (s *S3Store) Put(ctx context.Context, creds *models.Credentials, bucket, key string, body io.Reader, contentType string) error {
	uploader := manager.NewUploader(s.apiFor(creds), func(u *manager.Uploader) {
		u.PartSize = s.partSize
		u.Concurrency = s.concurrency
	})

	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("put %s/%s: %w", bucket, key, classify(err))
	}
	return nil
}

// Presign signs a GET URL locally; S3 is not contacted, so a missing
// bucket or key is only reported when the URL is used.
func (s *S3Store) Presign(ctx context.Context, creds *models.Credentials, bucket, key string, ttl time.Duration) (string, error) {
	presignClient := s3.NewPresignClient(s.clientFor(creds))

	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", bucket, key, err)
	}
	return req.URL, nil
}

// ListObjects pages through ListObjectsV2. A missing bucket matches
// common.ErrorNotFound.
func (s *S3Store) ListObjects(ctx context.Context, creds *models.Credentials, bucket, prefix, delimiter string) (*Listing, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	if delimiter != "" {
		input.Delimiter = aws.String(delimiter)
	}

	listing := &Listing{Objects: []ObjectInfo{}, CommonPrefixes: []string{}}

	paginator := s3.NewListObjectsV2Paginator(s.apiFor(creds), input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects in %s: %w", bucket, classify(err))
		}
		for _, obj := range page.Contents {
			listing.Objects = append(listing.Objects, ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				ETag:         aws.ToString(obj.ETag),
			})
		}
		for _, p := range page.CommonPrefixes {
			listing.CommonPrefixes = append(listing.CommonPrefixes, aws.ToString(p.Prefix))
		}
	}

	return listing, nil
}

// ListBuckets returns every bucket visible to creds. Rejected
// credentials match common.ErrorUnauthorized.
func (s *S3Store) ListBuckets(ctx context.Context, creds *models.Credentials) ([]string, error) {
	names := []string{}

	paginator := s3.NewListBucketsPaginator(s.apiFor(creds), &s3.ListBucketsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list buckets: %w", classify(err))
		}
		for _, b := range page.Buckets {
			names = append(names, aws.ToString(b.Name))
		}
	}

	return names, nil
}
