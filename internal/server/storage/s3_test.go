package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/filecatalog/internal/common"
	"github.com/dmitrijs2005/filecatalog/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	putErr  error
	puts    []*s3.PutObjectInput
	bodies  [][]byte
	pages   []*s3.ListObjectsV2Output
	listErr error
	buckets []types.Bucket
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.puts = append(f.puts, in)
	f.bodies = append(f.bodies, b)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("multipart not expected")
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("multipart not expected")
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("multipart not expected")
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func (f *fakeS3) ListBuckets(ctx context.Context, in *s3.ListBucketsInput, _ ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &s3.ListBucketsOutput{Buckets: f.buckets}, nil
}

func staticConfig(region, access string) aws.Config {
	return aws.Config{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(access, "secret", ""),
	}
}

func newFakeStore(f *fakeS3) (*S3Store, *[]*models.Credentials) {
	s := newS3Store(staticConfig("ap-south-1", "AMBIENT"), Opts{Region: "ap-south-1"})
	seen := &[]*models.Credentials{}
	s.apiFor = func(creds *models.Credentials) s3API {
		*seen = append(*seen, creds)
		return f
	}
	return s, seen
}

func TestNewS3Store_AppliesOptions(t *testing.T) {
	origLoad, origNew := loadDefaultAWSConfig, newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "us-east-1", lo.Region)
		require.NotNil(t, lo.Credentials, "static ambient credentials expected")
		return aws.Config{Region: lo.Region}, nil
	}

	var captured s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&captured)
		}
		return &s3.Client{}
	}

	s, err := NewS3Store(context.Background(), Opts{
		Region:       "us-east-1",
		BaseEndpoint: "http://127.0.0.1:9000",
		UsePathStyle: true,
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
	})
	require.NoError(t, err)
	require.NotNil(t, s)

	require.NotNil(t, captured.BaseEndpoint)
	assert.Equal(t, "http://127.0.0.1:9000", *captured.BaseEndpoint)
	assert.True(t, captured.UsePathStyle)
	assert.Equal(t, int64(16*1024*1024), s.partSize)
	assert.Equal(t, 4, s.concurrency)
}

func TestNewS3Store_LoadError(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = origLoad })

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("load-fail")
	}

	_, err := NewS3Store(context.Background(), Opts{Region: "us-east-1"})
	require.ErrorContains(t, err, "load aws config: load-fail")
}

func TestPresign_NonexistentKeyStillSigns(t *testing.T) {
	s := newS3Store(staticConfig("ap-south-1", "AMBIENT"), Opts{Region: "ap-south-1"})

	raw, err := s.Presign(context.Background(), nil, "files-bucket-b", "Folder-9/never-uploaded.txt", 12*time.Hour)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "https", u.Scheme)
	assert.Equal(t, "files-bucket-b.s3.ap-south-1.amazonaws.com", u.Host)
	assert.Equal(t, "/Folder-9/never-uploaded.txt", u.Path)

	q := u.Query()
	assert.Equal(t, "43200", q.Get("X-Amz-Expires"))
	assert.Equal(t, "AWS4-HMAC-SHA256", q.Get("X-Amz-Algorithm"))
	assert.True(t, strings.HasPrefix(q.Get("X-Amz-Credential"), "AMBIENT/"))
	assert.NotEmpty(t, q.Get("X-Amz-Signature"))
}

func TestPresign_UsesCallerCredentials(t *testing.T) {
	s := newS3Store(staticConfig("ap-south-1", "AMBIENT"), Opts{Region: "ap-south-1"})

	raw, err := s.Presign(context.Background(), &models.Credentials{AccessKey: "CALLER", SecretKey: "s"}, "b", "k", time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u.Query().Get("X-Amz-Credential"), "CALLER/"))
	assert.Equal(t, "60", u.Query().Get("X-Amz-Expires"))
}

func TestPresign_PathStyleEndpoint(t *testing.T) {
	s := newS3Store(staticConfig("us-east-1", "minio"), Opts{
		Region: "us-east-1", BaseEndpoint: "http://127.0.0.1:9000", UsePathStyle: true,
	})

	raw, err := s.Presign(context.Background(), nil, "vault", "Folder-1/a.txt", time.Hour)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "http://127.0.0.1:9000/vault/Folder-1/a.txt?"), raw)
}

func TestPut_WritesObject(t *testing.T) {
	f := &fakeS3{}
	s, seen := newFakeStore(f)
	creds := &models.Credentials{AccessKey: "a", SecretKey: "s"}

	err := s.Put(context.Background(), creds, "bucket", "Folder-1/a.txt", bytes.NewReader([]byte("hello")), "text/plain")
	require.NoError(t, err)

	require.Len(t, f.puts, 1)
	assert.Equal(t, "bucket", aws.ToString(f.puts[0].Bucket))
	assert.Equal(t, "Folder-1/a.txt", aws.ToString(f.puts[0].Key))
	assert.Equal(t, "text/plain", aws.ToString(f.puts[0].ContentType))
	assert.Equal(t, []byte("hello"), f.bodies[0])
	assert.Same(t, creds, (*seen)[0])
}

func TestPut_OmitsEmptyContentType(t *testing.T) {
	f := &fakeS3{}
	s, _ := newFakeStore(f)

	require.NoError(t, s.Put(context.Background(), nil, "b", "k", bytes.NewReader([]byte("x")), ""))
	require.Len(t, f.puts, 1)
	assert.Nil(t, f.puts[0].ContentType)
}

func TestPut_Error(t *testing.T) {
	f := &fakeS3{putErr: errors.New("access denied")}
	s, _ := newFakeStore(f)

	err := s.Put(context.Background(), nil, "b", "k", bytes.NewReader([]byte("x")), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "put b/k")
	assert.Contains(t, err.Error(), "access denied")
}

func TestListObjects_Paginates(t *testing.T) {
	mod := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f := &fakeS3{pages: []*s3.ListObjectsV2Output{
		{
			Contents:              []types.Object{{Key: aws.String("Folder-1/a.txt"), Size: aws.Int64(3), LastModified: &mod, ETag: aws.String(`"e1"`)}},
			CommonPrefixes:        []types.CommonPrefix{{Prefix: aws.String("Folder-1/sub/")}},
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String("t1"),
		},
		{
			Contents: []types.Object{{Key: aws.String("Folder-1/b.txt"), Size: aws.Int64(4)}},
		},
	}}
	s, _ := newFakeStore(f)

	got, err := s.ListObjects(context.Background(), nil, "b", "Folder-1/", "/")
	require.NoError(t, err)

	require.Len(t, got.Objects, 2)
	assert.Equal(t, ObjectInfo{Key: "Folder-1/a.txt", Size: 3, LastModified: mod, ETag: `"e1"`}, got.Objects[0])
	assert.Equal(t, "Folder-1/b.txt", got.Objects[1].Key)
	assert.Equal(t, []string{"Folder-1/sub/"}, got.CommonPrefixes)
}

func TestListObjects_Error(t *testing.T) {
	s, _ := newFakeStore(&fakeS3{listErr: errors.New("no such bucket")})

	_, err := s.ListObjects(context.Background(), nil, "missing", "", "")
	require.ErrorContains(t, err, "list objects in missing")
}

func TestListBuckets(t *testing.T) {
	f := &fakeS3{buckets: []types.Bucket{{Name: aws.String("one")}, {Name: aws.String("two")}}}
	s, _ := newFakeStore(f)

	got, err := s.ListBuckets(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, got)

	s, _ = newFakeStore(&fakeS3{listErr: errors.New("forbidden")})
	_, err = s.ListBuckets(context.Background(), nil)
	require.ErrorContains(t, err, "list buckets: forbidden")
}

func TestListObjects_MissingBucketIsNotFound(t *testing.T) {
	s, _ := newFakeStore(&fakeS3{listErr: &smithy.GenericAPIError{Code: "NoSuchBucket", Message: "The specified bucket does not exist"}})

	_, err := s.ListObjects(context.Background(), nil, "missing", "", "")
	require.ErrorIs(t, err, common.ErrorNotFound)
	assert.NotErrorIs(t, err, common.ErrorUnauthorized)
}

func TestListBuckets_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		unauthorized bool
	}{
		{"invalid access key", &smithy.GenericAPIError{Code: "InvalidAccessKeyId"}, true},
		{"bad signature", &smithy.GenericAPIError{Code: "SignatureDoesNotMatch"}, true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, true},
		{"server error", &smithy.GenericAPIError{Code: "InternalError"}, false},
		{"transport", errors.New("dial tcp: lookup s3.local: no such host"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newFakeStore(&fakeS3{listErr: tt.err})

			_, err := s.ListBuckets(context.Background(), &models.Credentials{AccessKey: "a", SecretKey: "s"})
			require.Error(t, err)
			assert.Equal(t, tt.unauthorized, errors.Is(err, common.ErrorUnauthorized))
			assert.NotErrorIs(t, err, common.ErrorNotFound)
		})
	}
}
