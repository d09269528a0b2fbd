// Package storagetest provides an in-memory storage.Store for tests.
package storagetest

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/filecatalog/internal/common"
	"github.com/dmitrijs2005/filecatalog/internal/server/models"
	"github.com/dmitrijs2005/filecatalog/internal/server/storage"
)

// Object is one stored body with its content type.
type Object struct {
	Body        []byte
	ContentType string
}

// Store keeps objects in memory. Err, when set, is returned by every call.
// Creds records the credentials of each call in order.
type Store struct {
	mu      sync.Mutex
	Buckets map[string]map[string]Object
	Creds   []*models.Credentials
	Err     error
}

// New returns a Store holding the given empty buckets.
func New(buckets ...string) *Store {
	s := &Store{Buckets: map[string]map[string]Object{}}
	for _, b := range buckets {
		s.Buckets[b] = map[string]Object{}
	}
	return s
}

func (s *Store) record(creds *models.Credentials) error {
	s.Creds = append(s.Creds, creds)
	return s.Err
}

func (s *Store) Put(_ context.Context, creds *models.Credentials, bucket, key string, body io.Reader, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(creds); err != nil {
		return err
	}
	b, ok := s.Buckets[bucket]
	if !ok {
		return fmt.Errorf("%w: no such bucket %q", common.ErrorNotFound, bucket)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	b[key] = Object{Body: data, ContentType: contentType}
	return nil
}

func (s *Store) Presign(_ context.Context, creds *models.Credentials, bucket, key string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(creds); err != nil {
		return "", err
	}
	q := url.Values{"X-Amz-Expires": {fmt.Sprint(int(ttl.Seconds()))}}
	return fmt.Sprintf("https://%s.example.test/%s?%s", bucket, key, q.Encode()), nil
}

func (s *Store) ListObjects(_ context.Context, creds *models.Credentials, bucket, prefix, delimiter string) (*storage.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(creds); err != nil {
		return nil, err
	}
	b, ok := s.Buckets[bucket]
	if !ok {
		return nil, fmt.Errorf("%w: no such bucket %q", common.ErrorNotFound, bucket)
	}

	out := &storage.Listing{Objects: []storage.ObjectInfo{}, CommonPrefixes: []string{}}
	seen := map[string]bool{}
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if delimiter != "" {
			if i := strings.Index(k[len(prefix):], delimiter); i >= 0 {
				p := k[:len(prefix)+i+len(delimiter)]
				if !seen[p] {
					seen[p] = true
					out.CommonPrefixes = append(out.CommonPrefixes, p)
				}
				continue
			}
		}
		out.Objects = append(out.Objects, storage.ObjectInfo{Key: k, Size: int64(len(b[k].Body))})
	}
	return out, nil
}

func (s *Store) ListBuckets(_ context.Context, creds *models.Credentials) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(creds); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(s.Buckets))
	for n := range s.Buckets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Object returns the stored object and whether it exists.
func (s *Store) Object(bucket, key string) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.Buckets[bucket][key]
	return o, ok
}

var _ storage.Store = (*Store)(nil)
