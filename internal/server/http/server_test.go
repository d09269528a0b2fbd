package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/filecatalog/internal/common"
	"github.com/dmitrijs2005/filecatalog/internal/logging"
	"github.com/dmitrijs2005/filecatalog/internal/server/config"
	"github.com/dmitrijs2005/filecatalog/internal/server/metadata"
	"github.com/dmitrijs2005/filecatalog/internal/server/metrics"
	"github.com/dmitrijs2005/filecatalog/internal/server/models"
	"github.com/dmitrijs2005/filecatalog/internal/server/resolver"
	"github.com/dmitrijs2005/filecatalog/internal/server/services"
	"github.com/dmitrijs2005/filecatalog/internal/server/storage/storagetest"
	"github.com/dmitrijs2005/filecatalog/internal/server/transfer"
	"github.com/dmitrijs2005/filecatalog/internal/server/upload"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type recordingCatalog struct {
	mu   sync.Mutex
	recs []models.FileMetadata
	err  error
}

func (r *recordingCatalog) Insert(_ context.Context, rec *models.FileMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	rec.ID = int64(len(r.recs) + 1)
	r.recs = append(r.recs, *rec)
	return nil
}

func (r *recordingCatalog) ListFiles(_ context.Context, folder string, limit int) ([]*models.FileMetadata, error) {
	if limit < 0 {
		return nil, common.ErrValidation
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.FileMetadata{}
	for i := range r.recs {
		if folder == "" || r.recs[i].Folder == folder {
			rec := r.recs[i]
			out = append(out, &rec)
		}
	}
	return out, nil
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

type fixture struct {
	srv     *HTTPServer
	store   *storagetest.Store
	catalog *recordingCatalog
	health  *fakePinger
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	if mutate != nil {
		mutate(cfg)
	}

	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	st := storagetest.New(cfg.S3Bucket, "other")
	cat := &recordingCatalog{}
	health := &fakePinger{}

	orch := upload.NewOrchestrator(
		resolver.New(cfg.Folders, cfg.IdentifierPolicy == config.IdentifiersStrict),
		transfer.NewExecutor(st, cfg.OperationTimeout),
		metadata.NewBuilder(metadata.NewURLBuilder(cfg.S3Region, cfg.S3BaseEndpoint)),
		cat,
		upload.Opts{
			DefaultBucket:       cfg.S3Bucket,
			CredentialsRequired: cfg.CredentialMode == config.CredentialsRequired,
			Concurrency:         cfg.UploadConcurrency,
		},
		logging.Nop{},
		m,
	)

	srv := NewHTTPServer("127.0.0.1:0", logging.Nop{}, Services{
		Uploads:  orch,
		Sessions: services.NewSessionService(st, cfg),
		Storage:  services.NewStorageService(st, cfg),
		Catalog:  cat,
		Health:   health,
	}, m, Options{
		MaxMultipartMemory: 16,
		SpoolDir:           t.TempDir(),
		SessionValidity:    cfg.SessionValidityDuration,
	})

	return &fixture{srv: srv, store: st, catalog: cat, health: health}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

type part struct {
	field, fileName, body string
}

func multipartRequest(t *testing.T, parts ...part) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		if p.field == "files" || p.field == "files[]" {
			w, err := mw.CreateFormFile(p.field, p.fileName)
			require.NoError(t, err)
			_, err = w.Write([]byte(p.body))
			require.NoError(t, err)
			continue
		}
		require.NoError(t, mw.WriteField(p.field, p.body))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

type uploadBody struct {
	Message string              `json:"message"`
	BatchID string              `json:"batch_id"`
	Files   []models.ItemResult `json:"files"`
	Skipped int                 `json:"skipped"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestUpload_MixedBatch(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(multipartRequest(t,
		part{"files", "a.txt", "alpha"},
		part{"ids", "", "1"},
		part{"files", "b.png", strings.Repeat("b", 64)},
		part{"ids", "", "2"},
		part{"files", "c", "c"},
		part{"ids", "", "9"},
	))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode[uploadBody](t, w)
	assert.Equal(t, models.MessageSomeFailed, body.Message)
	assert.NotEmpty(t, body.BatchID)
	require.Len(t, body.Files, 3)
	assert.Equal(t, models.StatusSuccess, body.Files[0].Status)
	assert.Equal(t, models.StatusSuccess, body.Files[1].Status)
	assert.Equal(t, models.StatusFailed, body.Files[2].Status)
	assert.Equal(t, models.KindUnknownIdentifier, body.Files[2].Error.Kind)

	obj, ok := f.store.Object("files-bucket-b", "Folder-1/a.txt")
	require.True(t, ok)
	assert.Equal(t, "alpha", string(obj.Body))
	assert.True(t, strings.HasPrefix(obj.ContentType, "text/plain"))

	obj, ok = f.store.Object("files-bucket-b", "Folder-2/b.png")
	require.True(t, ok)
	assert.Len(t, obj.Body, 64)
	assert.Equal(t, "image/png", obj.ContentType)

	require.Len(t, f.catalog.recs, 2)
	assert.Equal(t, int64(64), f.catalog.recs[1].FileSizeBytes)
	assert.Equal(t, "https://files-bucket-b.s3.ap-south-1.amazonaws.com/Folder-2/", f.catalog.recs[1].FolderURL)
}

func TestUpload_AllSucceeded(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(multipartRequest(t,
		part{"files[]", "a.txt", "a"},
		part{"files[]", "", ""},
		part{"ids[]", "", "1"},
		part{"ids[]", "", "2"},
		part{"bucket", "", "other"},
	))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode[uploadBody](t, w)
	assert.Equal(t, models.MessageAllUploaded, body.Message)
	assert.Equal(t, 1, body.Skipped)
	require.Len(t, body.Files, 1)
	assert.Equal(t, "other", body.Files[0].Bucket)

	_, ok := f.store.Object("other", "Folder-1/a.txt")
	assert.True(t, ok)
}

func TestUpload_LengthMismatch(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(multipartRequest(t,
		part{"files", "a.txt", "a"},
		part{"files", "b.txt", "b"},
		part{"ids", "", "1"},
	))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.store.Creds)
	assert.Empty(t, f.catalog.recs)
}

func TestUpload_NotMultipart(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusBadRequest, f.do(req).Code)
}

func TestUpload_RequiredCredentials(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.CredentialMode = config.CredentialsRequired })

	w := f.do(multipartRequest(t, part{"files", "a.txt", "a"}, part{"ids", "", "1"}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, f.store.Creds)
}

func login(t *testing.T, f *fixture, creds models.Credentials) *http.Cookie {
	t.Helper()
	body, err := json.Marshal(map[string]string{"access_key": creds.AccessKey, "secret_key": creds.SecretKey})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := f.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	for _, c := range w.Result().Cookies() {
		if c.Name == common.SessionCookieName {
			assert.True(t, c.HttpOnly)
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func TestUpload_WithSessionUsesCallerCredentials(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.CredentialMode = config.CredentialsRequired })
	creds := models.Credentials{AccessKey: "AK", SecretKey: "SK"}
	cookie := login(t, f, creds)

	req := multipartRequest(t, part{"files", "a.txt", "a"}, part{"ids", "", "1"})
	req.AddCookie(cookie)
	w := f.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// login check, then the upload itself
	require.Len(t, f.store.Creds, 2)
	assert.Equal(t, creds, *f.store.Creds[1])
}

func TestLogin_Validation(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"access_key":"AK"}`))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusBadRequest, f.do(req).Code)
}

func TestLogin_Rejected(t *testing.T) {
	f := newFixture(t, nil)
	f.store.Err = fmt.Errorf("list buckets: %w: InvalidAccessKeyId", common.ErrorUnauthorized)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"access_key":"AK","secret_key":"SK"}`))
	req.Header.Set("Content-Type", "application/json")
	w := f.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, w.Result().Cookies())
}

func TestSession_BearerToken(t *testing.T) {
	f := newFixture(t, nil)
	cookie := login(t, f, models.Credentials{AccessKey: "AK", SecretKey: "SK"})

	req := httptest.NewRequest(http.MethodGet, "/buckets", nil)
	req.Header.Set("Authorization", "Bearer "+cookie.Value)
	w := f.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "AK", f.store.Creds[len(f.store.Creds)-1].AccessKey)
}

func TestSession_InvalidTokenIsRejected(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/buckets", nil)
	req.AddCookie(&http.Cookie{Name: common.SessionCookieName, Value: "garbage"})
	w := f.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, f.store.Creds)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestLogout_ClearsCookie(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(httptest.NewRequest(http.MethodPost, "/logout", nil))
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, common.SessionCookieName, cookies[0].Name)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestPresign_DefaultTTL(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(httptest.NewRequest(http.MethodGet, "/presign?key=Folder-1/nope.txt", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode[presignResponse](t, w)
	assert.Contains(t, body.URL, "X-Amz-Expires=43200")
	assert.Nil(t, body.ExpiresAt)
}

func TestPresign_ExplicitTTL(t *testing.T) {
	f := newFixture(t, nil)

	for _, ttl := range []string{"90m", "5400"} {
		w := f.do(httptest.NewRequest(http.MethodGet, "/presign?bucket=other&key=k&ttl="+ttl, nil))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := decode[presignResponse](t, w)
		assert.Contains(t, body.URL, "X-Amz-Expires=5400")
		assert.NotNil(t, body.ExpiresAt)
	}
}

func TestPresign_BadRequests(t *testing.T) {
	f := newFixture(t, nil)

	for _, q := range []string{"", "?key=k&ttl=abc", "?key=k&ttl=-5", "?key=k&ttl=800h"} {
		w := f.do(httptest.NewRequest(http.MethodGet, "/presign"+q, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestListBuckets(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(httptest.NewRequest(http.MethodGet, "/buckets", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string][]string](t, w)
	assert.Equal(t, []string{"files-bucket-b", "other"}, body["buckets"])
	assert.Nil(t, f.store.Creds[0])
}

func TestLogin_StoreUnreachable(t *testing.T) {
	f := newFixture(t, nil)
	f.store.Err = errors.New("list buckets: dial tcp: lookup s3.local: no such host")

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"access_key":"AK","secret_key":"SK"}`))
	req.Header.Set("Content-Type", "application/json")
	w := f.do(req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, w.Result().Cookies())
}

func TestListBuckets_StoreFailureHidesDetails(t *testing.T) {
	f := newFixture(t, nil)
	f.store.Err = errors.New("dial tcp 10.0.0.1:443: secret detail")

	w := f.do(httptest.NewRequest(http.MethodGet, "/buckets", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "secret detail")
}

func TestListObjects(t *testing.T) {
	f := newFixture(t, nil)
	f.store.Buckets["files-bucket-b"]["Folder-1/a.txt"] = storagetest.Object{Body: []byte("a")}
	f.store.Buckets["files-bucket-b"]["Folder-2/b.txt"] = storagetest.Object{Body: []byte("b")}

	w := f.do(httptest.NewRequest(http.MethodGet, "/buckets/files-bucket-b/objects?delimiter=/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"objects":[],"common_prefixes":["Folder-1/","Folder-2/"]}`, w.Body.String())
}

func TestListObjects_MissingBucket(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(httptest.NewRequest(http.MethodGet, "/buckets/missing/objects", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListFiles(t *testing.T) {
	f := newFixture(t, nil)
	f.catalog.recs = []models.FileMetadata{
		{ID: 1, FileName: "a.txt", Folder: "Folder-1"},
		{ID: 2, FileName: "b.txt", Folder: "Folder-2"},
	}

	w := f.do(httptest.NewRequest(http.MethodGet, "/files?folder=Folder-2", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string][]models.FileMetadata](t, w)
	require.Len(t, body["files"], 1)
	assert.Equal(t, "b.txt", body["files"][0].FileName)

	w = f.do(httptest.NewRequest(http.MethodGet, "/files?limit=x", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, http.StatusOK, f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)

	f.health.err = errors.New("db down")
	assert.Equal(t, http.StatusServiceUnavailable, f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.do(multipartRequest(t, part{"files", "a.txt", "a"}, part{"ids", "", "1"}))

	w := f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `filecatalog_upload_items_total{kind="",status="success"} 1`)
	assert.Contains(t, w.Body.String(), `route="/upload"`)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{common.ErrValidation, http.StatusBadRequest},
		{common.ErrConfig, http.StatusUnauthorized},
		{common.ErrorUnauthorized, http.StatusUnauthorized},
		{common.ErrInvalidToken, http.StatusUnauthorized},
		{common.ErrorNotFound, http.StatusNotFound},
		{common.ErrTimeout, http.StatusGatewayTimeout},
		{common.ErrCatalog, http.StatusServiceUnavailable},
		{errors.New("x"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestTTLQuery(t *testing.T) {
	d, err := ttlQuery("")
	require.NoError(t, err)
	assert.Zero(t, d)

	d, err = ttlQuery("60")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	d, err = ttlQuery("2h")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, d)

	_, err = ttlQuery("0")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	f := newFixture(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Run(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

type slowUploader struct {
	started  chan struct{}
	delay    time.Duration
	finished atomic.Bool
	ctxDone  atomic.Bool
}

func (u *slowUploader) ProcessBatch(ctx context.Context, _ models.UploadRequest) (*models.BatchResult, error) {
	close(u.started)
	time.Sleep(u.delay)
	u.ctxDone.Store(ctx.Err() != nil)
	u.finished.Store(true)
	return &models.BatchResult{BatchID: "b1", Items: []models.ItemResult{}}, nil
}

func TestRun_WaitsForInflightUpload(t *testing.T) {
	addrs := make(chan string, 1)
	orig := netListen
	t.Cleanup(func() { netListen = orig })
	netListen = func(network, address string) (net.Listener, error) {
		l, err := orig(network, address)
		if err == nil {
			addrs <- l.Addr().String()
		}
		return l, err
	}

	up := &slowUploader{started: make(chan struct{}), delay: 500 * time.Millisecond}
	srv := NewHTTPServer("127.0.0.1:0", logging.Nop{}, Services{Uploads: up}, nil, Options{
		MaxMultipartMemory: 16,
		SpoolDir:           t.TempDir(),
		ShutdownTimeout:    5 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	var addr string
	select {
	case addr = <-addrs:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not start listening")
	}

	req := multipartRequest(t, part{"files", "a.txt", "hello"}, part{"ids", "", "1"})
	req.URL.Scheme = "http"
	req.URL.Host = addr
	req.RequestURI = ""

	status := make(chan int, 1)
	go func() {
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			status <- 0
			return
		}
		_ = resp.Body.Close()
		status <- resp.StatusCode
	}()

	select {
	case <-up.started:
	case <-time.After(2 * time.Second):
		t.Fatal("batch did not start")
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	assert.True(t, up.finished.Load(), "Run returned before the in-flight batch finished")
	assert.True(t, up.ctxDone.Load(), "batch context should be cancelled on shutdown")
	assert.Equal(t, http.StatusOK, <-status)
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	srv := NewHTTPServer("127.0.0.1:99999", logging.Nop{}, Services{}, nil, Options{})
	assert.Error(t, srv.Run(context.Background()))
}
