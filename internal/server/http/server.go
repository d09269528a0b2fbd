// Package http exposes the upload pipeline and the browse API over HTTP
// using gin.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/filecatalog/internal/logging"
	"github.com/dmitrijs2005/filecatalog/internal/server/metrics"
	"github.com/dmitrijs2005/filecatalog/internal/server/models"
	"github.com/dmitrijs2005/filecatalog/internal/server/storage"
	"github.com/gin-gonic/gin"
)

const defaultShutdownTimeout = 10 * time.Second

// netListen is a seam for tests that need the bound address.
var netListen = net.Listen

// Uploader processes one upload batch.
type Uploader interface {
	ProcessBatch(ctx context.Context, req models.UploadRequest) (*models.BatchResult, error)
}

// Sessions issues and verifies session tokens.
type Sessions interface {
	Login(ctx context.Context, creds models.Credentials) (string, error)
	Authenticate(token string) (*models.Credentials, error)
}

// Browser lists buckets and objects and signs retrieval URLs.
type Browser interface {
	ListBuckets(ctx context.Context, creds *models.Credentials) ([]string, error)
	ListObjects(ctx context.Context, creds *models.Credentials, bucket, prefix, delimiter string) (*storage.Listing, error)
	Presign(ctx context.Context, creds *models.Credentials, bucket, key string, ttl time.Duration) (string, error)
}

// FileLister reads the metadata catalog.
type FileLister interface {
	ListFiles(ctx context.Context, folder string, limit int) ([]*models.FileMetadata, error)
}

// Pinger backs /healthz.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Services are the collaborators behind the routes.
type Services struct {
	Uploads  Uploader
	Sessions Sessions
	Storage  Browser
	Catalog  FileLister
	Health   Pinger
}

// Options tunes request handling and shutdown.
type Options struct {
	// MaxMultipartMemory bounds the file bytes of one upload held in memory.
	MaxMultipartMemory int64
	// SpoolDir receives upload bodies that exceed MaxMultipartMemory.
	SpoolDir        string
	SessionValidity time.Duration
	SecureCookies   bool
	// ShutdownTimeout bounds how long Run waits for in-flight requests
	// after ctx is cancelled. Zero means defaultShutdownTimeout.
	ShutdownTimeout time.Duration
}

// HTTPServer serves the upload and browse API.
type HTTPServer struct {
	address string
	logger  logging.Logger
	svc     Services
	metrics *metrics.Metrics
	opts    Options
	engine  *gin.Engine
}

// NewHTTPServer builds the routed server. A nil m disables /metrics.
func NewHTTPServer(a string, l logging.Logger, svc Services, m *metrics.Metrics, opts Options) *HTTPServer {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	s := &HTTPServer{
		address: a,
		logger:  l.With("module", "http_server"),
		svc:     svc,
		metrics: m,
		opts:    opts,
	}
	s.engine = s.routes()
	return s
}

// Handler returns the routed gin engine.
func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

func (s *HTTPServer) routes() *gin.Engine {
	r := gin.New()
	r.Use(s.recovery(), s.observe(), s.session())

	r.GET("/healthz", s.healthz)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	r.POST("/login", s.login)
	r.POST("/logout", s.logout)

	r.POST("/upload", s.upload)
	r.GET("/files", s.listFiles)

	r.GET("/buckets", s.listBuckets)
	r.GET("/buckets/:bucket/objects", s.listObjects)
	r.GET("/presign", s.presign)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully. Request
// contexts derive from ctx, so a batch in progress stops starting new items
// once ctx is done. Run returns only after in-flight requests have drained
// or ShutdownTimeout has passed.
func (s *HTTPServer) Run(ctx context.Context) error {
	listen, err := netListen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	<-drained
	return nil
}
