// Package server initializes and runs the filecatalog server: it opens the
// catalog, applies migrations, connects the object store and serves the
// HTTP API and the gRPC health endpoint until shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/filecatalog/internal/logging"
	"github.com/dmitrijs2005/filecatalog/internal/server/catalog"
	"github.com/dmitrijs2005/filecatalog/internal/server/config"
	"github.com/dmitrijs2005/filecatalog/internal/server/metadata"
	"github.com/dmitrijs2005/filecatalog/internal/server/metrics"
	"github.com/dmitrijs2005/filecatalog/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/filecatalog/internal/server/resolver"
	"github.com/dmitrijs2005/filecatalog/internal/server/services"
	"github.com/dmitrijs2005/filecatalog/internal/server/storage"
	"github.com/dmitrijs2005/filecatalog/internal/server/transfer"
	"github.com/dmitrijs2005/filecatalog/internal/server/upload"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	gs "github.com/dmitrijs2005/filecatalog/internal/server/grpc"
	hs "github.com/dmitrijs2005/filecatalog/internal/server/http"
)

// App owns the catalog connection and both servers.
type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	httpServer *hs.HTTPServer
	grpcServer *gs.GRPCServer
}

// NewApp validates c and connects the catalog and the object store.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	if c.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	store, err := storage.NewS3Store(ctx, storage.Opts{
		Region:       c.S3Region,
		BaseEndpoint: c.S3BaseEndpoint,
		UsePathStyle: c.S3UsePathStyle,
		AccessKey:    c.S3AccessKey,
		SecretKey:    c.S3SecretKey,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("metrics init error: %w", err)
	}

	orchestrator := upload.NewOrchestrator(
		resolver.New(c.Folders, c.IdentifierPolicy == config.IdentifiersStrict),
		transfer.NewExecutor(store, c.OperationTimeout),
		metadata.NewBuilder(metadata.NewURLBuilder(c.S3Region, c.S3BaseEndpoint)),
		catalog.NewWriter(db, rm, c.OperationTimeout),
		upload.Opts{
			DefaultBucket:       c.S3Bucket,
			CredentialsRequired: c.CredentialMode == config.CredentialsRequired,
			Concurrency:         c.UploadConcurrency,
		},
		logger,
		m,
	)

	httpServer := hs.NewHTTPServer(c.EndpointAddrHTTP, logger, hs.Services{
		Uploads:  orchestrator,
		Sessions: services.NewSessionService(store, c),
		Storage:  services.NewStorageService(store, c),
		Catalog:  services.NewCatalogService(db, rm, c),
		Health:   db,
	}, m, hs.Options{
		MaxMultipartMemory: c.MaxMultipartMemory,
		SessionValidity:    c.SessionValidityDuration,
		ShutdownTimeout:    2 * c.OperationTimeout,
	})

	grpcServer := gs.NewGRPCServer(c.EndpointAddrGRPC, logger, db, 0)

	return &App{
		config:     c,
		logger:     logger,
		db:         db,
		httpServer: httpServer,
		grpcServer: grpcServer,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

type runner interface {
	Run(ctx context.Context) error
}

// serve runs r until ctx is done. A failing server stops the whole app.
func (app *App) serve(ctx context.Context, cancelFunc context.CancelFunc, name string, r runner) {
	if err := r.Run(ctx); err != nil {
		app.logger.Error(ctx, "server failed", "server", name, "error", err)
		cancelFunc()
	}
}

// Run serves until ctx is cancelled or a signal arrives, waits for both
// servers to drain and then closes the catalog connection.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.serve(ctx, cancelFunc, "http", app.httpServer)
	}()
	go func() {
		defer wg.Done()
		app.serve(ctx, cancelFunc, "grpc", app.grpcServer)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
