// Package grpc serves the standard gRPC health service. The reported
// status follows catalog reachability.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/filecatalog/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name of the catalog. The empty name
// reports the same status.
const ServiceName = "filecatalog.Catalog"

// Pinger reports whether the catalog database is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// GRPCServer serves the standard gRPC health service for ServiceName.
type GRPCServer struct {
	address  string
	logger   logging.Logger
	db       Pinger
	interval time.Duration
	health   *health.Server
}

// NewGRPCServer returns a server that reports NOT_SERVING until the first
// successful database ping.
func NewGRPCServer(a string, l logging.Logger, db Pinger, interval time.Duration) *GRPCServer {
	s := &GRPCServer{
		address:  a,
		logger:   l.With("module", "grpc_server"),
		db:       db,
		interval: interval,
		health:   health.NewServer(),
	}
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Run serves until ctx is cancelled and returns once GracefulStop has
// finished.
func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	// creates gRPC-server
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))

	// registers service
	healthpb.RegisterHealthServer(srv, s.health)

	go s.watch(ctx)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	<-stopped
	return nil
}
