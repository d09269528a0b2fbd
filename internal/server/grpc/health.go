package grpc

import (
	"context"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const defaultCheckInterval = 15 * time.Second

// watch re-checks the catalog every interval until ctx is done.
func (s *GRPCServer) watch(ctx context.Context) {
	interval := s.interval
	if interval <= 0 {
		interval = defaultCheckInterval
	}

	s.check(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

// check pings the catalog once and publishes the result.
func (s *GRPCServer) check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Warn(ctx, "catalog unreachable", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.setStatus(status)
	return status
}

func (s *GRPCServer) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
