package grpc

import (
	"context"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// refresh probes the stores once and publishes the result.
func (s *GRPCServer) refresh(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	st := s.status.GetServiceStatus(probeCtx)
	serving := healthpb.HealthCheckResponse_SERVING
	if !st.Healthy() {
		serving = healthpb.HealthCheckResponse_NOT_SERVING
		s.logger.Warn(ctx, "reporting not serving", "errors", st.Errors)
	}
	s.health.SetServingStatus("", serving)
	s.health.SetServingStatus(ServiceName, serving)
}

func (s *GRPCServer) watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}
