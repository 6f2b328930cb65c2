package httpapi

import (
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the gRPC health service name reported for the session
// loop.
const HealthService = "headfix"

// HealthServer serves the standard gRPC health protocol. HealthService is
// NOT_SERVING until SetServing(true).
type HealthServer struct {
	grpc   *grpc.Server
	health *health.Server
	logger zerolog.Logger
}

func NewHealthServer(logger zerolog.Logger) *HealthServer {
	gs := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	return &HealthServer{grpc: gs, health: hs, logger: logger}
}

func (h *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(HealthService, status)
	h.logger.Debug().Stringer("status", status).Msg("health status")
}

// Serve blocks until Stop is called or lis fails.
func (h *HealthServer) Serve(lis net.Listener) error {
	return h.grpc.Serve(lis)
}

// Stop marks every service NOT_SERVING and stops the server.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.grpc.GracefulStop()
}
