package server

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// CoordinationService is the health service name reporting whether the observer can reach the others.
const CoordinationService = "chatpair.Coordination"

type Connectivity interface {
	Connected() bool
}

// HealthServer exposes the standard gRPC health protocol. The overall status is serving as long
// as the process runs; the coordination status follows the transport connectivity.
type HealthServer struct {
	log          *slog.Logger
	health       *health.Server
	connectivity Connectivity
	interval     time.Duration
}

// NewHealthServer reports the coordination service as serving when connectivity is nil.
func NewHealthServer(log *slog.Logger, connectivity Connectivity, interval time.Duration) *HealthServer {
	if interval <= 0 {
		interval = time.Second
	}
	h := &HealthServer{log: log, health: health.NewServer(), connectivity: connectivity, interval: interval}
	h.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.refresh()
	return h
}

func (h *HealthServer) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.health)
}

// Run keeps the coordination status up to date. Stopping it marks every service as not serving.
func (h *HealthServer) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			return nil
		case <-ticker.C:
			h.refresh()
		}
	}
}

func (h *HealthServer) refresh() {
	status := healthpb.HealthCheckResponse_SERVING
	if h.connectivity != nil && !h.connectivity.Connected() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus(CoordinationService, status)
}
