package ops

import (
	"github.com/appetiteclub/kitchenops/internal/kitchen"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthReporter publishes per-location SLO health over the standard gRPC
// health service as "ops.<location>".
type HealthReporter struct {
	server *health.Server
}

func NewHealthReporter() *HealthReporter {
	return &HealthReporter{server: health.NewServer()}
}

// RegisterGRPCService registers the health service (apt.GRPCServiceRegistrar interface)
func (h *HealthReporter) RegisterGRPCService(server *grpc.Server) {
	healthpb.RegisterHealthServer(server, h.server)
}

// Report marks a location NOT_SERVING while its health is CRITICAL.
func (h *HealthReporter) Report(locationID string, status HealthStatus) {
	if h == nil {
		return
	}
	serving := healthpb.HealthCheckResponse_SERVING
	if status == HealthCritical {
		serving = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.server.SetServingStatus(HealthServiceName(locationID), serving)
}

func HealthServiceName(locationID string) string {
	return "ops." + kitchen.NormalizeLocationID(locationID)
}

// Shutdown flips every reported location to NOT_SERVING.
func (h *HealthReporter) Shutdown() {
	if h == nil {
		return
	}
	h.server.Shutdown()
}
