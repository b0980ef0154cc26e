package control

import (
	"context"
	"sync"

	"github.com/signalsfoundry/scene-reconciler/internal/logging"
	"github.com/signalsfoundry/scene-reconciler/internal/observability"
	"github.com/signalsfoundry/scene-reconciler/internal/poll"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServicePrefix namespaces the per-category health service names, e.g.
// "scene.tracks".
const ServicePrefix = "scene."

// Health tracks serving status per telemetry category. A category is
// NOT_SERVING while its upstream fails to answer or answers with bodies that
// cannot be decoded, and SERVING otherwise. The overall ("") status is
// SERVING until Shutdown.
type Health struct {
	srv *health.Server
	log logging.Logger

	mu     sync.Mutex
	status map[string]healthpb.HealthCheckResponse_ServingStatus
}

// NewHealth builds a health registry with the overall status SERVING.
func NewHealth(log logging.Logger) *Health {
	if log == nil {
		log = logging.Noop()
	}
	h := &Health{
		srv:    health.NewServer(),
		log:    log,
		status: make(map[string]healthpb.HealthCheckResponse_ServingStatus),
	}
	h.srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return h
}

// Server returns the grpc health service implementation.
func (h *Health) Server() healthpb.HealthServer { return h.srv }

// Hook returns a poll cycle hook that updates the status of category.
func (h *Health) Hook(category string) func(outcome string) {
	return func(outcome string) { h.Record(category, outcome) }
}

// Record applies the outcome of one poll cycle.
func (h *Health) Record(category, outcome string) {
	var next healthpb.HealthCheckResponse_ServingStatus
	switch outcome {
	case poll.OutcomeOK, poll.OutcomeNotFound:
		next = healthpb.HealthCheckResponse_SERVING
	case poll.OutcomeFetchFailed, poll.OutcomeMalformed:
		next = healthpb.HealthCheckResponse_NOT_SERVING
	default:
		return
	}
	name := ServicePrefix + category

	h.mu.Lock()
	prev, seen := h.status[name]
	h.status[name] = next
	h.mu.Unlock()

	if seen && prev == next {
		return
	}
	h.srv.SetServingStatus(name, next)
	h.log.Info(context.Background(), "category health changed",
		logging.String("service", name),
		logging.String("status", next.String()))
}

// Status reports the last recorded status of category.
func (h *Health) Status(category string) healthpb.HealthCheckResponse_ServingStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.status[ServicePrefix+category]; ok {
		return s
	}
	return healthpb.HealthCheckResponse_SERVICE_UNKNOWN
}

// Shutdown marks every service NOT_SERVING.
func (h *Health) Shutdown() { h.srv.Shutdown() }

// NewServer builds the control-plane gRPC server with tracing, request ids
// and RPC metrics, and registers the health service on it.
func NewServer(h *Health, collector *observability.SceneCollector, log logging.Logger) *grpc.Server {
	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			RequestIDUnaryServerInterceptor(log),
			TracingUnaryServerInterceptor(),
			collector.UnaryServerInterceptor(),
		),
	)
	healthpb.RegisterHealthServer(server, h.Server())
	return server
}
