package control

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/signalsfoundry/scene-reconciler/internal/logging"
	"github.com/signalsfoundry/scene-reconciler/internal/observability"
	"github.com/signalsfoundry/scene-reconciler/internal/poll"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func startServer(t *testing.T, h *Health, collector *observability.SceneCollector) healthpb.HealthClient {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := NewServer(h, collector, logging.Noop())
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func check(t *testing.T, client healthpb.HealthClient, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

func TestHealthFollowsPollOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := observability.NewSceneCollector(reg)
	if err != nil {
		t.Fatalf("NewSceneCollector: %v", err)
	}
	h := NewHealth(nil)
	client := startServer(t, h, collector)

	if got, err := check(t, client, ""); err != nil || got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("overall status = %v, %v; want SERVING", got, err)
	}
	if _, err := check(t, client, "scene.tracks"); status.Code(err) != codes.NotFound {
		t.Fatalf("unknown category err = %v, want NotFound", err)
	}

	h.Record("tracks", poll.OutcomeOK)
	if got, _ := check(t, client, "scene.tracks"); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("tracks = %v, want SERVING", got)
	}

	hook := h.Hook("tracks")
	hook(poll.OutcomeFetchFailed)
	if got, _ := check(t, client, "scene.tracks"); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("tracks = %v, want NOT_SERVING", got)
	}
	hook(poll.OutcomeCancelled)
	if got := h.Status("tracks"); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("cancelled cycle changed status to %v", got)
	}
	hook(poll.OutcomeNotFound)
	if got := h.Status("tracks"); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("not_found status = %v, want SERVING", got)
	}
	if got := h.Status("radar"); got != healthpb.HealthCheckResponse_SERVICE_UNKNOWN {
		t.Fatalf("radar status = %v, want SERVICE_UNKNOWN", got)
	}

	h.Shutdown()
	if got, _ := check(t, client, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("overall after shutdown = %v, want NOT_SERVING", got)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Health", "Check", "OK")); got < 4 {
		t.Fatalf("grpc_requests_total{OK} = %v, want >= 4", got)
	}
}

func TestRequestIDInterceptorHonoursHeader(t *testing.T) {
	interceptor := RequestIDUnaryServerInterceptor(nil)
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-request-id", "abc-123"))
	var got string
	_, err := interceptor(ctx, nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		got = logging.RequestIDFromContext(ctx)
		if logging.LoggerFromContext(ctx) == nil {
			t.Fatalf("request logger missing from context")
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if got != "abc-123" {
		t.Fatalf("request id = %q, want abc-123", got)
	}

	_, _ = interceptor(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		got = logging.RequestIDFromContext(ctx)
		return nil, nil
	})
	if got == "" || got == "abc-123" {
		t.Fatalf("generated request id = %q", got)
	}
}

func TestTracingInterceptorPassesErrors(t *testing.T) {
	interceptor := TracingUnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Watch"}
	want := status.Error(codes.Unimplemented, "nope")
	_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, want
	})
	if err != want {
		t.Fatalf("err = %v, want %v", err, want)
	}
}
