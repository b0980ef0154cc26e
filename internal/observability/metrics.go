package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/signalsfoundry/scene-reconciler/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// SceneCollector bundles Prometheus metrics for the poll loops and the scene
// they maintain, plus the gRPC control surface.
type SceneCollector struct {
	gatherer prometheus.Gatherer

	Polls        *prometheus.CounterVec
	PollDuration *prometheus.HistogramVec
	ItemsSkipped *prometheus.CounterVec
	Entities     *prometheus.GaugeVec
	Tracks       *prometheus.GaugeVec

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec
}

// NewSceneCollector registers scene Prometheus metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSceneCollector(reg prometheus.Registerer) (*SceneCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	polls, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scene_polls_total",
		Help: "Completed poll cycles, labeled by telemetry category and outcome.",
	}, []string{"category", "outcome"}), "scene_polls_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scene_poll_duration_seconds",
		Help:    "Fetch plus reconciliation time of one poll cycle.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"category"}), "scene_poll_duration_seconds")
	if err != nil {
		return nil, err
	}

	skipped, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scene_items_skipped_total",
		Help: "Snapshot items skipped because they could not be decoded, validated or converted.",
	}, []string{"category"}), "scene_items_skipped_total")
	if err != nil {
		return nil, err
	}

	entities, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scene_entities",
		Help: "Current number of scene entities, labeled by category tag.",
	}, []string{"category"}), "scene_entities")
	if err != nil {
		return nil, err
	}

	tracks, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scene_tracks",
		Help: "Track legend counters from the last track snapshot.",
	}, []string{"kind"}), "scene_tracks")
	if err != nil {
		return nil, err
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grpc_requests_total",
		Help: "Total number of handled gRPC calls, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "grpc_requests_total")
	if err != nil {
		return nil, err
	}

	rpcDurations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "grpc_request_duration_seconds",
		Help:    "gRPC call latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"service", "method"}), "grpc_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &SceneCollector{
		gatherer:     gatherer,
		Polls:        polls,
		PollDuration: durations,
		ItemsSkipped: skipped,
		Entities:     entities,
		Tracks:       tracks,
		RPCRequests:  requests,
		RPCDurations: rpcDurations,
	}, nil
}

// CycleFinished records one poll cycle.
func (c *SceneCollector) CycleFinished(category, outcome string, took time.Duration, skipped int) {
	if c == nil {
		return
	}
	c.Polls.WithLabelValues(category, outcome).Inc()
	c.PollDuration.WithLabelValues(category).Observe(took.Seconds())
	if skipped > 0 {
		c.ItemsSkipped.WithLabelValues(category).Add(float64(skipped))
	}
}

// SetTrackCounts publishes the track legend.
func (c *SceneCollector) SetTrackCounts(total, adsb, radarOnly int) {
	if c == nil {
		return
	}
	c.Tracks.WithLabelValues("total").Set(float64(total))
	c.Tracks.WithLabelValues("adsb").Set(float64(adsb))
	c.Tracks.WithLabelValues("radar_only").Set(float64(radarOnly))
}

// SetEntityCounts replaces the per-category entity gauges. Categories that
// disappeared from counts are reset to zero rather than left stale.
func (c *SceneCollector) SetEntityCounts(counts map[model.Category]int) {
	if c == nil {
		return
	}
	c.Entities.Reset()
	for cat, n := range counts {
		c.Entities.WithLabelValues(string(cat)).Set(float64(n))
	}
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *SceneCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		c.RPCRequests.WithLabelValues(service, method, code).Inc()
		c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())

		return resp, err
	}
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SceneCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SceneCollector) Handler() http.Handler {
	gatherer := c.Gatherer()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
