package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DeliveryCollector exposes metrics for the outbound paths: websocket scene
// streaming and track event publishing.
type DeliveryCollector struct {
	gatherer prometheus.Gatherer

	StreamClients     prometheus.Gauge
	BroadcastDuration prometheus.Histogram
	EventsPublished   prometheus.Counter
	EventsFailed      prometheus.Counter
	EventsDropped     prometheus.Counter
}

// NewDeliveryCollector registers delivery metrics against the provided registerer.
func NewDeliveryCollector(reg prometheus.Registerer) (*DeliveryCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	clients, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scene_stream_clients",
		Help: "Number of connected websocket scene subscribers.",
	}), "scene_stream_clients")
	if err != nil {
		return nil, err
	}

	broadcast, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scene_stream_broadcast_duration_seconds",
		Help:    "Time to encode and fan out one scene update to all subscribers.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}), "scene_stream_broadcast_duration_seconds")
	if err != nil {
		return nil, err
	}

	published, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scene_track_events_published_total",
		Help: "Track lifecycle events written to the message broker.",
	}), "scene_track_events_published_total")
	if err != nil {
		return nil, err
	}

	failed, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scene_track_events_failed_total",
		Help: "Track lifecycle events the message broker rejected.",
	}), "scene_track_events_failed_total")
	if err != nil {
		return nil, err
	}

	dropped, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scene_track_events_dropped_total",
		Help: "Track lifecycle events dropped because the publish queue was full.",
	}), "scene_track_events_dropped_total")
	if err != nil {
		return nil, err
	}

	return &DeliveryCollector{
		gatherer:          gatherer,
		StreamClients:     clients,
		BroadcastDuration: broadcast,
		EventsPublished:   published,
		EventsFailed:      failed,
		EventsDropped:     dropped,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *DeliveryCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// SetStreamClients updates the subscriber gauge.
func (c *DeliveryCollector) SetStreamClients(n int) {
	if c == nil || c.StreamClients == nil {
		return
	}
	c.StreamClients.Set(float64(n))
}

// ObserveBroadcast records one fan-out.
func (c *DeliveryCollector) ObserveBroadcast(d time.Duration) {
	if c == nil || c.BroadcastDuration == nil {
		return
	}
	c.BroadcastDuration.Observe(d.Seconds())
}

// EventsWritten records the outcome of one broker write of n events.
func (c *DeliveryCollector) EventsWritten(n int, err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.EventsFailed.Add(float64(n))
		return
	}
	c.EventsPublished.Add(float64(n))
}

// EventDropped records one event lost to a full queue.
func (c *DeliveryCollector) EventDropped() {
	if c == nil || c.EventsDropped == nil {
		return
	}
	c.EventsDropped.Inc()
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
