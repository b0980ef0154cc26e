package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/signalsfoundry/scene-reconciler/core"
	"github.com/signalsfoundry/scene-reconciler/internal/observability"
	"github.com/signalsfoundry/scene-reconciler/kb"
	"github.com/signalsfoundry/scene-reconciler/model"
	"github.com/signalsfoundry/scene-reconciler/scene"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu      sync.Mutex
	batches [][]kafka.Message
	err     error
	closed  bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = append(w.batches, append([]kafka.Message(nil), msgs...))
	return w.err
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) messages() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []kafka.Message
	for _, b := range w.batches {
		out = append(out, b...)
	}
	return out
}

func decode(t *testing.T, m kafka.Message) TrackEvent {
	t.Helper()
	var ev TrackEvent
	require.NoError(t, json.Unmarshal(m.Value, &ev))
	return ev
}

func TestPublisherForwardsTrackLifecycle(t *testing.T) {
	w := &fakeWriter{}
	store := kb.NewKnowledgeBase(scene.NewMemory())
	p := New(w, WithFlushInterval(time.Hour))
	p.Attach(store)
	tracks := core.NewTrackReconciler(store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	_, err := tracks.Apply(context.Background(), []byte(`{"system_tracks": [{"track_id": 5, "status": "CONFIRMED", "current_state_vector": [6378137, 0, 0]}]}`))
	require.NoError(t, err)
	_, err = tracks.Apply(context.Background(), []byte(`{"system_tracks": [{"track_id": 5, "status": "COASTING", "current_state_vector": [6378137, 0, 0]}]}`))
	require.NoError(t, err)
	_, err = tracks.Apply(context.Background(), []byte(`{"system_tracks": []}`))
	require.NoError(t, err)

	cancel()
	<-done

	msgs := w.messages()
	require.Len(t, msgs, 3)
	var types []string
	for _, m := range msgs {
		require.Equal(t, "5", string(m.Key))
		types = append(types, decode(t, m).Type)
	}
	require.Equal(t, []string{"created", "updated", "removed"}, types)
	require.Equal(t, string(model.CategoryTrackCoasting), decode(t, msgs[1]).Category)
	require.InDelta(t, 0, decode(t, msgs[0]).Latitude, 1e-9)

	require.NoError(t, p.Close())
	require.True(t, w.closed)
	_, err = tracks.Apply(context.Background(), []byte(`{"system_tracks": [{"track_id": 6, "current_state_vector": [6378137, 0, 0]}]}`))
	require.NoError(t, err)
	require.Len(t, p.queue, 0, "detached publisher receives no events")
}

func TestPublisherDropsWhenQueueFull(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewDeliveryCollector(reg)
	require.NoError(t, err)
	p := New(&fakeWriter{}, WithQueueSize(2), WithMetrics(metrics))

	ev := kb.Event{Type: kb.EventTrackUpdated, Identity: "1", Time: time.Unix(0, 0)}
	require.True(t, p.Enqueue(ev))
	require.True(t, p.Enqueue(ev))
	require.False(t, p.Enqueue(ev))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.EventsDropped))
}

func TestPublisherBatchesAndCountsFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewDeliveryCollector(reg)
	require.NoError(t, err)
	w := &fakeWriter{err: errors.New("leader not available")}
	p := New(w, WithBatchSize(2), WithFlushInterval(time.Hour), WithMetrics(metrics))

	for i := 0; i < 5; i++ {
		require.True(t, p.Enqueue(kb.Event{Type: kb.EventTrackCreated, Identity: "x"}))
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for len(p.queue) > 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	require.Len(t, w.messages(), 5)
	require.Equal(t, 5.0, testutil.ToFloat64(metrics.EventsFailed))
	require.Zero(t, testutil.ToFloat64(metrics.EventsPublished))
}

func TestNewKafkaWriter(t *testing.T) {
	w := NewKafkaWriter([]string{"kafka-1:9092", "kafka-2:9092"}, "scene.tracks")
	defer w.Close()
	require.Equal(t, "scene.tracks", w.Topic)
	require.IsType(t, &kafka.Hash{}, w.Balancer)
}
