// Package stream pushes the scene to browser renderers over websockets and
// exposes the legend and visibility toggles over HTTP.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/signalsfoundry/scene-reconciler/core"
	"github.com/signalsfoundry/scene-reconciler/internal/logging"
	"github.com/signalsfoundry/scene-reconciler/internal/observability"
	"github.com/signalsfoundry/scene-reconciler/scene"
)

const (
	writeWait       = 5 * time.Second
	DefaultInterval = 250 * time.Millisecond
)

// SceneSource is the versioned scene being streamed.
type SceneSource interface {
	Snapshot() scene.Snapshot
	Version() uint64
}

// Controls is the track UI contract.
type Controls interface {
	Legend() core.Legend
	Visibility() core.VisibilityState
	SetTracksVisible(bool)
	SetPathsVisible(bool)
	SetLabelsVisible(bool)
}

// Update is one message sent to subscribers.
type Update struct {
	Version    uint64               `json:"version"`
	Entities   []scene.EntityState  `json:"entities"`
	Legend     core.Legend          `json:"legend"`
	Visibility core.VisibilityState `json:"visibility"`
}

type subscriber struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub fans scene updates out to websocket subscribers whenever the scene
// version moves.
type Hub struct {
	src      SceneSource
	controls Controls
	log      logging.Logger
	metrics  *observability.DeliveryCollector
	interval time.Duration
	upgrader websocket.Upgrader

	mu       sync.Mutex
	subs     map[string]*subscriber
	lastSent uint64
	sent     bool
}

// HubOption customises a Hub.
type HubOption func(*Hub)

func WithLogger(log logging.Logger) HubOption {
	return func(h *Hub) {
		if log != nil {
			h.log = log
		}
	}
}

func WithMetrics(m *observability.DeliveryCollector) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// WithInterval sets how often Run checks the scene version.
func WithInterval(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.interval = d
		}
	}
}

// NewHub builds a hub over src and controls.
func NewHub(src SceneSource, controls Controls, opts ...HubOption) *Hub {
	h := &Hub{
		src:      src,
		controls: controls,
		log:      logging.Noop(),
		interval: DefaultInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subs: make(map[string]*subscriber),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Current builds the message describing the scene right now.
func (h *Hub) Current() Update {
	snap := h.src.Snapshot()
	u := Update{Version: snap.Version, Entities: snap.Entities}
	if h.controls != nil {
		u.Legend = h.controls.Legend()
		u.Visibility = h.controls.Visibility()
	}
	return u
}

// Clients reports the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeWS upgrades the request and streams updates until the peer goes away.
// The current scene is sent immediately on connect.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", logging.Err(err))
		return
	}
	sub := &subscriber{id: uuid.NewString(), conn: conn}

	data, err := json.Marshal(h.Current())
	if err == nil {
		err = sub.write(data)
	}
	if err != nil {
		h.log.Warn(r.Context(), "initial scene write failed", logging.Err(err))
		_ = conn.Close()
		return
	}

	h.mu.Lock()
	h.subs[sub.id] = sub
	n := len(h.subs)
	h.mu.Unlock()
	h.metrics.SetStreamClients(n)
	h.log.Info(r.Context(), "scene subscriber connected",
		logging.String("subscriber", sub.id),
		logging.String("remote", conn.RemoteAddr().String()))

	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}
	h.drop(r.Context(), sub.id)
}

func (h *Hub) drop(ctx context.Context, id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	delete(h.subs, id)
	n := len(h.subs)
	h.mu.Unlock()
	if !ok {
		return
	}
	_ = sub.conn.Close()
	h.metrics.SetStreamClients(n)
	h.log.Info(ctx, "scene subscriber disconnected", logging.String("subscriber", id))
}

// Broadcast sends the current scene to every subscriber when its version
// is newer than the last one sent, or unconditionally when force is set. It
// reports whether a message went out.
func (h *Hub) Broadcast(ctx context.Context, force bool) bool {
	version := h.src.Version()
	h.mu.Lock()
	if !force && h.sent && version <= h.lastSent {
		h.mu.Unlock()
		return false
	}
	subs := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	start := time.Now()
	update := h.Current()
	data, err := json.Marshal(update)
	if err != nil {
		h.log.Error(ctx, "encode scene update", logging.Err(err))
		return false
	}
	for _, s := range subs {
		if err := s.write(data); err != nil {
			h.log.Debug(ctx, "scene write failed", logging.String("subscriber", s.id), logging.Err(err))
			h.drop(ctx, s.id)
		}
	}

	h.mu.Lock()
	// Concurrent broadcasts may finish out of order.
	if !h.sent || update.Version > h.lastSent {
		h.lastSent = update.Version
	}
	h.sent = true
	h.mu.Unlock()
	h.metrics.ObserveBroadcast(time.Since(start))
	return true
}

// Run broadcasts on every version change until ctx is cancelled, then closes
// all subscriber connections.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	defer h.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Broadcast(ctx, false)
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*subscriber)
	h.mu.Unlock()
	for _, s := range subs {
		s.mu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		s.mu.Unlock()
		_ = s.conn.Close()
	}
	h.metrics.SetStreamClients(0)
}

var errNoControls = errors.New("track controls not configured")
