package scene

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/signalsfoundry/scene-reconciler/model"
)

// Memory is an in-process Engine. It keeps entities in insertion order and a
// version counter that increases on every structural or visual change, so
// that streaming clients can tell when the scene needs re-sending.
type Memory struct {
	mu       sync.RWMutex
	entities map[string]*Entity
	seq      uint64

	version atomic.Uint64
}

// NewMemory returns an empty in-memory engine.
func NewMemory() *Memory {
	return &Memory{entities: make(map[string]*Entity)}
}

// AddEntity creates an entity from spec and returns its handle.
func (m *Memory) AddEntity(spec Spec) *Entity {
	m.mu.Lock()
	m.seq++
	e := newEntity(uuid.NewString(), m.seq, spec, m.bump)
	m.entities[e.id] = e
	m.mu.Unlock()

	m.bump()
	return e
}

// RemoveEntity removes e; it reports false when e is nil or was not present.
func (m *Memory) RemoveEntity(e *Entity) bool {
	if e == nil {
		return false
	}
	m.mu.Lock()
	_, ok := m.entities[e.id]
	if ok {
		delete(m.entities, e.id)
	}
	m.mu.Unlock()

	if ok {
		m.bump()
	}
	return ok
}

// ListEntities returns all live entities in creation order.
func (m *Memory) ListEntities() []*Entity {
	m.mu.RLock()
	out := make([]*Entity, 0, len(m.entities))
	for _, e := range m.entities {
		out = append(out, e)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Len returns the number of live entities.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entities)
}

// Version increases whenever the scene changes.
func (m *Memory) Version() uint64 {
	return m.version.Load()
}

// CountByCategory returns the number of live entities per category tag.
func (m *Memory) CountByCategory() map[model.Category]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[model.Category]int)
	for _, e := range m.entities {
		counts[e.spec.Category]++
	}
	return counts
}

func (m *Memory) bump() {
	m.version.Add(1)
}

// EntityState is the serialisable view of one entity.
type EntityState struct {
	ID        string           `json:"id"`
	Name      string           `json:"name,omitempty"`
	Category  model.Category   `json:"category"`
	Identity  string           `json:"identity,omitempty"`
	Kind      string           `json:"kind"`
	Position  *model.Geodetic  `json:"position,omitempty"`
	Path      []model.Geodetic `json:"path,omitempty"`
	Color     string           `json:"color"`
	PixelSize float64          `json:"pixelSize,omitempty"`
	Width     float64          `json:"width,omitempty"`
	Label     string           `json:"label,omitempty"`
	Show      bool             `json:"show"`
	ShowLabel bool             `json:"showLabel"`
	CreatedAt time.Time        `json:"createdAt"`
}

// State returns the serialisable view of e.
func (e *Entity) State() EntityState {
	v := e.Visual()
	st := EntityState{
		ID:        e.id,
		Name:      e.spec.Name,
		Category:  e.spec.Category,
		Identity:  e.spec.Identity,
		Kind:      e.spec.Kind.String(),
		Color:     v.Color.CSS(),
		PixelSize: e.spec.PixelSize,
		Width:     e.spec.Width,
		Label:     v.Label,
		Show:      v.Show,
		ShowLabel: v.ShowLabel,
		CreatedAt: e.spec.Timestamp,
	}
	switch e.spec.Kind {
	case KindPoint:
		pos := e.spec.Position
		st.Position = &pos
	case KindPolyline:
		st.Path = e.Path()
	}
	return st
}

// Snapshot is a versioned view of the whole scene.
type Snapshot struct {
	Version  uint64        `json:"version"`
	Entities []EntityState `json:"entities"`
}

// Snapshot captures every live entity.
func (m *Memory) Snapshot() Snapshot {
	version := m.Version()
	list := m.ListEntities()
	out := Snapshot{Version: version, Entities: make([]EntityState, 0, len(list))}
	for _, e := range list {
		out.Entities = append(out.Entities, e.State())
	}
	return out
}
