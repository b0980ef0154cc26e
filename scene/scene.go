// Package scene defines the contract between the reconcilers and the 3D
// rendering engine, plus an in-memory engine that holds the live scene for
// streaming to browser renderers and for tests.
package scene

import (
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/scene-reconciler/model"
)

// Kind is the geometry of an entity.
type Kind int

const (
	KindPoint Kind = iota
	KindPolyline
)

func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "point"
	case KindPolyline:
		return "polyline"
	default:
		return "unknown"
	}
}

// Color is an RGB colour with a 0..1 alpha.
type Color struct {
	R, G, B uint8
	A       float64
}

// RGBA builds a Color.
func RGBA(r, g, b uint8, a float64) Color {
	return Color{R: r, G: g, B: b, A: a}
}

// WithAlpha returns c with its alpha replaced.
func (c Color) WithAlpha(a float64) Color {
	c.A = a
	return c
}

// CSS renders c as a CSS rgba() string.
func (c Color) CSS() string {
	return fmt.Sprintf("rgba(%d, %d, %d, %g)", c.R, c.G, c.B, c.A)
}

// Spec describes an entity to create.
type Spec struct {
	Name      string
	Category  model.Category
	Identity  string
	Timestamp time.Time

	Kind     Kind
	Position model.Geodetic   // KindPoint
	Path     []model.Geodetic // KindPolyline

	Color     Color
	PixelSize float64
	Width     float64

	Label     string
	Show      bool
	ShowLabel bool
}

// Visual is the mutable presentation state of an entity.
type Visual struct {
	Color     Color
	Show      bool
	ShowLabel bool
	Label     string
}

// Engine is the subset of a rendering engine the reconcilers depend on.
type Engine interface {
	AddEntity(spec Spec) *Entity
	RemoveEntity(e *Entity) bool
	ListEntities() []*Entity
}

// Entity is an engine-owned handle. Its tags are fixed at creation; its
// visual state may change until it is removed.
type Entity struct {
	id   string
	seq  uint64
	spec Spec

	mu       sync.RWMutex
	visual   Visual
	onChange func()
}

func newEntity(id string, seq uint64, spec Spec, onChange func()) *Entity {
	if spec.Path != nil {
		spec.Path = append([]model.Geodetic(nil), spec.Path...)
	}
	return &Entity{
		id:   id,
		seq:  seq,
		spec: spec,
		visual: Visual{
			Color:     spec.Color,
			Show:      spec.Show,
			ShowLabel: spec.ShowLabel,
			Label:     spec.Label,
		},
		onChange: onChange,
	}
}

func (e *Entity) ID() string { return e.id }

func (e *Entity) Name() string { return e.spec.Name }

func (e *Entity) Category() model.Category { return e.spec.Category }

// Identity is the upstream identity (track id, aircraft hex) the entity
// renders, or empty for anonymous entities such as ellipsoid points.
func (e *Entity) Identity() string { return e.spec.Identity }

// Timestamp is the creation time used by decay sweeps.
func (e *Entity) Timestamp() time.Time { return e.spec.Timestamp }

func (e *Entity) Kind() Kind { return e.spec.Kind }

func (e *Entity) Position() model.Geodetic { return e.spec.Position }

func (e *Entity) PixelSize() float64 { return e.spec.PixelSize }

func (e *Entity) Width() float64 { return e.spec.Width }

func (e *Entity) HasLabel() bool { return e.spec.Label != "" }

// BaseColor is the colour the entity was created with. Fading never
// modifies it.
func (e *Entity) BaseColor() Color { return e.spec.Color }

// Path returns a copy of the polyline vertices.
func (e *Entity) Path() []model.Geodetic {
	return append([]model.Geodetic(nil), e.spec.Path...)
}

// Visual returns the current presentation state.
func (e *Entity) Visual() Visual {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.visual
}

// SetAlpha sets the displayed alpha, keeping the base RGB.
func (e *Entity) SetAlpha(a float64) {
	e.update(func(v *Visual) { v.Color = e.spec.Color.WithAlpha(a) })
}

// SetShow toggles the point or polyline.
func (e *Entity) SetShow(show bool) {
	e.update(func(v *Visual) { v.Show = show })
}

// SetLabelShow toggles the label; it is a no-op for unlabelled entities.
func (e *Entity) SetLabelShow(show bool) {
	if !e.HasLabel() {
		return
	}
	e.update(func(v *Visual) { v.ShowLabel = show })
}

// SetLabel replaces the label text.
func (e *Entity) SetLabel(text string) {
	e.update(func(v *Visual) { v.Label = text })
}

func (e *Entity) update(fn func(*Visual)) {
	e.mu.Lock()
	before := e.visual
	fn(&e.visual)
	changed := before != e.visual
	e.mu.Unlock()
	if changed && e.onChange != nil {
		e.onChange()
	}
}
