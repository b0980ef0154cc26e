package core

import "sync/atomic"

// Visibility holds the process-wide display toggles. All three start on.
type Visibility struct {
	tracks atomic.Bool
	paths  atomic.Bool
	labels atomic.Bool
}

// NewVisibility returns toggles with everything shown.
func NewVisibility() *Visibility {
	v := &Visibility{}
	v.tracks.Store(true)
	v.paths.Store(true)
	v.labels.Store(true)
	return v
}

func (v *Visibility) Tracks() bool { return v.tracks.Load() }
func (v *Visibility) Paths() bool  { return v.paths.Load() }
func (v *Visibility) Labels() bool { return v.labels.Load() }

func (v *Visibility) setTracks(b bool) { v.tracks.Store(b) }
func (v *Visibility) setPaths(b bool)  { v.paths.Store(b) }
func (v *Visibility) setLabels(b bool) { v.labels.Store(b) }

// VisibilityState is the serialisable view of the toggles.
type VisibilityState struct {
	Tracks bool `json:"tracks"`
	Paths  bool `json:"paths"`
	Labels bool `json:"labels"`
}

// State returns a copy of the toggles.
func (v *Visibility) State() VisibilityState {
	return VisibilityState{Tracks: v.Tracks(), Paths: v.Paths(), Labels: v.Labels()}
}
