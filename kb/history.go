package kb

import (
	"time"

	"github.com/signalsfoundry/scene-reconciler/model"
)

// DefaultHistoryLength is the trail length kept per track.
const DefaultHistoryLength = 50

// HistoryEntry is one sample of a track's trail.
type HistoryEntry struct {
	Longitude float64   `json:"longitude"`
	Latitude  float64   `json:"latitude"`
	Altitude  float64   `json:"altitude"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHistoryEntry stamps a geodetic position.
func NewHistoryEntry(p model.Geodetic, at time.Time) HistoryEntry {
	return HistoryEntry{Longitude: p.Longitude, Latitude: p.Latitude, Altitude: p.Altitude, Timestamp: at}
}

// Position returns the geodetic position of the sample.
func (h HistoryEntry) Position() model.Geodetic {
	return model.Geodetic{Latitude: h.Latitude, Longitude: h.Longitude, Altitude: h.Altitude}
}

// History is a bounded, oldest-first sequence of trail samples.
type History struct {
	capacity int
	entries  []HistoryEntry
}

// NewHistory returns an empty history holding at most capacity entries. A
// non-positive capacity selects DefaultHistoryLength.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryLength
	}
	return &History{capacity: capacity, entries: make([]HistoryEntry, 0, capacity)}
}

// Append adds e as the newest sample, evicting the oldest when full.
func (h *History) Append(e HistoryEntry) {
	if len(h.entries) == h.capacity {
		copy(h.entries, h.entries[1:])
		h.entries[len(h.entries)-1] = e
		return
	}
	h.entries = append(h.entries, e)
}

// Len returns the number of samples held.
func (h *History) Len() int { return len(h.entries) }

// Cap returns the maximum number of samples held.
func (h *History) Cap() int { return h.capacity }

// Entries returns a copy of the samples, oldest first.
func (h *History) Entries() []HistoryEntry {
	return append([]HistoryEntry(nil), h.entries...)
}

// Positions returns the sample positions, oldest first.
func (h *History) Positions() []model.Geodetic {
	out := make([]model.Geodetic, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.Position()
	}
	return out
}
