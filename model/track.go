package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// TrackStatus is the tracker's lifecycle state for a system track.
type TrackStatus string

const (
	StatusTentative TrackStatus = "TENTATIVE"
	StatusConfirmed TrackStatus = "CONFIRMED"
	StatusCoasting  TrackStatus = "COASTING"
)

var (
	// ErrShortStateVector indicates fewer than three state components.
	ErrShortStateVector = errors.New("state vector has fewer than 3 components")
	// ErrNonFinitePosition indicates a NaN or infinite position component.
	ErrNonFinitePosition = errors.New("state vector position is not finite")
	// ErrZeroPosition indicates the origin-degenerate position.
	ErrZeroPosition = errors.New("state vector position is zero")
)

// AdsbInfo is the ADS-B correlation attached to a track by the associator.
type AdsbInfo struct {
	Flight string `json:"flight,omitempty"`
	Hex    string `json:"hex,omitempty"`
}

// DisplayName prefers the callsign and falls back to the ICAO hex.
func (a *AdsbInfo) DisplayName() string {
	if a == nil {
		return ""
	}
	if f := strings.TrimSpace(a.Flight); f != "" {
		return f
	}
	return strings.TrimSpace(a.Hex)
}

// Track is one system track from the tracker's snapshot.
type Track struct {
	ID       string
	Status   TrackStatus
	Hits     int
	Misses   int
	AgeScans int

	// StateVector is ECEF position (m) followed by ECEF velocity (m/s) when
	// the tracker runs a constant-velocity model. Components past index 5
	// are ignored.
	StateVector []float64

	Adsb *AdsbInfo
}

type trackWire struct {
	TrackID     json.RawMessage `json:"track_id"`
	Status      json.RawMessage `json:"status"`
	Hits        flexInt         `json:"hits"`
	Misses      flexInt         `json:"misses"`
	AgeScans    flexInt         `json:"age_scans"`
	StateVector json.RawMessage `json:"current_state_vector"`
	AdsbInfo    json.RawMessage `json:"adsb_info"`
}

// UnmarshalJSON accepts numeric or string track ids and numeric strings in
// the state vector. Only a missing track_id or a non-object element fails;
// every other bad field degrades so the identity stays active.
func (t *Track) UnmarshalJSON(b []byte) error {
	var w trackWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	id, ok := identityText(w.TrackID)
	if !ok {
		return fmt.Errorf("track_id missing or invalid: %s", string(w.TrackID))
	}
	status, _ := identityText(w.Status)
	// A state vector that is not an array leaves the track unrenderable for
	// this cycle but keeps it active.
	var state []flexFloat
	if err := json.Unmarshal(w.StateVector, &state); err != nil {
		state = nil
	}
	*t = Track{
		ID:          id,
		Status:      TrackStatus(status),
		Hits:        int(w.Hits),
		Misses:      int(w.Misses),
		AgeScans:    int(w.AgeScans),
		StateVector: floats(state),
		Adsb:        decodeAdsbInfo(w.AdsbInfo),
	}
	return nil
}

// decodeAdsbInfo returns nil unless raw is a JSON object. Sub-fields that are
// not strings are rendered as their JSON text, or dropped.
func decodeAdsbInfo(raw json.RawMessage) *AdsbInfo {
	var w struct {
		Flight flexString `json:"flight"`
		Hex    flexString `json:"hex"`
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil
	}
	return &AdsbInfo{Flight: string(w.Flight), Hex: string(w.Hex)}
}

// MarshalJSON writes the upstream wire shape.
func (t Track) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		TrackID     string      `json:"track_id"`
		Status      TrackStatus `json:"status"`
		Hits        int         `json:"hits"`
		Misses      int         `json:"misses"`
		AgeScans    int         `json:"age_scans"`
		StateVector []float64   `json:"current_state_vector"`
		AdsbInfo    *AdsbInfo   `json:"adsb_info,omitempty"`
	}{t.ID, t.Status, t.Hits, t.Misses, t.AgeScans, t.StateVector, t.Adsb})
}

// HasAdsb reports whether the track is correlated with an ADS-B report.
func (t *Track) HasAdsb() bool { return t.Adsb != nil }

// Position returns the ECEF position components, validating them first.
func (t *Track) Position() ([3]float64, error) {
	var p [3]float64
	if len(t.StateVector) < 3 {
		return p, ErrShortStateVector
	}
	copy(p[:], t.StateVector[:3])
	if !allFinite(p[0], p[1], p[2]) {
		return p, ErrNonFinitePosition
	}
	if p[0] == 0 && p[1] == 0 && p[2] == 0 {
		return p, ErrZeroPosition
	}
	return p, nil
}

// Velocity returns the ECEF velocity when the state vector carries one.
func (t *Track) Velocity() ([3]float64, bool) {
	var v [3]float64
	if len(t.StateVector) < 6 {
		return v, false
	}
	copy(v[:], t.StateVector[3:6])
	return v, allFinite(v[0], v[1], v[2])
}
