package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// TrackSnapshot is one decoded response of the tracks endpoint.
type TrackSnapshot struct {
	// Present is false when the response carried no system_tracks key.
	Present bool
	Tracks  []Track
	// Skipped counts elements of system_tracks that could not be decoded.
	Skipped int
}

// DecodeTrackSnapshot decodes {"system_tracks": [...]}. Elements are decoded
// independently so that one bad track does not hide its siblings.
func DecodeTrackSnapshot(data []byte) (TrackSnapshot, error) {
	var wire struct {
		SystemTracks *[]json.RawMessage `json:"system_tracks"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return TrackSnapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if wire.SystemTracks == nil {
		return TrackSnapshot{}, nil
	}
	snap := TrackSnapshot{Present: true, Tracks: make([]Track, 0, len(*wire.SystemTracks))}
	for _, raw := range *wire.SystemTracks {
		var t Track
		if err := json.Unmarshal(raw, &t); err != nil {
			snap.Skipped++
			continue
		}
		snap.Tracks = append(snap.Tracks, t)
	}
	return snap, nil
}

// EllipsoidGroup is the point list of one localisation group.
type EllipsoidGroup struct {
	Key    string
	Points []Geodetic
}

// EllipsoidSnapshot is one decoded response of the ellipsoids endpoint.
type EllipsoidSnapshot struct {
	Present bool
	// Groups is sorted by key so that rendering order is stable.
	Groups  []EllipsoidGroup
	Skipped int
}

// HasGroups reports whether the mapping carried any key, with or without
// decodable points.
func (s EllipsoidSnapshot) HasGroups() bool { return len(s.Groups) > 0 }

// HasPoints reports whether at least one group carries a point.
func (s EllipsoidSnapshot) HasPoints() bool {
	for _, g := range s.Groups {
		if len(g.Points) > 0 {
			return true
		}
	}
	return false
}

// DecodeEllipsoidSnapshot decodes {"ellipsoids": {"group": [[lat, lon, alt], ...]}}.
// Tuples that are short or not finite are dropped and counted. A group whose
// value is not a tuple list is kept without points.
func DecodeEllipsoidSnapshot(data []byte) (EllipsoidSnapshot, error) {
	var wire struct {
		Ellipsoids *map[string]json.RawMessage `json:"ellipsoids"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return EllipsoidSnapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if wire.Ellipsoids == nil {
		return EllipsoidSnapshot{}, nil
	}
	snap := EllipsoidSnapshot{Present: true}
	keys := make([]string, 0, len(*wire.Ellipsoids))
	for k := range *wire.Ellipsoids {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var tuples [][]flexFloat
		if err := json.Unmarshal((*wire.Ellipsoids)[k], &tuples); err != nil {
			snap.Skipped++
			snap.Groups = append(snap.Groups, EllipsoidGroup{Key: k})
			continue
		}
		group := EllipsoidGroup{Key: k, Points: make([]Geodetic, 0, len(tuples))}
		for _, tuple := range tuples {
			if len(tuple) < 3 {
				snap.Skipped++
				continue
			}
			p := Geodetic{Latitude: float64(tuple[0]), Longitude: float64(tuple[1]), Altitude: float64(tuple[2])}
			if !p.Valid() {
				snap.Skipped++
				continue
			}
			group.Points = append(group.Points, p)
		}
		snap.Groups = append(snap.Groups, group)
	}
	return snap, nil
}

// RadarSite is the receiver or transmitter location of a bistatic radar.
type RadarSite struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

// Geodetic returns the site position.
func (s RadarSite) Geodetic() Geodetic {
	return Geodetic{Latitude: s.Latitude, Longitude: s.Longitude, Altitude: s.Altitude}
}

// RadarConfig is the subset of a radar node's /api/config response used here.
type RadarConfig struct {
	Present bool
	Rx      RadarSite
	Tx      RadarSite
}

// DecodeRadarConfig decodes {"location": {"rx": {...}, "tx": {...}}}.
func DecodeRadarConfig(data []byte) (RadarConfig, error) {
	var wire struct {
		Location *struct {
			Rx RadarSite `json:"rx"`
			Tx RadarSite `json:"tx"`
		} `json:"location"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return RadarConfig{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if wire.Location == nil {
		return RadarConfig{}, nil
	}
	return RadarConfig{Present: true, Rx: wire.Location.Rx, Tx: wire.Location.Tx}, nil
}

// Aircraft is one ADS-B truth report from a tar1090 aircraft.json feed.
type Aircraft struct {
	Hex      string
	Flight   string
	Position Geodetic
}

// Name returns the trimmed callsign, or the hex when no callsign is set.
func (a Aircraft) Name() string {
	if f := strings.TrimSpace(a.Flight); f != "" {
		return f
	}
	return strings.TrimSpace(a.Hex)
}

// AircraftSnapshot is one decoded aircraft.json response.
type AircraftSnapshot struct {
	Present  bool
	Aircraft []Aircraft
	Skipped  int
}

const feetToMetres = 0.3048

// DecodeAircraftSnapshot decodes a tar1090 aircraft.json document. Aircraft
// without a position are skipped; altitudes are converted from feet.
func DecodeAircraftSnapshot(data []byte) (AircraftSnapshot, error) {
	var wire struct {
		Aircraft *[]struct {
			Hex     string          `json:"hex"`
			Flight  string          `json:"flight"`
			Lat     *flexFloat      `json:"lat"`
			Lon     *flexFloat      `json:"lon"`
			AltGeom *flexFloat      `json:"alt_geom"`
			AltBaro json.RawMessage `json:"alt_baro"`
		} `json:"aircraft"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return AircraftSnapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if wire.Aircraft == nil {
		return AircraftSnapshot{}, nil
	}
	snap := AircraftSnapshot{Present: true}
	for _, a := range *wire.Aircraft {
		if a.Lat == nil || a.Lon == nil {
			snap.Skipped++
			continue
		}
		altFt := 0.0
		switch {
		case a.AltGeom != nil && allFinite(float64(*a.AltGeom)):
			altFt = float64(*a.AltGeom)
		case !isNull(a.AltBaro):
			// tar1090 reports "ground" for aircraft on the surface.
			if v := parseFlexFloat(a.AltBaro); allFinite(v) {
				altFt = v
			}
		}
		pos := Geodetic{Latitude: float64(*a.Lat), Longitude: float64(*a.Lon), Altitude: altFt * feetToMetres}
		if !pos.Valid() {
			snap.Skipped++
			continue
		}
		snap.Aircraft = append(snap.Aircraft, Aircraft{Hex: a.Hex, Flight: a.Flight, Position: pos})
	}
	return snap, nil
}
