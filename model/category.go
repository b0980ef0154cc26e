package model

// Category tags every scene entity with the kind of telemetry it renders.
// Decay sweeps and bulk removals select entities by this tag.
type Category string

const (
	CategoryRadar          Category = "radar"
	CategoryAdsb           Category = "adsb"
	CategoryEllipsoids     Category = "ellipsoids"
	CategoryTrackConfirmed Category = "track_confirmed"
	CategoryTrackTentative Category = "track_tentative"
	CategoryTrackCoasting  Category = "track_coasting"
	CategoryTrackAdsb      Category = "track_adsb"
)

// PathCategory returns the tag used for the trail entity of a track style.
func (c Category) PathCategory() Category {
	return c + "_path"
}

// IsTrack reports whether c is one of the track point styles.
func (c Category) IsTrack() bool {
	switch c {
	case CategoryTrackConfirmed, CategoryTrackTentative, CategoryTrackCoasting, CategoryTrackAdsb:
		return true
	}
	return false
}

// Geodetic is a WGS84 position in degrees and metres above the ellipsoid.
type Geodetic struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

// Valid reports whether g is finite and inside the latitude/longitude ranges.
func (g Geodetic) Valid() bool {
	if !allFinite(g.Latitude, g.Longitude, g.Altitude) {
		return false
	}
	return g.Latitude >= -90 && g.Latitude <= 90 && g.Longitude >= -180 && g.Longitude <= 180
}
