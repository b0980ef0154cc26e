package core

import (
	"fmt"

	"github.com/signalsfoundry/scene-reconciler/model"
	"github.com/signalsfoundry/scene-reconciler/scene"
)

// Style is the look of one entity category.
type Style struct {
	Category  model.Category
	Color     scene.Color
	PixelSize float64
	Marker    string
}

var (
	StyleTrackTentative = Style{Category: model.CategoryTrackTentative, Color: scene.RGBA(255, 165, 0, 0.8), PixelSize: 12, Marker: "❓"}
	StyleTrackConfirmed = Style{Category: model.CategoryTrackConfirmed, Color: scene.RGBA(0, 128, 255, 0.9), PixelSize: 14, Marker: "🎯"}
	StyleTrackAdsb      = Style{Category: model.CategoryTrackAdsb, Color: scene.RGBA(255, 0, 255, 1.0), PixelSize: 16, Marker: "✈️"}
	StyleTrackCoasting  = Style{Category: model.CategoryTrackCoasting, Color: scene.RGBA(128, 128, 128, 0.6), PixelSize: 10, Marker: "⚡"}

	StyleEllipsoid = Style{Category: model.CategoryEllipsoids, Color: scene.RGBA(0, 255, 255, 0.5), PixelSize: 16}
	StyleRadarSite = Style{Category: model.CategoryRadar, Color: scene.RGBA(0, 0, 0, 1.0), PixelSize: 10}
	StyleAdsbTruth = Style{Category: model.CategoryAdsb, Color: scene.RGBA(255, 0, 0, 0.5), PixelSize: 8}
)

// Trail polylines reuse the track colour at this alpha.
const (
	TrailAlpha = 0.6
	TrailWidth = 2.0
)

// TrackStyle resolves the style of a track. ADS-B correlation wins over the
// tracker status; unknown statuses render as tentative.
func TrackStyle(t *model.Track) Style {
	if t.HasAdsb() {
		return StyleTrackAdsb
	}
	switch t.Status {
	case model.StatusConfirmed:
		return StyleTrackConfirmed
	case model.StatusCoasting:
		return StyleTrackCoasting
	default:
		return StyleTrackTentative
	}
}

// TrackEntityName and TrailEntityName are the scene names of a track's point
// and trail.
func TrackEntityName(id string) string { return "track_" + id }

func TrailEntityName(id string) string { return "track_path_" + id }

// TrackName is the human-readable name of a track used in its label.
func TrackName(t *model.Track) string {
	if t.HasAdsb() {
		if name := t.Adsb.DisplayName(); name != "" {
			return fmt.Sprintf("%s (%s)", name, t.ID)
		}
	}
	return "Track " + t.ID
}

// TrackLabel renders the multi-line label shown next to a track point.
func TrackLabel(t *model.Track, s Style) string {
	return fmt.Sprintf("%s %s\nHits: %d, Misses: %d\nAge: %d", s.Marker, TrackName(t), t.Hits, t.Misses, t.AgeScans)
}
