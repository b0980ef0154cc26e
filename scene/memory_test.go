package scene

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/signalsfoundry/scene-reconciler/model"
	"github.com/stretchr/testify/require"
)

func TestMemoryAddListRemove(t *testing.T) {
	m := NewMemory()
	a := m.AddEntity(Spec{Name: "a", Category: model.CategoryRadar, Kind: KindPoint})
	b := m.AddEntity(Spec{Name: "b", Category: model.CategoryAdsb, Kind: KindPoint})
	c := m.AddEntity(Spec{Name: "c", Category: model.CategoryAdsb, Kind: KindPoint})

	list := m.ListEntities()
	require.Len(t, list, 3)
	require.Equal(t, []*Entity{a, b, c}, list, "entities must be listed in creation order")
	require.NotEqual(t, a.ID(), b.ID())

	require.True(t, m.RemoveEntity(b))
	require.False(t, m.RemoveEntity(b), "second removal must report false")
	require.False(t, m.RemoveEntity(nil))
	require.Equal(t, []*Entity{a, c}, m.ListEntities())
	require.Equal(t, map[model.Category]int{model.CategoryRadar: 1, model.CategoryAdsb: 1}, m.CountByCategory())
}

func TestMemoryVersionTracksChanges(t *testing.T) {
	m := NewMemory()
	v0 := m.Version()

	e := m.AddEntity(Spec{Label: "x", Color: RGBA(1, 2, 3, 0.5), Show: true, ShowLabel: true})
	v1 := m.Version()
	require.Greater(t, v1, v0)

	e.SetShow(true)
	require.Equal(t, v1, m.Version(), "a no-op visual change must not bump the version")

	e.SetAlpha(0.25)
	require.Greater(t, m.Version(), v1)
}

func TestEntityAlphaKeepsBaseColor(t *testing.T) {
	m := NewMemory()
	base := RGBA(0, 255, 255, 0.5)
	e := m.AddEntity(Spec{Color: base})

	e.SetAlpha(0.1)
	e.SetAlpha(0.2)
	require.Equal(t, base, e.BaseColor())
	require.Equal(t, base.WithAlpha(0.2), e.Visual().Color)
}

func TestEntitySetLabelShowIgnoredWithoutLabel(t *testing.T) {
	m := NewMemory()
	e := m.AddEntity(Spec{ShowLabel: false})
	e.SetLabelShow(true)
	require.False(t, e.Visual().ShowLabel)

	labelled := m.AddEntity(Spec{Label: "hi"})
	labelled.SetLabelShow(true)
	require.True(t, labelled.Visual().ShowLabel)
}

func TestEntityPathIsCopied(t *testing.T) {
	path := []model.Geodetic{{Latitude: 1}, {Latitude: 2}}
	e := NewMemory().AddEntity(Spec{Kind: KindPolyline, Path: path})
	path[0].Latitude = 42
	require.Equal(t, 1.0, e.Path()[0].Latitude)
}

func TestSnapshotJSON(t *testing.T) {
	m := NewMemory()
	at := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	m.AddEntity(Spec{
		Name:      "Track 7",
		Category:  model.CategoryTrackConfirmed,
		Identity:  "7",
		Timestamp: at,
		Kind:      KindPoint,
		Position:  model.Geodetic{Latitude: 1, Longitude: 2, Altitude: 3},
		Color:     RGBA(0, 128, 255, 0.9),
		PixelSize: 14,
		Label:     "Track 7",
		Show:      true,
	})
	m.AddEntity(Spec{
		Category: model.CategoryTrackConfirmed.PathCategory(),
		Kind:     KindPolyline,
		Path:     []model.Geodetic{{Latitude: 1}, {Latitude: 2}},
		Width:    2,
	})

	snap := m.Snapshot()
	require.Equal(t, m.Version(), snap.Version)
	require.Len(t, snap.Entities, 2)

	point := snap.Entities[0]
	require.Equal(t, "point", point.Kind)
	require.Equal(t, "rgba(0, 128, 255, 0.9)", point.Color)
	require.NotNil(t, point.Position)
	require.Equal(t, at, point.CreatedAt)

	line := snap.Entities[1]
	require.Equal(t, "polyline", line.Kind)
	require.Nil(t, line.Position)
	require.Len(t, line.Path, 2)

	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"category":"track_confirmed_path"`)
}
