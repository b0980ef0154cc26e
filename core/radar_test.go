package core

import (
	"context"
	"testing"

	"github.com/signalsfoundry/scene-reconciler/kb"
	"github.com/signalsfoundry/scene-reconciler/model"
	"github.com/signalsfoundry/scene-reconciler/scene"
	"github.com/stretchr/testify/require"
)

const radarConfig = `{"location": {
	"rx": {"name": "Adelaide RX", "latitude": -34.92, "longitude": 138.60, "altitude": 40},
	"tx": {"name": "Mt Lofty TX", "latitude": -34.98, "longitude": 138.71, "altitude": 700}
}}`

func TestRadarSitesAddedOnce(t *testing.T) {
	engine := scene.NewMemory()
	r := NewRadarReconciler(kb.NewKnowledgeBase(engine))
	ctx := context.Background()

	res, err := r.Apply(ctx, []byte(radarConfig))
	require.NoError(t, err)
	require.Equal(t, 2, res.Created)

	res, err = r.Apply(ctx, []byte(radarConfig))
	require.NoError(t, err)
	require.Equal(t, 0, res.Created)
	require.Equal(t, 2, engine.Len())

	for _, e := range engine.ListEntities() {
		require.Equal(t, model.CategoryRadar, e.Category())
		require.Equal(t, e.Name(), e.Visual().Label)
		require.True(t, e.Visual().ShowLabel)
	}
}

func TestRadarDedupIsGlobalByName(t *testing.T) {
	engine := scene.NewMemory()
	store := kb.NewKnowledgeBase(engine)
	store.Batch(func(tx *kb.Tx) {
		tx.Add(scene.Spec{Name: "Adelaide RX", Category: model.CategoryAdsb})
	})

	res, err := NewRadarReconciler(store).Apply(context.Background(), []byte(radarConfig))
	require.NoError(t, err)
	require.Equal(t, 1, res.Created, "an entity of another category with the same name suppresses the site")
	require.Equal(t, map[model.Category]int{model.CategoryAdsb: 1, model.CategoryRadar: 1}, engine.CountByCategory())
}

func TestRadarSkipsUnusableSites(t *testing.T) {
	engine := scene.NewMemory()
	r := NewRadarReconciler(kb.NewKnowledgeBase(engine))

	res, err := r.Apply(context.Background(), []byte(`{"location": {
		"rx": {"name": "  ", "latitude": 1, "longitude": 1, "altitude": 0},
		"tx": {"name": "TX", "latitude": 123, "longitude": 1, "altitude": 0}
	}}`))
	require.NoError(t, err)
	require.Equal(t, Result{Skipped: 2}, res)
	require.Zero(t, engine.Len())
}

func TestRadarMissingLocationIsNoop(t *testing.T) {
	engine := scene.NewMemory()
	res, err := NewRadarReconciler(kb.NewKnowledgeBase(engine)).Apply(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	require.Equal(t, Result{}, res)
}
