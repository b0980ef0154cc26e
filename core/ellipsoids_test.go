package core

import (
	"context"
	"testing"
	"time"

	"github.com/signalsfoundry/scene-reconciler/kb"
	"github.com/signalsfoundry/scene-reconciler/model"
	"github.com/signalsfoundry/scene-reconciler/scene"
	"github.com/signalsfoundry/scene-reconciler/timectrl"
	"github.com/stretchr/testify/require"
)

func TestEllipsoidEmptyThenNonEmptyScenario(t *testing.T) {
	engine := scene.NewMemory()
	store := kb.NewKnowledgeBase(engine)
	clock := timectrl.NewManualClock(t0)
	r := NewEllipsoidReconciler(store, WithClock(clock))
	ctx := context.Background()

	// Two points left over from an earlier response.
	_, err := r.Apply(ctx, []byte(`{"ellipsoids": {"0-2": [[-34.9, 138.6, 50], [-34.8, 138.5, 60]]}}`))
	require.NoError(t, err)
	old := engine.ListEntities()
	require.Len(t, old, 2)

	clock.Advance(5 * time.Second)
	res, err := r.Apply(ctx, []byte(`{"ellipsoids": {}}`))
	require.NoError(t, err)
	require.Equal(t, 2, res.Faded)
	require.Equal(t, 0, res.Removed)
	for _, e := range old {
		require.InDelta(t, 0.25, e.Visual().Color.A, 1e-12)
	}

	clock.Advance(time.Second)
	res, err = r.Apply(ctx, []byte(`{"ellipsoids": {"0-1": [[1, 2, 3]]}}`))
	require.NoError(t, err)
	require.Equal(t, 2, res.Removed)
	require.Equal(t, 1, res.Created)

	live := engine.ListEntities()
	require.Len(t, live, 1)
	require.Equal(t, model.Geodetic{Latitude: 1, Longitude: 2, Altitude: 3}, live[0].Position())
	require.Equal(t, model.CategoryEllipsoids, live[0].Category())
	require.Equal(t, StyleEllipsoid.Color, live[0].Visual().Color)
	require.Equal(t, clock.Now(), live[0].Timestamp())
}

func TestEllipsoidFadeRemovesAfterWindow(t *testing.T) {
	engine := scene.NewMemory()
	store := kb.NewKnowledgeBase(engine)
	clock := timectrl.NewManualClock(t0)
	r := NewEllipsoidReconciler(store, WithClock(clock))
	ctx := context.Background()

	r.Reconcile(ctx, model.EllipsoidSnapshot{Present: true, Groups: []model.EllipsoidGroup{
		{Key: "a", Points: []model.Geodetic{{Latitude: 1, Longitude: 1}}},
	}})
	clock.Advance(10*time.Second + time.Millisecond)

	res := r.Reconcile(ctx, model.EllipsoidSnapshot{Present: true})
	require.Equal(t, 1, res.Removed)
	require.Zero(t, engine.Len())
}

func TestEllipsoidEmptyGroupsHardClear(t *testing.T) {
	engine := scene.NewMemory()
	store := kb.NewKnowledgeBase(engine)
	clock := timectrl.NewManualClock(t0)
	r := NewEllipsoidReconciler(store, WithClock(clock))
	ctx := context.Background()

	_, err := r.Apply(ctx, []byte(`{"ellipsoids": {"0-2": [[-34.9, 138.6, 50], [-34.8, 138.5, 60]]}}`))
	require.NoError(t, err)
	require.Equal(t, 2, engine.Len())
	clock.Advance(2 * time.Second)

	res, err := r.Apply(ctx, []byte(`{"ellipsoids": {"0-1": []}}`))
	require.NoError(t, err)
	require.Equal(t, 2, res.Removed)
	require.Zero(t, res.Faded)
	require.Zero(t, engine.Len(), "a mapping with keys replaces the previous points")

	_, err = r.Apply(ctx, []byte(`{"ellipsoids": {"0-2": [[1, 2, 3]]}}`))
	require.NoError(t, err)
	res, err = r.Apply(ctx, []byte(`{"ellipsoids": {"0-1": [[1, 2]], "0-3": "bad"}}`))
	require.NoError(t, err)
	require.Equal(t, 1, res.Removed)
	require.Equal(t, 2, res.Skipped)
	require.Zero(t, engine.Len())
}

func TestEllipsoidMissingKeyIsNoop(t *testing.T) {
	engine := scene.NewMemory()
	store := kb.NewKnowledgeBase(engine)
	r := NewEllipsoidReconciler(store)

	res, err := r.Apply(context.Background(), []byte(`{"system_tracks": []}`))
	require.NoError(t, err)
	require.Equal(t, Result{}, res)
}

func TestEllipsoidLeavesOtherCategories(t *testing.T) {
	engine := scene.NewMemory()
	store := kb.NewKnowledgeBase(engine)
	r := NewEllipsoidReconciler(store, WithClock(timectrl.NewManualClock(t0)))
	store.Batch(func(tx *kb.Tx) {
		tx.Add(scene.Spec{Name: "RX1", Category: model.CategoryRadar, Timestamp: t0.Add(-time.Hour)})
	})

	r.Reconcile(context.Background(), model.EllipsoidSnapshot{Present: true})
	r.Reconcile(context.Background(), model.EllipsoidSnapshot{Present: true, Groups: []model.EllipsoidGroup{
		{Key: "a", Points: []model.Geodetic{{Latitude: 1}}},
	}})
	require.Equal(t, map[model.Category]int{model.CategoryRadar: 1, model.CategoryEllipsoids: 1}, engine.CountByCategory())
}

func TestEllipsoidPolicyOptions(t *testing.T) {
	r := NewEllipsoidReconciler(kb.NewKnowledgeBase(scene.NewMemory()), WithMaxAge(30*time.Second), WithBaseAlpha(0.8))
	require.Equal(t, SweepPolicy{Category: model.CategoryEllipsoids, MaxAge: 30 * time.Second, Fade: true, BaseAlpha: 0.8}, r.Policy())

	d := NewEllipsoidReconciler(kb.NewKnowledgeBase(scene.NewMemory()))
	require.Equal(t, DefaultEllipsoidMaxAge, d.Policy().MaxAge)
	require.Equal(t, DefaultEllipsoidBaseAlpha, d.Policy().BaseAlpha)
}
