package core

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/scene-reconciler/internal/logging"
	"github.com/signalsfoundry/scene-reconciler/kb"
	"github.com/signalsfoundry/scene-reconciler/model"
	"github.com/signalsfoundry/scene-reconciler/scene"
)

// EllipsoidReconciler renders localisation ellipsoid points as disposable
// batches. A response with points replaces the whole category; an empty one
// lets the previous batch fade out.
type EllipsoidReconciler struct {
	store *kb.KnowledgeBase
	opts  options
}

// NewEllipsoidReconciler builds a reconciler writing to store. The fade
// window defaults to DefaultEllipsoidMaxAge from DefaultEllipsoidBaseAlpha.
func NewEllipsoidReconciler(store *kb.KnowledgeBase, opts ...Option) *EllipsoidReconciler {
	return &EllipsoidReconciler{
		store: store,
		opts:  newOptions(DefaultEllipsoidMaxAge, DefaultEllipsoidBaseAlpha, opts),
	}
}

// Policy is the fade sweep applied to responses with an empty mapping.
func (r *EllipsoidReconciler) Policy() SweepPolicy {
	return SweepPolicy{
		Category:  model.CategoryEllipsoids,
		MaxAge:    r.opts.maxAge,
		Fade:      true,
		BaseAlpha: r.opts.baseAlpha,
	}
}

// Apply decodes an ellipsoids response and reconciles it.
func (r *EllipsoidReconciler) Apply(ctx context.Context, body []byte) (Result, error) {
	snap, err := model.DecodeEllipsoidSnapshot(body)
	if err != nil {
		return Result{}, fmt.Errorf("decode ellipsoids: %w", err)
	}
	return r.Reconcile(ctx, snap), nil
}

// Reconcile applies one ellipsoid snapshot.
func (r *EllipsoidReconciler) Reconcile(ctx context.Context, snap model.EllipsoidSnapshot) Result {
	log := logging.FromContext(ctx, r.opts.logger)
	if !snap.Present {
		return Result{}
	}

	res := Result{Skipped: snap.Skipped}
	now := r.opts.clock.Now()
	style := StyleEllipsoid

	r.store.Batch(func(tx *kb.Tx) {
		if !snap.HasGroups() {
			sw := Sweep(tx, now, r.Policy())
			res.Removed, res.Faded = sw.Removed, sw.Faded
			return
		}

		res.Removed = tx.RemoveCategory(model.CategoryEllipsoids)
		for _, g := range snap.Groups {
			for _, p := range g.Points {
				tx.Add(scene.Spec{
					Name:      string(model.CategoryEllipsoids),
					Category:  style.Category,
					Timestamp: now,
					Kind:      scene.KindPoint,
					Position:  p,
					Color:     style.Color,
					PixelSize: style.PixelSize,
					Show:      true,
				})
				res.Created++
			}
		}
	})

	log.Debug(ctx, "ellipsoids reconciled",
		logging.Int("groups", len(snap.Groups)),
		logging.Int("created", res.Created),
		logging.Int("removed", res.Removed),
		logging.Int("faded", res.Faded),
		logging.Int("skipped", res.Skipped))
	return res
}
