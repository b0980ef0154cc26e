package core

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/scene-reconciler/internal/logging"
	"github.com/signalsfoundry/scene-reconciler/kb"
	"github.com/signalsfoundry/scene-reconciler/model"
	"github.com/signalsfoundry/scene-reconciler/scene"
)

// AdsbReconciler renders ADS-B truth reports. Each poll adds a point per
// aircraft; points older than the window are removed without fading, which
// leaves a short breadcrumb per aircraft.
type AdsbReconciler struct {
	store *kb.KnowledgeBase
	opts  options
}

// NewAdsbReconciler builds a reconciler writing to store with a
// DefaultAdsbMaxAge window.
func NewAdsbReconciler(store *kb.KnowledgeBase, opts ...Option) *AdsbReconciler {
	return &AdsbReconciler{store: store, opts: newOptions(DefaultAdsbMaxAge, 0, opts)}
}

// Policy is the sweep applied after every ADS-B pass.
func (r *AdsbReconciler) Policy() SweepPolicy {
	return SweepPolicy{Category: model.CategoryAdsb, MaxAge: r.opts.maxAge}
}

// Apply decodes an aircraft.json response and reconciles it.
func (r *AdsbReconciler) Apply(ctx context.Context, body []byte) (Result, error) {
	snap, err := model.DecodeAircraftSnapshot(body)
	if err != nil {
		return Result{}, fmt.Errorf("decode aircraft: %w", err)
	}
	return r.Reconcile(ctx, snap), nil
}

// Reconcile adds the reported aircraft and ages out stale reports.
func (r *AdsbReconciler) Reconcile(ctx context.Context, snap model.AircraftSnapshot) Result {
	log := logging.FromContext(ctx, r.opts.logger)
	if !snap.Present {
		return Result{}
	}

	res := Result{Skipped: snap.Skipped}
	now := r.opts.clock.Now()
	style := StyleAdsbTruth

	r.store.Batch(func(tx *kb.Tx) {
		for _, a := range snap.Aircraft {
			tx.Add(scene.Spec{
				Name:      a.Name(),
				Category:  style.Category,
				Identity:  a.Hex,
				Timestamp: now,
				Kind:      scene.KindPoint,
				Position:  a.Position,
				Color:     style.Color,
				PixelSize: style.PixelSize,
				Show:      true,
			})
			res.Created++
		}
		res.Removed = Sweep(tx, now, r.Policy()).Removed
	})

	log.Debug(ctx, "adsb reconciled",
		logging.Int("aircraft", len(snap.Aircraft)),
		logging.Int("created", res.Created),
		logging.Int("removed", res.Removed))
	return res
}
