package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/signalsfoundry/scene-reconciler/internal/logging"
	"github.com/signalsfoundry/scene-reconciler/kb"
	"github.com/signalsfoundry/scene-reconciler/model"
	"github.com/signalsfoundry/scene-reconciler/scene"
)

// RadarReconciler places receiver and transmitter site markers. Sites are
// permanent for the session and deduplicated by display name across the
// whole scene, not only among radar markers.
type RadarReconciler struct {
	store *kb.KnowledgeBase
	opts  options
}

// NewRadarReconciler builds a reconciler writing to store.
func NewRadarReconciler(store *kb.KnowledgeBase, opts ...Option) *RadarReconciler {
	return &RadarReconciler{store: store, opts: newOptions(0, 0, opts)}
}

// Apply decodes a radar /api/config response and reconciles it.
func (r *RadarReconciler) Apply(ctx context.Context, body []byte) (Result, error) {
	cfg, err := model.DecodeRadarConfig(body)
	if err != nil {
		return Result{}, fmt.Errorf("decode radar config: %w", err)
	}
	return r.Reconcile(ctx, cfg), nil
}

// Reconcile adds markers for sites whose name is not yet in the scene.
func (r *RadarReconciler) Reconcile(ctx context.Context, cfg model.RadarConfig) Result {
	log := logging.FromContext(ctx, r.opts.logger)
	if !cfg.Present {
		return Result{}
	}

	var res Result
	now := r.opts.clock.Now()
	style := StyleRadarSite

	r.store.Batch(func(tx *kb.Tx) {
		for _, site := range []model.RadarSite{cfg.Rx, cfg.Tx} {
			name := strings.TrimSpace(site.Name)
			pos := site.Geodetic()
			if name == "" || !pos.Valid() {
				log.Warn(ctx, "skipping radar site",
					logging.String("name", name),
					logging.Any("position", pos))
				res.Skipped++
				continue
			}
			if tx.NameExists(name) {
				continue
			}
			tx.Add(scene.Spec{
				Name:      name,
				Category:  style.Category,
				Identity:  name,
				Timestamp: now,
				Kind:      scene.KindPoint,
				Position:  pos,
				Color:     style.Color,
				PixelSize: style.PixelSize,
				Label:     name,
				Show:      true,
				ShowLabel: true,
			})
			res.Created++
			log.Info(ctx, "radar site added", logging.String("name", name))
		}
	})
	return res
}
