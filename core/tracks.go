package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/signalsfoundry/scene-reconciler/internal/logging"
	"github.com/signalsfoundry/scene-reconciler/kb"
	"github.com/signalsfoundry/scene-reconciler/model"
	"github.com/signalsfoundry/scene-reconciler/scene"
)

// Legend holds the aggregate track counters shown next to the scene.
type Legend struct {
	TotalTracks     int `json:"totalTracks"`
	AdsbTracks      int `json:"adsbTracks"`
	RadarOnlyTracks int `json:"radarOnlyTracks"`
}

// TrackReconciler applies system track snapshots to the store. It is the
// only writer of track identities.
type TrackReconciler struct {
	store *kb.KnowledgeBase
	opts  options

	mu     sync.RWMutex
	legend Legend
}

// NewTrackReconciler builds a reconciler writing to store.
func NewTrackReconciler(store *kb.KnowledgeBase, opts ...Option) *TrackReconciler {
	return &TrackReconciler{store: store, opts: newOptions(0, 0, opts)}
}

// Apply decodes a tracks response and reconciles it.
func (r *TrackReconciler) Apply(ctx context.Context, body []byte) (Result, error) {
	snap, err := model.DecodeTrackSnapshot(body)
	if err != nil {
		return Result{}, fmt.Errorf("decode tracks: %w", err)
	}
	return r.Reconcile(ctx, snap), nil
}

// Reconcile brings the scene in line with snap. Identities absent from snap
// lose their point, trail and history; every present track with a valid
// position gets a fresh point, a new history sample and, from its second
// sample on, a trail. A snapshot without a track list changes nothing.
func (r *TrackReconciler) Reconcile(ctx context.Context, snap model.TrackSnapshot) Result {
	log := logging.FromContext(ctx, r.opts.logger)
	if !snap.Present {
		log.Debug(ctx, "no system_tracks in response")
		return Result{}
	}

	res := Result{Skipped: snap.Skipped}
	now := r.opts.clock.Now()
	vis := r.opts.visibility

	active := make(map[string]struct{}, len(snap.Tracks))
	for _, t := range snap.Tracks {
		active[t.ID] = struct{}{}
	}

	r.store.Batch(func(tx *kb.Tx) {
		for _, id := range tx.TrackIDs() {
			if _, ok := active[id]; ok {
				continue
			}
			log.Debug(ctx, "removing inactive track", logging.String("track_id", id))
			tx.RemoveTrack(id)
			res.Removed++
		}

		for i := range snap.Tracks {
			t := &snap.Tracks[i]
			logTrackState(ctx, log, t)

			pos, err := t.Position()
			if err != nil {
				log.Debug(ctx, "skipping track without valid position",
					logging.String("track_id", t.ID), logging.Err(err))
				res.Skipped++
				continue
			}
			geo, ok := ECEFToGeodetic(Vec3{X: pos[0], Y: pos[1], Z: pos[2]})
			if !ok {
				log.Warn(ctx, "ecef conversion failed",
					logging.String("track_id", t.ID),
					logging.Any("ecef", pos))
				res.Skipped++
				continue
			}

			style := TrackStyle(t)
			existed := tx.HasTrack(t.ID)
			tx.ReplaceTrackPoint(t.ID, scene.Spec{
				Name:      TrackEntityName(t.ID),
				Category:  style.Category,
				Identity:  t.ID,
				Timestamp: now,
				Kind:      scene.KindPoint,
				Position:  geo,
				Color:     style.Color,
				PixelSize: style.PixelSize,
				Label:     TrackLabel(t, style),
				Show:      vis.Tracks(),
				ShowLabel: vis.Labels(),
			})
			if existed {
				res.Updated++
			} else {
				res.Created++
			}

			hist, _ := tx.AppendHistory(t.ID, kb.NewHistoryEntry(geo, now))
			if hist.Len() < 2 {
				tx.RemoveTrackTrail(t.ID)
				continue
			}
			tx.ReplaceTrackTrail(t.ID, scene.Spec{
				Name:      TrailEntityName(t.ID),
				Category:  style.Category.PathCategory(),
				Identity:  t.ID,
				Timestamp: now,
				Kind:      scene.KindPolyline,
				Path:      hist.Positions(),
				Color:     style.Color.WithAlpha(TrailAlpha),
				Width:     TrailWidth,
				Show:      vis.Paths(),
			})
		}
	})

	legend := LegendFor(snap.Tracks)
	r.mu.Lock()
	r.legend = legend
	r.mu.Unlock()
	if r.opts.recorder != nil {
		r.opts.recorder.SetTrackCounts(legend.TotalTracks, legend.AdsbTracks, legend.RadarOnlyTracks)
	}

	log.Debug(ctx, "tracks reconciled",
		logging.Int("tracks", len(snap.Tracks)),
		logging.Int("created", res.Created),
		logging.Int("updated", res.Updated),
		logging.Int("removed", res.Removed),
		logging.Int("skipped", res.Skipped))
	return res
}

// LegendFor counts every decoded track, renderable or not.
func LegendFor(tracks []model.Track) Legend {
	l := Legend{TotalTracks: len(tracks)}
	for i := range tracks {
		if tracks[i].HasAdsb() {
			l.AdsbTracks++
		}
	}
	l.RadarOnlyTracks = l.TotalTracks - l.AdsbTracks
	return l
}

// Legend returns the counters of the last track pass.
func (r *TrackReconciler) Legend() Legend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.legend
}

// Visibility returns the current display toggles.
func (r *TrackReconciler) Visibility() VisibilityState {
	return r.opts.visibility.State()
}

// SetTracksVisible shows or hides every track point, now and on later passes.
func (r *TrackReconciler) SetTracksVisible(show bool) {
	r.store.Batch(func(tx *kb.Tx) {
		r.opts.visibility.setTracks(show)
		tx.EachTrack(func(_ string, rec *kb.TrackRecord) {
			if rec.Point != nil {
				rec.Point.SetShow(show)
			}
		})
	})
}

// SetPathsVisible shows or hides every track trail.
func (r *TrackReconciler) SetPathsVisible(show bool) {
	r.store.Batch(func(tx *kb.Tx) {
		r.opts.visibility.setPaths(show)
		tx.EachTrack(func(_ string, rec *kb.TrackRecord) {
			if rec.Trail != nil {
				rec.Trail.SetShow(show)
			}
		})
	})
}

// SetLabelsVisible shows or hides every track label.
func (r *TrackReconciler) SetLabelsVisible(show bool) {
	r.store.Batch(func(tx *kb.Tx) {
		r.opts.visibility.setLabels(show)
		tx.EachTrack(func(_ string, rec *kb.TrackRecord) {
			if rec.Point != nil {
				rec.Point.SetLabelShow(show)
			}
		})
	})
}

func logTrackState(ctx context.Context, log logging.Logger, t *model.Track) {
	fields := []logging.Field{
		logging.String("track_id", t.ID),
		logging.String("status", string(t.Status)),
		logging.Int("hits", t.Hits),
		logging.Int("misses", t.Misses),
		logging.Int("age_scans", t.AgeScans),
		logging.Bool("adsb", t.HasAdsb()),
	}
	if len(t.StateVector) >= 3 {
		fields = append(fields, logging.Any("ecef", t.StateVector[:3]))
	}
	if v, ok := t.Velocity(); ok {
		fields = append(fields, logging.Float64("speed_mps", Speed(Vec3{X: v[0], Y: v[1], Z: v[2]})))
	}
	if t.HasAdsb() {
		fields = append(fields, logging.String("flight", t.Adsb.DisplayName()))
	}
	log.Debug(ctx, "track state", fields...)
}
