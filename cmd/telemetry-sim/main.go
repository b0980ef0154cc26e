// Command telemetry-sim serves synthetic tracker, radar and ADS-B feeds so the
// scene server can be run without real sensors.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/signalsfoundry/scene-reconciler/core"
	"github.com/signalsfoundry/scene-reconciler/internal/logging"
	"github.com/signalsfoundry/scene-reconciler/model"
	"github.com/signalsfoundry/scene-reconciler/timectrl"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const metresPerDegree = 111320.0

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	tick := flag.Duration("tick", time.Second, "tick interval")
	duration := flag.Duration("duration", 0, "total simulation duration (0 runs until interrupted)")
	targets := flag.Int("targets", 6, "number of simulated targets")
	centerLat := flag.Float64("center-lat", -34.93, "latitude the targets orbit around")
	centerLon := flag.Float64("center-lon", 138.60, "longitude the targets orbit around")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now().UTC()
	sim := newSimulator(model.Geodetic{Latitude: *centerLat, Longitude: *centerLon}, *targets, start)
	tc := timectrl.NewTimeController(start, *tick, timectrl.RealTime)
	tc.AddListener(sim.step)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           newHandler(sim),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "telemetry server exited", logging.Err(err))
			stop()
		}
	}()
	log.Info(ctx, "serving synthetic telemetry",
		logging.String("addr", *addr),
		logging.Int("targets", *targets),
		logging.Duration("tick", *tick))

	done := tc.Start(*duration, ctx.Done())
	select {
	case <-done:
	case <-ctx.Done():
		<-done
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info(shutdownCtx, "telemetry simulator stopped", logging.Int("ticks", sim.Ticks()))
}

// target flies a circle around the simulator centre.
type target struct {
	id       int
	hex      string
	flight   string
	radius   float64 // metres
	period   time.Duration
	phase    float64
	altitude float64 // metres
	adsb     bool
}

type simulator struct {
	mu      sync.RWMutex
	center  model.Geodetic
	targets []target
	start   time.Time
	now     time.Time
	ticks   int
}

func newSimulator(center model.Geodetic, n int, start time.Time) *simulator {
	s := &simulator{center: center, start: start, now: start}
	for i := 0; i < n; i++ {
		s.targets = append(s.targets, target{
			id:       i + 1,
			hex:      fmt.Sprintf("7c%04x", 0x1000+i),
			flight:   fmt.Sprintf("SIM%03d", i+1),
			radius:   5000 + float64(i)*2500,
			period:   time.Duration(120+30*i) * time.Second,
			phase:    2 * math.Pi * float64(i) / float64(n),
			altitude: 1000 + float64(i)*500,
			adsb:     i%2 == 0,
		})
	}
	return s
}

func (s *simulator) step(simTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = simTime
	s.ticks++
}

// Ticks reports how many steps have been applied.
func (s *simulator) Ticks() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ticks
}

func (s *simulator) position(t target, at time.Time) model.Geodetic {
	angle := t.phase + 2*math.Pi*at.Sub(s.start).Seconds()/t.period.Seconds()
	dLat := t.radius * math.Sin(angle) / metresPerDegree
	dLon := t.radius * math.Cos(angle) / (metresPerDegree * math.Cos(s.center.Latitude*math.Pi/180))
	return model.Geodetic{
		Latitude:  s.center.Latitude + dLat,
		Longitude: s.center.Longitude + dLon,
		Altitude:  t.altitude,
	}
}

func (s *simulator) status(t target) model.TrackStatus {
	switch {
	case s.ticks < 3:
		return model.StatusTentative
	case t.id%5 == 0:
		return model.StatusCoasting
	default:
		return model.StatusConfirmed
	}
}

// tracks renders the current tracker snapshot. State vectors carry ECEF
// position and a one second finite-difference velocity.
func (s *simulator) tracks() []model.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Track, 0, len(s.targets))
	for _, t := range s.targets {
		pos := core.GeodeticToECEF(s.position(t, s.now))
		next := core.GeodeticToECEF(s.position(t, s.now.Add(time.Second)))
		track := model.Track{
			ID:          fmt.Sprint(t.id),
			Status:      s.status(t),
			Hits:        s.ticks,
			AgeScans:    s.ticks,
			StateVector: []float64{pos.X, pos.Y, pos.Z, next.X - pos.X, next.Y - pos.Y, next.Z - pos.Z},
		}
		if t.adsb {
			track.Adsb = &model.AdsbInfo{Flight: t.flight, Hex: t.hex}
		}
		out = append(out, track)
	}
	return out
}

// ellipsoids renders a small localisation cloud around every radar-only target.
func (s *simulator) ellipsoids() map[string][][3]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][][3]float64)
	for _, t := range s.targets {
		if t.adsb {
			continue
		}
		p := s.position(t, s.now)
		const spread = 0.01
		out[fmt.Sprintf("0-%d", t.id)] = [][3]float64{
			{p.Latitude - spread, p.Longitude, p.Altitude},
			{p.Latitude, p.Longitude + spread, p.Altitude},
			{p.Latitude + spread, p.Longitude, p.Altitude},
			{p.Latitude, p.Longitude - spread, p.Altitude},
		}
	}
	return out
}

type aircraftJSON struct {
	Hex     string  `json:"hex"`
	Flight  string  `json:"flight"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	AltGeom float64 `json:"alt_geom"`
}

func (s *simulator) aircraft() []aircraftJSON {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []aircraftJSON
	for _, t := range s.targets {
		if !t.adsb {
			continue
		}
		p := s.position(t, s.now)
		out = append(out, aircraftJSON{
			Hex:     t.hex,
			Flight:  t.flight,
			Lat:     p.Latitude,
			Lon:     p.Longitude,
			AltGeom: p.Altitude / 0.3048,
		})
	}
	return out
}

func (s *simulator) radar() map[string]model.RadarSite {
	return map[string]model.RadarSite{
		"rx": {Name: "SIM RX", Latitude: s.center.Latitude, Longitude: s.center.Longitude, Altitude: 40},
		"tx": {Name: "SIM TX", Latitude: s.center.Latitude - 0.05, Longitude: s.center.Longitude + 0.1, Altitude: 700},
	}
}

func (s *simulator) clock() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now
}

func newHandler(s *simulator) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"system_tracks": s.tracks(),
			"ellipsoids":    s.ellipsoids(),
		})
	})
	mux.HandleFunc("GET /api/config", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"location": s.radar()})
	})
	mux.HandleFunc("GET /data/aircraft.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"now":      float64(s.clock().UnixMilli()) / 1000,
			"aircraft": s.aircraft(),
		})
	})
	return otelhttp.NewHandler(mux, "telemetry-sim")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
