package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/scene-reconciler/core"
	"github.com/signalsfoundry/scene-reconciler/internal/config"
	"github.com/signalsfoundry/scene-reconciler/internal/logging"
	"github.com/signalsfoundry/scene-reconciler/internal/poll"
	"github.com/signalsfoundry/scene-reconciler/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const upstreamSolver = `{
	"system_tracks": [
		{"track_id": 1, "status": "CONFIRMED", "current_state_vector": [6378137, 0, 0]},
		{"track_id": 2, "status": "TENTATIVE", "current_state_vector": [0, 6378137, 0]}
	],
	"ellipsoids": {"0-1": [[-34.9, 138.6, 50], [-34.8, 138.5, 60]]}
}`

const upstreamRadar = `{"location": {
	"rx": {"name": "RX", "latitude": -34.92, "longitude": 138.60, "altitude": 40},
	"tx": {"name": "TX", "latitude": -34.98, "longitude": 138.71, "altitude": 700}
}}`

const upstreamAircraft = `{"aircraft": [{"hex": "7c6b2d", "flight": "QFA1", "lat": -34.9, "lon": 138.6, "alt_geom": 10000}]}`

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(upstreamSolver)) })
	mux.HandleFunc("/api/config", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(upstreamRadar)) })
	mux.HandleFunc("/data/aircraft.json", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(upstreamAircraft)) })
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(upstream string) config.Config {
	cfg := config.Default()
	cfg.API.BaseURL = upstream
	cfg.Radars = []string{upstream}
	cfg.AdsbURL = upstream
	cfg.Poll.Delay = 20 * time.Millisecond
	cfg.Poll.RadarDelay = 20 * time.Millisecond
	cfg.Poll.AdsbDelay = 20 * time.Millisecond
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Server.GRPCAddr = "127.0.0.1:0"
	cfg.Server.MetricsAddr = ""
	return cfg
}

func TestBuildLoops(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Radars = []string{"10.0.0.1", "10.0.0.2"}
	a, err := newApp(cfg, logging.Noop(), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	var names []string
	for _, l := range a.loops {
		names = append(names, l.Name())
	}
	want := []string{"ellipsoids", "tracks", "radar", "radar", "adsb"}
	if len(names) != len(want) {
		t.Fatalf("loops = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("loops = %v, want %v", names, want)
		}
	}

	cfg.AdsbURL = ""
	cfg.Radars = nil
	a, err = newApp(cfg, logging.Noop(), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	if len(a.loops) != 2 {
		t.Fatalf("loops without radar or adsb = %d, want 2", len(a.loops))
	}
}

func TestSceneServerEndToEnd(t *testing.T) {
	upstream := newUpstream(t)
	a, err := newApp(testConfig(upstream.URL), logging.Noop(), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- a.run(ctx) }()

	select {
	case <-a.ready:
	case err := <-errCh:
		t.Fatalf("run exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("server never became ready")
	}

	wantCategories := []model.Category{
		model.CategoryTrackConfirmed, model.CategoryTrackTentative,
		model.CategoryEllipsoids, model.CategoryRadar, model.CategoryAdsb,
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		counts := a.engine.CountByCategory()
		missing := false
		for _, c := range wantCategories {
			if counts[c] == 0 {
				missing = true
			}
		}
		if !missing {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("scene never filled, counts = %v", counts)
		}
		time.Sleep(10 * time.Millisecond)
	}

	httpAddr, grpcAddr := a.addrs()
	resp, err := http.Get("http://" + httpAddr + "/api/legend")
	if err != nil {
		t.Fatalf("GET legend: %v", err)
	}
	var legend core.Legend
	err = json.NewDecoder(resp.Body).Decode(&legend)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode legend: %v", err)
	}
	if legend.TotalTracks != 2 {
		t.Fatalf("legend = %+v, want 2 tracks", legend)
	}

	conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	defer conn.Close()
	rpcCtx, rpcCancel := context.WithTimeout(ctx, 2*time.Second)
	defer rpcCancel()
	check, err := healthpb.NewHealthClient(conn).Check(rpcCtx, &healthpb.HealthCheckRequest{Service: "scene.tracks"})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if check.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("scene.tracks = %v, want SERVING", check.GetStatus())
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
	for _, l := range a.loops {
		if l.Cycles() == 0 {
			t.Fatalf("loop %s never cycled", l.Name())
		}
	}
}

func TestRunFailsOnBusyAddress(t *testing.T) {
	busy := httptest.NewServer(http.NotFoundHandler())
	defer busy.Close()

	cfg := testConfig("http://127.0.0.1:1")
	cfg.Server.HTTPAddr = busy.Listener.Addr().String()
	a, err := newApp(cfg, logging.Noop(), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	if err := a.run(context.Background()); err == nil {
		t.Fatalf("run on a busy address returned nil")
	}
}

func TestOnlyRadarLoopsTolerateNotFound(t *testing.T) {
	gone := httptest.NewServer(http.NotFoundHandler())
	defer gone.Close()

	cfg := testConfig(gone.URL)
	cfg.Radars = []string{gone.URL}
	a, err := newApp(cfg, logging.Noop(), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	want := map[string]string{
		"ellipsoids": poll.OutcomeFetchFailed,
		"tracks":     poll.OutcomeFetchFailed,
		"radar":      poll.OutcomeNotFound,
		"adsb":       poll.OutcomeFetchFailed,
	}
	for _, l := range a.loops {
		if got := l.RunOnce(context.Background()); got != want[l.Name()] {
			t.Fatalf("%s 404 outcome = %q, want %q", l.Name(), got, want[l.Name()])
		}
	}
	if got := a.health.Status("tracks"); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("tracks status = %v, want NOT_SERVING", got)
	}
	if got := a.health.Status("radar:" + gone.URL); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("radar status = %v, want SERVING", got)
	}
}
