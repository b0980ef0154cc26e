package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/scene-reconciler/core"
	"github.com/signalsfoundry/scene-reconciler/internal/config"
	"github.com/signalsfoundry/scene-reconciler/internal/control"
	"github.com/signalsfoundry/scene-reconciler/internal/events"
	"github.com/signalsfoundry/scene-reconciler/internal/fetch"
	"github.com/signalsfoundry/scene-reconciler/internal/logging"
	"github.com/signalsfoundry/scene-reconciler/internal/observability"
	"github.com/signalsfoundry/scene-reconciler/internal/poll"
	"github.com/signalsfoundry/scene-reconciler/internal/stream"
	"github.com/signalsfoundry/scene-reconciler/kb"
	"github.com/signalsfoundry/scene-reconciler/model"
	"github.com/signalsfoundry/scene-reconciler/scene"
	"google.golang.org/grpc"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	httpAddr := flag.String("http-addr", "", "HTTP address for the scene API and websocket stream (overrides config)")
	grpcAddr := flag.String("grpc-addr", "", "TCP address of the gRPC health server (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (overrides config)")
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.NewFromEnv().Error(ctx, "failed to load config", logging.Err(err))
		os.Exit(1)
	}
	if *httpAddr != "" {
		cfg.Server.HTTPAddr = *httpAddr
	}
	if *grpcAddr != "" {
		cfg.Server.GRPCAddr = *grpcAddr
	}
	if *metricsAddr != "" {
		cfg.Server.MetricsAddr = *metricsAddr
	}

	log := logging.New(cfg.Logging())

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	a, err := newApp(cfg, log, nil)
	if err != nil {
		log.Error(ctx, "failed to build scene server", logging.Err(err))
		os.Exit(1)
	}

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := a.run(stopCtx); err != nil {
		log.Error(ctx, "scene server exited", logging.Err(err))
		os.Exit(1)
	}
}

// app wires the scene engine, the store, the reconcilers and every surface
// around them.
type app struct {
	cfg       config.Config
	log       logging.Logger
	collector *observability.SceneCollector
	delivery  *observability.DeliveryCollector

	engine    *scene.Memory
	store     *kb.KnowledgeBase
	tracks    *core.TrackReconciler
	health    *control.Health
	hub       *stream.Hub
	loops     []*poll.Loop
	publisher *events.Publisher

	ready    chan struct{}
	mu       sync.Mutex
	httpAddr string
	grpcAddr string
}

func newApp(cfg config.Config, log logging.Logger, reg prometheus.Registerer) (*app, error) {
	collector, err := observability.NewSceneCollector(reg)
	if err != nil {
		return nil, err
	}
	delivery, err := observability.NewDeliveryCollector(reg)
	if err != nil {
		return nil, err
	}

	engine := scene.NewMemory()
	store := kb.NewKnowledgeBase(engine, kb.WithHistoryLength(cfg.Tracks.HistoryLength))
	a := &app{
		cfg:       cfg,
		log:       log,
		collector: collector,
		delivery:  delivery,
		engine:    engine,
		store:     store,
		health:    control.NewHealth(log),
		ready:     make(chan struct{}),
	}
	a.tracks = core.NewTrackReconciler(store,
		core.WithLogger(log),
		core.WithVisibility(core.NewVisibility()),
		core.WithLegendRecorder(collector),
	)
	a.hub = stream.NewHub(engine, a.tracks, stream.WithLogger(log), stream.WithMetrics(delivery))
	a.loops = a.buildLoops()

	if cfg.Kafka.Enabled {
		a.publisher = events.New(
			events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic),
			events.WithLogger(log),
			events.WithMetrics(delivery),
			events.WithQueueSize(cfg.Kafka.QueueSize),
			events.WithFlushInterval(cfg.Kafka.Flush),
		)
		a.publisher.Attach(store)
	}
	return a, nil
}

func (a *app) buildLoops() []*poll.Loop {
	cfg := a.cfg
	client := fetch.NewClient(fetch.WithTimeout(cfg.API.Timeout))
	solver := fetch.Endpoint{Client: client, URL: fetch.TracksURL(cfg.API.BaseURL, cfg.API.Query)}

	loop := func(category string, f fetch.Fetcher, h poll.Handler, delay time.Duration, healthKey string, extra ...poll.Option) *poll.Loop {
		opts := []poll.Option{
			poll.WithDelay(delay),
			poll.WithLogger(a.log),
			poll.WithObserver(a.collector),
			poll.WithCycleHook(a.cycleHook(healthKey)),
		}
		return poll.New(category, f, h, append(opts, extra...)...)
	}

	loops := []*poll.Loop{
		loop(string(model.CategoryEllipsoids), solver,
			core.NewEllipsoidReconciler(a.store,
				core.WithLogger(a.log),
				core.WithMaxAge(cfg.Ellipsoids.MaxAge),
				core.WithBaseAlpha(cfg.Ellipsoids.BaseAlpha)),
			cfg.Poll.Delay, "ellipsoids"),
		loop("tracks", solver, a.tracks, cfg.Poll.Delay, "tracks"),
	}
	radar := core.NewRadarReconciler(a.store, core.WithLogger(a.log))
	for _, host := range cfg.Radars {
		ep := fetch.Endpoint{Client: client, URL: fetch.RadarConfigURL(host)}
		loops = append(loops, loop(string(model.CategoryRadar), ep, radar, cfg.Poll.RadarDelay, "radar:"+host,
			poll.WithNotFoundTolerated()))
	}
	if cfg.AdsbURL != "" {
		ep := fetch.Endpoint{Client: client, URL: fetch.AircraftURL(cfg.AdsbURL)}
		adsb := core.NewAdsbReconciler(a.store, core.WithLogger(a.log), core.WithMaxAge(cfg.Adsb.MaxAge))
		loops = append(loops, loop(string(model.CategoryAdsb), ep, adsb, cfg.Poll.AdsbDelay, "adsb"))
	}
	return loops
}

func (a *app) cycleHook(healthKey string) func(string) {
	record := a.health.Hook(healthKey)
	return func(outcome string) {
		record(outcome)
		a.collector.SetEntityCounts(a.engine.CountByCategory())
	}
}

// run serves until ctx is cancelled, then shuts every component down.
func (a *app) run(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", a.cfg.Server.HTTPAddr)
	if err != nil {
		return err
	}
	httpSrv := &http.Server{Handler: stream.NewHandler(a.hub, a.log), ReadHeaderTimeout: 5 * time.Second}

	var grpcSrv *grpc.Server
	var grpcLis net.Listener
	if a.cfg.Server.GRPCAddr != "" {
		grpcLis, err = net.Listen("tcp", a.cfg.Server.GRPCAddr)
		if err != nil {
			_ = httpLis.Close()
			return err
		}
		grpcSrv = control.NewServer(a.health, a.collector, a.log)
	}
	metricsSrv := serveMetrics(a.cfg.Server.MetricsAddr, a.collector, a.log)

	a.mu.Lock()
	a.httpAddr = httpLis.Addr().String()
	if grpcLis != nil {
		a.grpcAddr = grpcLis.Addr().String()
	}
	a.mu.Unlock()

	a.log.Info(ctx, "starting scene HTTP server", logging.String("addr", httpLis.Addr().String()))
	go func() {
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error(ctx, "HTTP server exited", logging.Err(err))
		}
	}()
	if grpcSrv != nil {
		a.log.Info(ctx, "starting gRPC health server", logging.String("addr", grpcLis.Addr().String()))
		go func() {
			if err := grpcSrv.Serve(grpcLis); err != nil {
				a.log.Error(ctx, "gRPC server exited", logging.Err(err))
			}
		}()
	}

	var wg sync.WaitGroup
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.hub.Run(runCtx)
	}()
	if a.publisher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.publisher.Run(runCtx)
		}()
	}
	for _, l := range a.loops {
		if err := l.Start(runCtx); err != nil {
			a.log.Warn(ctx, "poll loop not started", logging.String("loop", l.Name()), logging.Err(err))
		}
	}
	a.log.Info(ctx, "scene server running", logging.Int("loops", len(a.loops)))
	close(a.ready)

	<-ctx.Done()
	a.log.Info(context.Background(), "shutting down scene server")

	a.health.Shutdown()
	for _, l := range a.loops {
		l.Stop()
	}
	cancel()
	wg.Wait()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	_ = httpSrv.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn(shutdownCtx, "closing event publisher", logging.Err(err))
		}
	}
	return nil
}

// addrs reports the bound HTTP and gRPC addresses once run has started.
func (a *app) addrs() (string, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.httpAddr, a.grpcAddr
}

func serveMetrics(addr string, collector *observability.SceneCollector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.String("error", err.Error()))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
