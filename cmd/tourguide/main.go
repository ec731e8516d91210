package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/net/netutil"

	"tourguide/internal/api"
	"tourguide/pkg/audio"
	"tourguide/pkg/config"
	"tourguide/pkg/core"
	"tourguide/pkg/db"
	"tourguide/pkg/db/maintenance"
	"tourguide/pkg/geo"
	"tourguide/pkg/location"
	"tourguide/pkg/location/mockwalk"
	"tourguide/pkg/logging"
	"tourguide/pkg/narration"
	"tourguide/pkg/probe"
	"tourguide/pkg/request"
	"tourguide/pkg/store"
	"tourguide/pkg/tour"
	"tourguide/pkg/tracker"
	"tourguide/pkg/version"
	"tourguide/pkg/watcher"
)

const defaultConfigPath = "configs/tourguide.yaml"

// locationPersistInterval throttles writes of the last known position.
const locationPersistInterval = 30 * time.Second

var (
	configPath = flag.String("config", defaultConfigPath, "Path to the YAML config file")
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
)

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", *configPath)
		return
	}

	// A missing .env is fine; it only carries TOURGUIDE_* overrides.
	_ = godotenv.Load()

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("Tourguide Started", "version", version.Version)

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	if err := maintenance.Run(ctx, st, dbConn, maintenance.Options{SeedPath: appCfg.Tour.GeoJSON}); err != nil {
		slog.Error("Maintenance tasks failed", "error", err)
	}

	probes := []probe.Probe{
		probe.Database(dbConn),
		probe.WritableDir("Clip Cache", appCfg.Audio.CacheDir),
		probe.Catalogue(st),
	}
	if err := probe.Report(probe.Run(ctx, probes)); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	prov := config.NewProvider(appCfg, st)
	tr := tracker.New()

	// Audio
	fetcher := request.New(st, tr, request.Config{
		CacheDir:  appCfg.Audio.CacheDir,
		Timeout:   appCfg.Request.Timeout.Std(),
		Retries:   appCfg.Request.Retries,
		BaseDelay: appCfg.Request.Backoff.BaseDelay.Std(),
		MaxDelay:  appCfg.Request.Backoff.MaxDelay.Std(),
	})
	speaker := audio.NewSpeakerBackend(fetcher, prov.Volume(ctx), appCfg.Engine.Fade.Std())
	ctrl := audio.NewController(speaker, prov.StatusInterval(ctx))
	defer ctrl.Close()

	// Narration
	engine := narration.New(ctrl, nil, narration.Options{
		Threshold:     prov.Threshold(ctx),
		ExitThreshold: prov.ExitThreshold(ctx),
	})
	ctrl.OnStatus(engine.HandleStatus)
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := engine.Run(ctx); err != nil {
			slog.Error("Narration engine failed", "error", err)
		}
	}()

	// Location
	feed, err := initLocation(ctx, appCfg, prov.LocationProvider(ctx))
	if err != nil {
		return err
	}
	defer feed.Close()

	// Catalogue and scheduler
	catalog := tour.NewCatalog(st, appCfg.Tour.Radius.Meters())
	if pt, ok := prov.LastLocation(ctx); ok {
		if err := core.RefreshAround(ctx, catalog, engine, pt); err != nil {
			slog.Warn("Initial POI refresh failed", "error", err)
		} else {
			slog.Info("Catalogue primed from last location", "lat", pt.Lat, "lon", pt.Lon, "pois", len(catalog.POIs()))
		}
	}

	sched := setupScheduler(appCfg, feed, engine, catalog, prov)
	go func() {
		if err := sched.Start(ctx); err != nil {
			slog.Error("Scheduler failed", "error", err)
		}
	}()

	// API
	hub := api.NewHub(engine.Snapshot)
	unsubscribe := engine.Subscribe(hub.Publish)
	defer unsubscribe()
	defer hub.Close()

	err = runServer(ctx, appCfg, api.Handlers{
		Narration: api.NewNarrationHandler(engine, engine.Session()),
		Location:  api.NewLocationHandler(feed),
		POIs:      api.NewPOIHandler(catalog, engine.Session()),
		Audio:     api.NewAudioHandler(speaker, prov),
		Config:    api.NewConfigHandler(prov, engine),
		Stats:     api.NewStatsHandler(tr, engine, engine.Session(), hub.ClientCount),
		Hub:       hub,
	})

	cancel()
	<-engineDone
	return err
}

func initDB(appCfg *config.Config) (*db.DB, store.Store, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

// locationFeed is the push side of a location source.
type locationFeed interface {
	location.Source
	api.LocationPusher
	Close() error
}

// initLocation returns the feed the API pushes into. For the mock provider the
// walker drives the same feed.
func initLocation(ctx context.Context, cfg *config.Config, provider string) (locationFeed, error) {
	if provider != config.LocationMock {
		slog.Info("Location Source: Push")
		return location.NewFeed(), nil
	}

	route := make([]geo.Point, 0, len(cfg.Location.Mock.Route))
	for _, wp := range cfg.Location.Mock.Route {
		route = append(route, geo.Point{Lat: wp.Lat, Lon: wp.Lon})
	}
	walker, err := mockwalk.New(mockwalk.Config{
		Route:    route,
		Speed:    cfg.Location.Mock.Speed,
		Interval: cfg.Location.Mock.Interval.Std(),
		Loop:     cfg.Location.Mock.Loop,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mock walk: %w", err)
	}
	slog.Info("Location Source: Mock walk")
	go func() {
		if err := walker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Mock walk stopped", "error", err)
		}
	}()
	return walker, nil
}

func setupScheduler(cfg *config.Config, src location.Source, engine *narration.Engine, catalog *tour.Catalog, prov *config.UnifiedProvider) *core.Scheduler {
	sched := core.NewScheduler(src, engine, core.DefaultTick, cfg.Location.JumpThreshold.Meters())
	sched.AddResettable(engine.Session())

	sched.AddJob(core.NewRefreshJob(catalog, engine, cfg.Tour.RefreshDistance.Meters()))
	if interval := cfg.Tour.RefreshInterval.Std(); interval > 0 {
		sched.AddJob(core.NewRefreshTimerJob(catalog, engine, interval))
	}
	sched.AddJob(core.NewLocationPersistJob(prov, locationPersistInterval))

	if seed, interval := cfg.Tour.GeoJSON, cfg.Tour.WatchInterval.Std(); seed != "" && interval > 0 {
		w, err := watcher.NewService([]string{seed})
		if err != nil {
			slog.Warn("Tour reload disabled", "error", err)
		} else {
			sched.AddJob(core.NewTourReloadJob(w, catalog, catalog, engine, interval))
		}
	}
	return sched
}

func runServer(ctx context.Context, cfg *config.Config, h api.Handlers) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	srv := api.NewServer(cfg.Server.Address, h, shutdownFunc)
	srv.Handler = loggingMiddleware(srv.Handler)

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
	}
	if cfg.Server.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.MaxConnections)
	}
	return runServerLifecycle(ctx, srv, ln, quit)
}

func runServerLifecycle(ctx context.Context, srv *http.Server, ln net.Listener, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", ln.Addr().String())
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.RequestLogger.Info("Request Processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
