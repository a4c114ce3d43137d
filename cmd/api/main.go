// Package main is the entry point for the krishi advisor API.
//
// It loads configuration, builds the knowledge base and engines, and serves
// the HTTP API. When DATABASE_URL is set, queued sensor readings are archived
// to PostgreSQL; when MQTT_BROKER_URL is set, device telemetry is consumed
// from the broker. Without either the advisor still answers every query from
// cached and seasonal data.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"krishi/internal/api/handlers"
	"krishi/internal/config"
	"krishi/internal/core"
	"krishi/internal/db"
	"krishi/internal/devicebus"
	"krishi/internal/external"
	"krishi/internal/farm"
	"krishi/internal/fertilizer"
	"krishi/internal/health"
	"krishi/internal/irrigation"
	"krishi/internal/knowledge"
	"krishi/internal/metrics"
	"krishi/internal/sensors"
	"krishi/internal/syncer"
	"krishi/internal/types"
	"krishi/internal/voice"
	"krishi/internal/weather"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("krishi advisor starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger, prometheus.NewRegistry(), types.RealClock{})
	if err != nil {
		return err
	}

	if cfg.Database.URL.IsSet() {
		pool, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()
		if err := a.useArchive(ctx, db.NewReadingRepository(pool), pool.Ping); err != nil {
			return err
		}
	} else {
		logger.Warn("DATABASE_URL not set; readings stay queued in memory")
	}

	if cfg.MQTT.BrokerURL != "" {
		client, err := devicebus.Dial(cfg.MQTT, logger)
		if err != nil {
			return fmt.Errorf("connecting to device broker: %w", err)
		}
		defer client.Disconnect(250)
		if err := a.useBroker(client, client.IsConnectionOpen); err != nil {
			return err
		}
	} else {
		logger.Warn("MQTT_BROKER_URL not set; devices must post telemetry over HTTP")
	}

	if err := a.serve(ctx); err != nil {
		return err
	}
	logger.Info("krishi advisor stopped cleanly")
	return nil
}

// archiveStore is the reading archive used by the API process.
type archiveStore interface {
	syncer.Archive
	handlers.ReadingArchive
	EnsureSchema(ctx context.Context) error
	LatestPerDevice(ctx context.Context) ([]types.SensorReading, error)
}

// app holds the wired components of the API process.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	clock   types.Clock
	metrics *metrics.Collector

	kb         *knowledge.Base
	sensors    *sensors.Service
	weather    *weather.Engine
	farm       *farm.Store
	irrigation *irrigation.Engine
	fertilizer *fertilizer.Engine
	health     *health.Engine
	voice      *voice.Router
	vision     *external.VisionClient

	publisher *busPublisher
	archive   archiveStore
	worker    *syncer.Worker
	bus       *devicebus.Bus
	probes    []core.HealthProbe
}

// newApp builds the engines and services. External connections are attached
// afterwards with useArchive and useBroker.
func newApp(cfg *config.Config, logger *slog.Logger, reg *prometheus.Registry, clock types.Clock) (*app, error) {
	kb, err := knowledge.Default()
	if err != nil {
		return nil, fmt.Errorf("loading knowledge base: %w", err)
	}

	collector := metrics.New(reg)
	publisher := &busPublisher{}

	sensorSvc := sensors.NewService(sensors.Config{
		Clock:           clock,
		LivenessWindow:  cfg.Sensor.LivenessWindow,
		StalenessWindow: cfg.Sensor.StalenessWindow,
		MaxPending:      cfg.Sensor.MaxPendingSync,
		Climate:         kb,
		Publisher:       publisher,
		Observer:        collector,
		Logger:          logger.With("component", "sensors"),
	})
	weatherEng := weather.NewEngine(weather.Config{
		Climate:         kb,
		Clock:           clock,
		StalenessWindow: cfg.Weather.StalenessWindow,
		Recorder:        sensorSvc,
		Logger:          logger.With("component", "weather"),
	})

	initial, err := farmFromConfig(cfg.Farm, clock.Now())
	if err != nil {
		return nil, err
	}
	store, err := farm.NewStore(kb, clock, initial)
	if err != nil {
		return nil, fmt.Errorf("default farm context: %w", err)
	}

	irr := irrigation.NewEngine(kb, irrigation.Policy{
		ReplenishFraction: cfg.Advisory.ReplenishFraction,
		ETcCarryDays:      cfg.Advisory.ETcCarryDays,
	})
	fert := fertilizer.NewEngine(kb)
	hlth := health.NewEngine(kb)

	router := voice.NewRouter(voice.Config{
		Intents:       kb,
		Irrigation:    irr,
		Fertilizer:    fert,
		Health:        hlth,
		Weather:       weatherEng,
		Sensors:       sensorSvc,
		Clock:         clock,
		MinConfidence: cfg.Advisory.MinIntentConfidence,
		Observer:      collector,
		Logger:        logger.With("component", "voice"),
	})

	return &app{
		cfg:        cfg,
		logger:     logger,
		clock:      clock,
		metrics:    collector,
		kb:         kb,
		sensors:    sensorSvc,
		weather:    weatherEng,
		farm:       store,
		irrigation: irr,
		fertilizer: fert,
		health:     hlth,
		voice:      router,
		vision:     external.NewVisionClient(cfg.Vision, collector),
		publisher:  publisher,
	}, nil
}

// farmFromConfig builds the initial farm context. An unset sowing date
// means sown today.
func farmFromConfig(fc config.FarmConfig, now time.Time) (types.FarmContext, error) {
	sown := now.UTC().Truncate(24 * time.Hour)
	if fc.SowingDate != "" {
		t, err := time.Parse(time.DateOnly, fc.SowingDate)
		if err != nil {
			return types.FarmContext{}, fmt.Errorf("parsing DEFAULT_SOWING_DATE: %w", err)
		}
		sown = t
	}
	return types.FarmContext{
		Crop:       types.CropType(fc.Crop),
		Soil:       types.SoilType(fc.Soil),
		SowingDate: sown,
		PlotSizeM2: fc.PlotSizeM2,
	}, nil
}

// useArchive prepares the archive, seeds the sensor cache from it and
// schedules the sync worker.
func (a *app) useArchive(ctx context.Context, store archiveStore, ping func(context.Context) error) error {
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("preparing reading archive: %w", err)
	}
	latest, err := store.LatestPerDevice(ctx)
	if err != nil {
		return fmt.Errorf("loading archived readings: %w", err)
	}
	a.sensors.WarmCache(latest)
	a.logger.Info("sensor cache warmed from archive", "devices", len(latest))

	a.archive = store
	a.worker = syncer.NewWorker(a.sensors, store, syncer.Config{
		Interval:  a.cfg.Sync.Interval,
		BatchSize: a.cfg.Sync.BatchSize,
		Clock:     a.clock,
		Observer:  a.metrics,
		Logger:    a.logger.With("component", "syncer"),
	})
	a.probes = append(a.probes, core.NewProbe("database", ping))
	return nil
}

// useBroker attaches the MQTT transport for telemetry and commands.
func (a *app) useBroker(broker devicebus.Broker, connected func() bool) error {
	bus, err := devicebus.New(broker, a.sensors, devicebus.Config{
		TelemetryTopic: a.cfg.MQTT.TelemetryTopic,
		CommandPrefix:  a.cfg.MQTT.CommandPrefix,
		Timeout:        a.cfg.MQTT.ConnectTimeout,
		Logger:         a.logger.With("component", "devicebus"),
	})
	if err != nil {
		return fmt.Errorf("configuring device bus: %w", err)
	}
	a.bus = bus
	a.publisher.bus.Store(bus)
	a.probes = append(a.probes, core.NewProbe("mqtt", func(context.Context) error {
		if !connected() {
			return errors.New("broker connection is down")
		}
		return nil
	}))
	return nil
}

// newServer builds the HTTP chassis with every handler mounted.
func (a *app) newServer() (*core.Server, error) {
	srv, err := core.NewServer(a.cfg.Server, a.logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = a.metrics
	srv.MetricsHandler = a.metrics.Handler()
	srv.HealthProbes = a.probes

	advisories := handlers.NewAdvisoryHandler(handlers.AdvisoryDeps{
		Irrigation: a.irrigation,
		Fertilizer: a.fertilizer,
		Health:     a.health,
		Weather:    a.weather,
		Sensors:    a.sensors,
		Farm:       a.farm,
		Clock:      a.clock,
	}, srv.Validator, a.logger)
	visionHandler := handlers.NewVisionHandler(a.vision, a.farm, a.logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		func(r chi.Router) {
			r.Route("/advisories", func(r chi.Router) {
				advisories.RegisterRoutes(r)
				visionHandler.RegisterRoutes(r)
			})
		},
		func(r chi.Router) {
			r.Route("/weather", handlers.NewWeatherHandler(a.weather, srv.Validator, a.logger).RegisterRoutes)
		},
		func(r chi.Router) {
			r.Route("/farm", handlers.NewFarmHandler(a.farm, srv.Validator, a.logger).RegisterRoutes)
		},
		func(r chi.Router) {
			r.Route("/voice", handlers.NewVoiceHandler(a.voice, a.farm, srv.Validator, a.logger).RegisterRoutes)
		},
		handlers.NewSensorHandler(a.sensors, a.archive, srv.Validator, a.logger).RegisterRoutes,
	)

	srv.MountRoutes()
	return srv, nil
}

// serve runs the HTTP server and, when attached, the device bus and sync
// worker until ctx is cancelled or one of them fails.
func (a *app) serve(ctx context.Context) error {
	srv, err := a.newServer()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx) })
	if a.bus != nil {
		g.Go(func() error { return a.bus.Run(gctx) })
	}
	if a.worker != nil {
		g.Go(func() error { return a.worker.Run(gctx) })
	}
	return g.Wait()
}

// busPublisher forwards commands to the device bus once one is attached.
type busPublisher struct {
	bus atomic.Pointer[devicebus.Bus]
}

func (p *busPublisher) PublishCommand(ctx context.Context, cmd types.DeviceCommand) error {
	bus := p.bus.Load()
	if bus == nil {
		return errors.New("no device transport configured")
	}
	return bus.PublishCommand(ctx, cmd)
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
