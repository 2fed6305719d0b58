// Grid Control Gateway
//
// This is the main entry point for the solar telemetry and control gateway.
// It subscribes to device telemetry over MQTT, records samples, applies the
// peak-shaving and export-limit control law to every sample, and publishes
// commands back to devices. Operators drive the same command path through
// the REST API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gridcontrol/internal/api"
	"github.com/nerrad567/gridcontrol/internal/command"
	"github.com/nerrad567/gridcontrol/internal/control"
	"github.com/nerrad567/gridcontrol/internal/infrastructure/config"
	"github.com/nerrad567/gridcontrol/internal/infrastructure/database"
	"github.com/nerrad567/gridcontrol/internal/infrastructure/influxdb"
	"github.com/nerrad567/gridcontrol/internal/infrastructure/logging"
	"github.com/nerrad567/gridcontrol/internal/infrastructure/mqtt"
	"github.com/nerrad567/gridcontrol/internal/metrics"
	"github.com/nerrad567/gridcontrol/internal/telemetry"
	"github.com/nerrad567/gridcontrol/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, prometheus.DefaultRegisterer, prometheus.DefaultGatherer); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - reg: Registry the gateway metrics are registered with
//   - gatherer: Source for the /metrics endpoint
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, reg prometheus.Registerer, gatherer prometheus.Gatherer) error { //nolint:gocyclo // linear startup sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting grid control gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version).With("site_id", cfg.Site.ID)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	m := metrics.New(reg)

	// Connect to MQTT broker. The session comes up in the background and
	// is retried until it succeeds.
	mqttClient, err := mqtt.Connect(cfg.MQTT, log.With("component", "mqtt"),
		mqtt.WithOnConnect(func() {
			m.SetTransportConnected(true)
		}),
		mqtt.WithOnDisconnect(func(error) {
			m.SetTransportConnected(false)
		}),
		mqtt.WithOnPublishError(func(topic string, err error) {
			m.PublishFailed()
			log.Warn("MQTT publish failed", "topic", topic, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			m.PersistFailed("influxdb")
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Command path
	commandLog := command.NewSQLiteLog(db.DB)
	dispatcher := command.NewDispatcher(command.DispatcherDeps{
		Publisher:  mqttClient,
		Topics:     mqttClient.Topics(),
		QoS:        mqttClient.QoS(),
		Log:        commandLog,
		LogTimeout: cfg.GetPersistTimeout(),
		Metrics:    m,
		Logger:     log.With("component", "command"),
	})

	// Control engine
	store := control.NewStore()
	load, err := control.NewLoadProvider(cfg.Control.Load)
	if err != nil {
		return fmt.Errorf("configuring load provider: %w", err)
	}
	engineDeps := control.EngineDeps{
		Configs:       store,
		Load:          load,
		ExportLimitKW: cfg.Control.ExportLimitKW,
		DerateBase:    cfg.Control.DerateBase,
		Dispatcher:    dispatcher,
		Metrics:       m,
		Logger:        log.With("component", "control"),
	}
	if influxClient != nil {
		engineDeps.Points = influxClient
	}
	engine := control.NewEngine(engineDeps)
	log.Info("control engine ready",
		"load_source", cfg.Control.Load.Source,
		"export_limit_kw", cfg.Control.ExportLimitKW,
	)

	// Telemetry ingestion
	telemetryRepo := telemetry.NewSQLiteRepository(db.DB)
	var recorders []telemetry.Recorder
	if cfg.Telemetry.Persist {
		recorders = append(recorders, telemetryRepo)
	}
	if influxClient != nil {
		recorders = append(recorders, telemetry.NewInfluxRecorder(influxClient))
	}
	telemetryLog := log.With("component", "telemetry")
	pipeline := telemetry.NewPipeline(telemetry.PipelineDeps{
		Recorders:      recorders,
		PersistTimeout: cfg.GetPersistTimeout(),
		Metrics:        m,
		Logger:         telemetryLog,
	})
	pipeline.OnSample(engine.HandleSample)

	router := telemetry.NewRouter(telemetry.RouterDeps{
		Topics:   mqttClient.Topics(),
		Pipeline: pipeline,
		Alerts:   telemetry.NewAlertSink(db.DB, telemetryLog),
		Metrics:  m,
		Logger:   telemetryLog,
	})

	topics := mqttClient.Topics()
	for _, kind := range []string{mqtt.KindTelemetry, mqtt.KindAlert} {
		pattern := topics.Pattern(kind)
		if subErr := mqttClient.Subscribe(pattern, mqttClient.QoS(), router.Handle); subErr != nil {
			return fmt.Errorf("subscribing to %s: %w", pattern, subErr)
		}
		log.Info("subscribed", "topic", pattern)
	}

	// Operator API
	var apiServer *api.Server
	if cfg.API.Enabled {
		var apiErr error
		apiServer, apiErr = api.New(api.Deps{
			Config:       cfg.API,
			Logger:       log.With("component", "api"),
			Controller:   control.NewController(store, dispatcher, log.With("component", "operator")),
			Store:        store,
			Telemetry:    telemetryRepo,
			Commands:     commandLog,
			Transport:    mqttClient,
			Gatherer:     gatherer,
			HistoryLimit: cfg.Telemetry.HistoryLimit,
			Version:      version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if err := healthCheck(ctx, db, influxClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		log.Warn("MQTT not connected yet; commands are dropped until it is", "error", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API, InfluxDB, MQTT, database.

	log.Info("grid control gateway stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRIDCONTROL_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRIDCONTROL_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the storage connections the gateway cannot run without.
// MQTT is excluded: it connects in the background.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//   - apiServer: API server to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client, apiServer *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if apiServer != nil {
		if err := apiServer.HealthCheck(ctx); err != nil {
			return fmt.Errorf("api: %w", err)
		}
	}

	return nil
}
