// Edge Core - Fleet Liveness & Command Correlation Service
//
// This is the main entry point for the Edge Core service. Edge Core is the
// MQTT-facing backend of the fleet: it tracks per-device liveness with
// heartbeat watchdogs, relays commands to devices, correlates their
// asynchronous replies by trace id, and exposes the results over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/redsafetw/edge-core/migrations"

	"github.com/redsafetw/edge-core/internal/api"
	"github.com/redsafetw/edge-core/internal/audit"
	"github.com/redsafetw/edge-core/internal/auth"
	"github.com/redsafetw/edge-core/internal/binding"
	"github.com/redsafetw/edge-core/internal/cache"
	"github.com/redsafetw/edge-core/internal/edge"
	"github.com/redsafetw/edge-core/internal/infrastructure/config"
	"github.com/redsafetw/edge-core/internal/infrastructure/database"
	"github.com/redsafetw/edge-core/internal/infrastructure/influxdb"
	"github.com/redsafetw/edge-core/internal/infrastructure/logging"
	"github.com/redsafetw/edge-core/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// healthCheckTimeout bounds the startup connectivity verification.
const healthCheckTimeout = 5 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Edge Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
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

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	var telemetry edge.TelemetryWriter
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
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
			log.Error("InfluxDB write error", "error", err)
		})
		telemetry = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Build the fleet core: caches, subscription registry, correlator,
	// dispatcher, tracker
	store := cache.NewMemoryStore()
	defer store.Close()

	commandCache := cache.NewCommandCache(store, cfg.GetCommandCacheTTL())
	heartbeatCache := cache.NewHeartbeatCache(store, cfg.GetHeartbeatTTL())

	registry := edge.NewSubscriptionRegistry(mqttClient, log)
	correlator := edge.NewCorrelator(registry, commandCache, cfg.GetCommandTimeout(), log)
	dispatcher := edge.NewDispatcher(mqttClient, correlator, commandCache, log)
	tracker := edge.NewTracker(registry, mqttClient, heartbeatCache, telemetry,
		cfg.GetWatchdogTimeout(), cfg.GetPingInterval(), log)
	defer func() {
		log.Info("stopping edge tracker")
		tracker.Close()
	}()
	log.Info("fleet core initialised",
		"watchdog_timeout", cfg.GetWatchdogTimeout(),
		"ping_interval", cfg.GetPingInterval(),
		"command_timeout", cfg.GetCommandTimeout(),
	)

	// Start HTTP API
	server, err := api.New(api.Deps{
		Config:     cfg.API,
		Logger:     log,
		Tracker:    tracker,
		Dispatcher: dispatcher,
		Commands:   commandCache,
		Bindings:   binding.NewSQLiteRepository(db.DB),
		Audit:      audit.NewSQLiteRepository(db.DB),
		Verifier:   auth.NewVerifier(cfg.Security.JWT.Secret),
		MQTT:       mqttClient,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Tracker (watchdogs, pingers, subscriptions)
	// 3. Cache store
	// 4. InfluxDB (if enabled)
	// 5. MQTT
	// 6. Database

	log.Info("Edge Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses EDGECORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("EDGECORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := db.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(checkCtx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
