// Gray Logic Dirigera Bridge
//
// Entry point for the bridge between an IKEA Dirigera hub and Gray Logic.
// The bridge mirrors hub devices as typed entities, publishes them over
// MQTT, and discovers devices the hub reports after startup.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-dirigera/internal/api"
	"github.com/nerrad567/gray-logic-dirigera/internal/bridges/dirigera"
	"github.com/nerrad567/gray-logic-dirigera/internal/discovery"
	"github.com/nerrad567/gray-logic-dirigera/internal/entity"
	"github.com/nerrad567/gray-logic-dirigera/internal/hub"
	"github.com/nerrad567/gray-logic-dirigera/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-dirigera/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-dirigera/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-dirigera/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-dirigera/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-dirigera/internal/platform"
	"github.com/nerrad567/gray-logic-dirigera/migrations"
)

// Version information, set at build time via ldflags:
// go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	migrateDown := flag.Bool("migrate-down", false, "Roll back the most recent database migration and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	if *migrateDown {
		err = rollback(ctx)
	} else {
		err = run(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the bridge together and blocks until ctx is cancelled.
//
// Returns:
//   - error: nil on clean shutdown, or the first startup failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Dirigera bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	db, err := database.Open(ctx, database.Config{
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
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	mqttClient, err := mqtt.Connect(ctx, cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() { log.Info("MQTT connected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })

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
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	hubClient, err := hub.NewClient(hub.ClientOptions{
		Config: cfg.Hub,
		Logger: log.Component("hub"),
	})
	if err != nil {
		return fmt.Errorf("creating hub client: %w", err)
	}
	if err := hubClient.Ping(ctx); err != nil {
		return fmt.Errorf("contacting hub: %w", err)
	}
	log.Info("hub reachable", "url", hubClient.BaseURL())

	attemptRepo := discovery.NewSQLiteAttemptRepository(db)
	if cfg.Discovery.RecordAttempts {
		go attemptRepo.RunRetention(ctx, discovery.RetentionPolicy{
			MaxAge:   cfg.GetAttemptRetention(),
			MaxRows:  cfg.Discovery.AttemptMaxRows,
			Interval: cfg.GetAttemptPruneInterval(),
		}, log.Component("retention"))
	}

	coord, err := discovery.NewCoordinator(discovery.Options{
		Fetcher:    hubClient,
		Controller: hubClient,
		Recorders:  recorders(cfg, attemptRepo, influxClient),
		Logger:     log.Component("discovery"),
	})
	if err != nil {
		return fmt.Errorf("creating discovery coordinator: %w", err)
	}

	setOpts := platformOptions(cfg, db, mqttClient, influxClient, log)
	setOpts.Namer = hubClient
	platforms := platform.NewSet(setOpts)
	platforms.Register(coord)
	if err := platforms.Start(ctx, mqttClient); err != nil {
		return fmt.Errorf("starting platforms: %w", err)
	}
	defer func() {
		if stopErr := platforms.Stop(); stopErr != nil {
			log.Warn("error unsubscribing from command topics", "error", stopErr)
		}
	}()

	bridge, err := startBridge(ctx, cfg, hubClient, coord, platforms, mqttClient, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()

	if cfg.API.Enabled {
		deps := api.Deps{
			Config:      cfg.API,
			Logger:      log.Component("api"),
			Coordinator: coord,
			Platforms:   platforms,
			Hub:         hubClient,
			Bridge:      bridge,
			Database:    db,
			MQTT:        mqttClient,
			Commands:    platforms,
			Version:     version,
		}
		if cfg.Discovery.RecordAttempts {
			deps.Attempts = attemptRepo
		}
		srv, srvErr := api.New(deps)
		if srvErr != nil {
			return fmt.Errorf("creating API server: %w", srvErr)
		}
		if srvErr := srv.Start(ctx); srvErr != nil {
			return fmt.Errorf("starting API server: %w", srvErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient, platforms); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete", "entities", platforms.Len())

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns GRAYLOGIC_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// enabledCategories returns the categories that get a platform.
func enabledCategories(cfg *config.Config) []entity.Category {
	var cats []entity.Category
	for _, cat := range entity.Categories() {
		if cfg.CategoryEnabled(string(cat)) {
			cats = append(cats, cat)
		}
	}
	return cats
}

// recorders returns the attempt sinks enabled by cfg. Either argument may
// be nil.
func recorders(cfg *config.Config, repo *discovery.SQLiteAttemptRepository, influxClient *influxdb.Client) []discovery.Recorder {
	var out []discovery.Recorder
	if cfg.Discovery.RecordAttempts && repo != nil {
		out = append(out, repo)
	}
	if influxClient != nil {
		out = append(out, discovery.RecorderFunc(func(_ context.Context, a *discovery.Attempt) error {
			influxClient.WriteDiscovery(influxdb.DiscoveryPoint{
				DeviceID:   a.DeviceID,
				VendorType: a.VendorType,
				Category:   a.Category,
				Outcome:    string(a.Outcome),
				Duration:   time.Duration(a.DurationMS) * time.Millisecond,
				Timestamp:  a.CreatedAt,
			})
			return nil
		}))
	}
	return out
}

// platformOptions builds the platform set options. A nil influx client
// leaves Telemetry unset rather than storing a typed nil.
func platformOptions(cfg *config.Config, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, log *logging.Logger) platform.Options {
	opts := platform.Options{
		Categories: enabledCategories(cfg),
		Repository: platform.NewSQLiteRepository(db.DB),
		Publisher:  mqttClient,
		Logger:     log.Component("platform"),
	}
	if influxClient != nil {
		opts.Telemetry = influxClient
	}
	return opts
}

// startBridge creates and starts the Dirigera bridge.
//
// Returns:
//   - *dirigera.Bridge: Running bridge; the caller must Stop it
//   - error: If the bridge cannot be created or the initial sync fails
func startBridge(ctx context.Context, cfg *config.Config, hubClient *hub.Client, coord *discovery.Coordinator,
	platforms *platform.Set, mqttClient *mqtt.Client, log *logging.Logger) (*dirigera.Bridge, error) {
	opts := dirigera.Options{
		Hub:             hubClient,
		Coordinator:     coord,
		Platforms:       platforms,
		Controller:      hubClient,
		Publisher:       mqttClient,
		InitialSync:     cfg.Discovery.InitialSync,
		SyncConcurrency: cfg.Discovery.SyncConcurrency,
		HealthInterval:  cfg.GetHealthInterval(),
		HubAddress:      hubClient.BaseURL(),
		Version:         version,
		Logger:          log.Component("bridge"),
	}
	if cfg.Hub.EmptyScenes {
		opts.Scenes = hubClient
	}
	if cfg.Hub.Events.Enabled {
		opts.Events = hubClient.NewEventListener(cfg.Hub.Events)
	} else {
		log.Info("hub event stream disabled; only the initial sync will run")
	}

	bridge, err := dirigera.NewBridge(opts)
	if err != nil {
		return nil, fmt.Errorf("creating bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		bridge.Stop()
		return nil, fmt.Errorf("starting bridge: %w", err)
	}
	return bridge, nil
}

// healthCheck verifies the infrastructure connections and the command
// subscription.
//
// Returns:
//   - error: First failing check, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, commands api.HealthChecker) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	if err := commands.HealthCheck(ctx); err != nil {
		return fmt.Errorf("commands: %w", err)
	}
	return nil
}

// rollback reverts the most recently applied migration of the configured
// database. It connects to nothing else.
func rollback(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logging.New(cfg.Logging, version)

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // process exits next

	applied, _, err := db.GetMigrationStatus(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	if len(applied) == 0 {
		log.Info("no migrations to roll back", "path", cfg.Database.Path)
		return nil
	}
	if err := db.MigrateDown(ctx, migrations.FS); err != nil {
		return fmt.Errorf("rolling back migration: %w", err)
	}
	log.Info("migration rolled back", "version", applied[len(applied)-1].Version, "path", cfg.Database.Path)
	return nil
}
