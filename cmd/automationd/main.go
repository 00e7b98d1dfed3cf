// automationd - Home Automation Program Manager
//
// This is the main entry point for automationd. It wires together the
// module bus (device state mirroring over MQTT), the program manager
// (condition/body evaluation for user-defined automation programs), and
// the HTTP/WebSocket API that exposes both to user interfaces.
//
// For architecture details, see: docs/architecture/system-overview.md
// For coding standards, see: docs/development/CODING-STANDARDS.md
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/automationd/migrations"

	"github.com/nerrad567/automationd/internal/api"
	"github.com/nerrad567/automationd/internal/automation"
	"github.com/nerrad567/automationd/internal/infrastructure/config"
	"github.com/nerrad567/automationd/internal/infrastructure/database"
	"github.com/nerrad567/automationd/internal/infrastructure/influxdb"
	"github.com/nerrad567/automationd/internal/infrastructure/logging"
	"github.com/nerrad567/automationd/internal/infrastructure/mqtt"
	"github.com/nerrad567/automationd/internal/modulebus"
	"github.com/nerrad567/automationd/internal/scripthost"
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

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	// This is the Go pattern for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Run the application
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting automationd",
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
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	var executionMetrics automation.ExecutionMetrics
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		executionMetrics = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	// Initialise module registry and mirror bus
	moduleRepo := modulebus.NewSQLiteRepository(db.DB)
	moduleRegistry := modulebus.NewRegistry(moduleRepo)
	moduleRegistry.SetLogger(log)

	if refreshErr := moduleRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading module registry: %w", refreshErr)
	}
	log.Info("module registry initialised", "modules", moduleRegistry.Count())

	bus := modulebus.NewBus(mqttClient, moduleRegistry)
	bus.SetLogger(log)
	if startErr := bus.Start(ctx); startErr != nil {
		return fmt.Errorf("starting module bus: %w", startErr)
	}
	defer func() {
		log.Info("stopping module bus")
		if stopErr := bus.Stop(); stopErr != nil {
			log.Error("error stopping module bus", "error", stopErr)
		}
	}()

	// Initialise the script host. ClosureHost is a demo host: it evaluates
	// programs registered as Go closures rather than compiling an external
	// script language. A real deployment would swap in a host that
	// compiles user-authored scripts (spec.md §14 leaves the host pluggable).
	host := scripthost.NewClosureHost()
	registerDemoProgram(host, log)

	// Initialise the program manager and load persisted programs
	programRepo := automation.NewSQLiteRepository(db.DB, cfg.Automation.ArtifactDir)
	commands := automation.NewDynamicApiRegistry()

	manager := automation.NewProgramManager(automation.ManagerConfig{
		Host:       host,
		Publisher:  bus,
		Repository: programRepo,
		Metrics:    executionMetrics,
		Logger:     log,
	})

	programs, err := programRepo.ListPrograms(ctx)
	if err != nil {
		return fmt.Errorf("loading programs: %w", err)
	}
	for _, program := range programs {
		manager.Add(program)
	}
	log.Info("program manager initialised", "programs", len(programs))

	// Route module state changes into the program manager's condition
	// evaluation pipeline (spec.md §4.3's "In" contract).
	unsubscribe := bus.Subscribe(manager.Router().Dispatch)
	defer unsubscribe()
	defer manager.StopAll()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Start the HTTP/WebSocket API
	apiServer, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log,
		Modules:     moduleRegistry,
		MQTT:        mqttClient,
		Manager:     manager,
		ProgramRepo: programRepo,
		Commands:    commands,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API server
	// 2. program schedulers / bus subscription
	// 3. module bus
	// 4. InfluxDB (if enabled)
	// 5. MQTT
	// 6. Database

	log.Info("automationd stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses AUTOMATIOND_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("AUTOMATIOND_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
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
	return nil
}

// registerDemoProgram wires a minimal always-off condition into the closure
// host so a freshly provisioned deployment has at least one address to
// exercise the program CRUD and trigger API against. Real programs are
// created via POST /api/v1/programs and registered against the same host
// out-of-band (spec.md §14 leaves script registration to the host
// implementation, not the core).
func registerDemoProgram(host *scripthost.ClosureHost, log *logging.Logger) {
	const demoAddress = 1
	host.RegisterCondition(demoAddress, func(_ context.Context) (bool, error) {
		return false, nil
	})
	host.RegisterBody(demoAddress, func(_ context.Context, options string) (any, error) {
		log.Info("demo program body invoked", "address", demoAddress, "options", options)
		return "ok", nil
	})
}
