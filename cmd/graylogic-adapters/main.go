// Gray Logic Adapters connects home-automation protocols to a single,
// policy-gated command surface.
//
// It loads the configured protocol adapters (MQTT, Zigbee2MQTT, a cloud hub
// or the built-in fake home), queues commands through the adapter manager,
// records every decision in a SQLite audit trail and serves the result over
// HTTP and WebSocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-adapters/internal/api"
	"github.com/nerrad567/gray-logic-adapters/internal/audit"
	"github.com/nerrad567/gray-logic-adapters/internal/bridges"
	"github.com/nerrad567/gray-logic-adapters/internal/home"
	"github.com/nerrad567/gray-logic-adapters/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-adapters/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-adapters/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-adapters/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-adapters/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-adapters/internal/manager"
	"github.com/nerrad567/gray-logic-adapters/internal/policy"
	"github.com/nerrad567/gray-logic-adapters/migrations"
)

// Version information, set at build time via ldflags:
// go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configEnv         = "GRAYLOGIC_ADAPTERS_CONFIG"

	// shutdownTimeout bounds adapter shutdown once a signal arrives.
	shutdownTimeout = 15 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application body, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Adapters",
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
	log.Info("configuration loaded", "path", configPath, "adapters", len(cfg.Adapters))

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", db.Path())

	met := metrics.New()

	mgr := manager.New(manager.Options{
		MaxQueueSize:    cfg.Manager.MaxQueueSize,
		CommandThrottle: throttle(cfg),
		CommandTimeout:  cfg.GetCommandTimeout(),
		Logger:          log.Component("manager"),
		Metrics:         met,
	})
	if err := registerAdapters(cfg, mgr, log); err != nil {
		return err
	}

	influxClient, err := connectInflux(ctx, cfg, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		unsubscribe := mgr.Subscribe(influxClient.StateListener())
		defer unsubscribe()
	}

	for id, initErr := range mgr.InitializeAll(ctx) {
		// A failed adapter keeps retrying in the background; the rest serve.
		log.Warn("adapter failed to initialise", "adapter_id", id, "error", initErr)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for id, shutErr := range mgr.ShutdownAll(shutdownCtx) {
			log.Error("adapter shutdown failed", "adapter_id", id, "error", shutErr)
		}
		log.Info("adapters stopped")
	}()

	engine := policy.New(policy.FromConfig(cfg.Policy), policy.WithLocation(cfg.Location()))
	svc := home.New(home.Options{
		Manager: mgr,
		Policy:  engine,
		Audit:   audit.NewSQLiteRepository(db.DB),
		Metrics: met,
		Logger:  log.Component("home"),
	})

	if cfg.API.Enabled {
		srv, err := api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Security: cfg.Security,
			Logger:   log,
			Home:     svc,
			Metrics:  met,
			Version:  version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		if cfg.Security.JWT.Secret == "" {
			log.Warn("API authentication disabled: security.jwt.secret is empty")
		}
	} else {
		log.Info("API disabled")
	}

	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: database: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// registerAdapters builds every enabled adapter and registers it.
func registerAdapters(cfg *config.Config, mgr *manager.Manager, log *logging.Logger) error {
	for _, ac := range cfg.Adapters {
		if ac.Disabled {
			log.Info("adapter disabled", "adapter_id", ac.ID, "type", ac.Type)
			continue
		}
		a, err := bridges.New(ac, bridges.Deps{Logger: log.ForAdapter(ac.ID, ac.Type)})
		if err != nil {
			return fmt.Errorf("building adapter %s: %w", ac.ID, err)
		}
		if err := mgr.Register(a, ac.Priority); err != nil {
			return fmt.Errorf("registering adapter %s: %w", ac.ID, err)
		}
		log.Info("adapter registered", "adapter_id", ac.ID, "type", ac.Type, "priority", ac.Priority)
	}
	return nil
}

// connectInflux returns nil when telemetry is disabled. An unreachable
// server is logged, not fatal: telemetry is optional.
func connectInflux(ctx context.Context, cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	if !cfg.InfluxDB.Enabled {
		log.Info("InfluxDB disabled")
		return nil, nil
	}
	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrConnectionFailed):
		log.Warn("InfluxDB unreachable, state telemetry off", "url", cfg.InfluxDB.URL, "error", err)
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "org", cfg.InfluxDB.Org, "bucket", cfg.InfluxDB.Bucket)
	return client, nil
}

// throttle maps the configured gap onto manager semantics, where zero
// means the default and a negative value disables throttling.
func throttle(cfg *config.Config) time.Duration {
	if d := cfg.GetCommandThrottle(); d > 0 {
		return d
	}
	return -1
}

// getConfigPath returns the configuration file path.
func getConfigPath() string {
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}
