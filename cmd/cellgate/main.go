// Cellgate Core - GSM device gateway hub
//
// This is the main entry point for Cellgate Core. It accepts WebSocket
// connections from GSM devices (an ESP32 with a SIM800 class modem) and
// from dashboards, routes dashboard commands to a device, and fans device
// results back out to every dashboard. Optional MQTT and InfluxDB sinks
// mirror the same event stream.
//
// Utility modes:
//
//	cellgate -gen-device-token        print a new device connect token
//	cellgate -issue-token operator    print a dashboard access token
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/cellgate-core/internal/api"
	"github.com/nerrad567/cellgate-core/internal/audit"
	"github.com/nerrad567/cellgate-core/internal/auth"
	"github.com/nerrad567/cellgate-core/internal/command"
	"github.com/nerrad567/cellgate-core/internal/contact"
	"github.com/nerrad567/cellgate-core/internal/device"
	"github.com/nerrad567/cellgate-core/internal/events"
	"github.com/nerrad567/cellgate-core/internal/hub"
	"github.com/nerrad567/cellgate-core/internal/infrastructure/config"
	"github.com/nerrad567/cellgate-core/internal/infrastructure/database"
	"github.com/nerrad567/cellgate-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/cellgate-core/internal/infrastructure/logging"
	"github.com/nerrad567/cellgate-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/cellgate-core/migrations"
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

// sinkBuffer is the bus subscription buffer of each event sink.
const sinkBuffer = 256

func main() {
	genDeviceToken := flag.Bool("gen-device-token", false, "print a new device connect token and exit")
	issueToken := flag.String("issue-token", "", "print a dashboard access token for `role` (viewer or operator) and exit")
	subject := flag.String("subject", "dashboard", "subject of the token printed by -issue-token")
	flag.Parse()

	switch {
	case *genDeviceToken:
		if err := printDeviceToken(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	case *issueToken != "":
		if err := printAccessToken(os.Stdout, auth.Role(*issueToken), *subject); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error { //nolint:gocognit,funlen // linear startup sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Cellgate Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

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
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	deviceRepo := device.NewSQLiteRepository(db.DB)
	commandRepo := command.NewSQLiteRepository(db.DB)
	contactRepo := contact.NewSQLiteRepository(db.DB)

	// No device is connected yet; anything still marked online is left
	// over from an unclean shutdown.
	stale, err := deviceRepo.MarkAllOffline(ctx)
	if err != nil {
		return fmt.Errorf("resetting device presence: %w", err)
	}
	if stale > 0 {
		log.Warn("devices left online by previous run marked offline", "count", stale)
	}

	h := hub.New(hub.NewStore(deviceRepo, commandRepo), hub.Credentials{
		Pepper:           cfg.Security.DeviceTokenPepper,
		ProvisioningKeys: cfg.Devices.ProvisioningKeys,
		DefaultName:      cfg.Devices.DefaultName,
	})
	h.SetLogger(log.Component("hub"))
	if len(cfg.Devices.ProvisioningKeys) == 0 {
		log.Warn("no provisioning keys configured; only known devices can connect")
	}

	// Sinks stop with sinkCtx, before the clients they write to are closed.
	sinkCtx, stopSinks := context.WithCancel(ctx)
	defer stopSinks()

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = startMQTT(sinkCtx, cfg.MQTT, h, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
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
		go events.Pump(sinkCtx, h.Bus(), sinkBuffer, "influxdb", events.NewTelemetry(influxClient), log.Component("telemetry"))
	} else {
		log.Info("InfluxDB disabled")
	}

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log.Component("api"),
		Hub:      h,
		Devices:  deviceRepo,
		Commands: commandRepo,
		Contacts: contactRepo,
		Audit:    audit.NewSQLiteRepository(db.DB),
		MQTT:     mqttClient,
		DB:       db,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		log.Warn("startup health check failed", "error", err)
	} else {
		log.Info("all health checks passed")
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Closing the API first ends every device session, so devices are
	// marked offline while the database is still open.
	if err := server.Close(); err != nil {
		log.Error("error closing API server", "error", err)
	}
	stopSinks()

	log.Info("Cellgate Core stopped")
	return nil
}

// startMQTT connects to the broker, starts mirroring bus events and serves
// requests published to the request topics.
func startMQTT(ctx context.Context, cfg config.MQTTConfig, h *hub.Hub, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)

	mqttLog := log.Component("mqtt")
	client.SetLogger(mqttLog)
	client.SetOnConnect(func() {
		mqttLog.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		mqttLog.Warn("MQTT disconnected", "error", err)
	})

	mirror := events.NewMQTTMirror(client, client.Topics(), client.QoS())
	go events.Pump(ctx, h.Bus(), sinkBuffer, "mqtt", mirror, mqttLog)

	bridge := events.NewRequestBridge(client, client.Topics(), client.QoS(), h.Responder())
	bridge.SetLogger(mqttLog)
	if err := bridge.Start(ctx); err != nil {
		client.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("starting MQTT request bridge: %w", err)
	}
	return client, nil
}

// getConfigPath returns the configuration file path.
// Uses CELLGATE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("CELLGATE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// The MQTT and InfluxDB clients are nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// printDeviceToken writes a fresh device connect token. It becomes a
// device's credential once listed in devices.provisioning_keys.
func printDeviceToken(w io.Writer) error {
	token, err := auth.GenerateDeviceToken()
	if err != nil {
		return fmt.Errorf("generating device token: %w", err)
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

// printAccessToken writes a dashboard token signed with the configured JWT
// secret.
func printAccessToken(w io.Writer, role auth.Role, subject string) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %q (want %s or %s)", role, auth.RoleViewer, auth.RoleOperator)
	}
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.Security.JWT.Enabled {
		return errors.New("security.jwt is disabled; dashboards need no token")
	}
	token, err := auth.GenerateAccessToken(subject, role, cfg.Security.JWT.Secret, cfg.Security.JWT.AccessTokenTTL)
	if err != nil {
		return fmt.Errorf("issuing access token: %w", err)
	}
	_, err = fmt.Fprintln(w, token)
	return err
}
