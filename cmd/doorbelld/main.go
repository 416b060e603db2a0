// Package main is the entry point for the doorbell relay daemon.
//
// doorbelld keeps one MQTT session to the sensor broker, tracks the
// doorbell sensor's liveness and trigger events, and exposes that state
// over HTTP and WebSocket. Optionally every event is recorded to SQLite
// and exported to InfluxDB.
//
// Usage:
//
//	doorbelld                  run the relay
//	doorbelld token <subject>  print an API bearer token for subject
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/damaru/doorbell/internal/api"
	"github.com/damaru/doorbell/internal/history"
	"github.com/damaru/doorbell/internal/infrastructure/config"
	"github.com/damaru/doorbell/internal/infrastructure/database"
	"github.com/damaru/doorbell/internal/infrastructure/influxdb"
	"github.com/damaru/doorbell/internal/infrastructure/logging"
	"github.com/damaru/doorbell/internal/infrastructure/mqtt"
	"github.com/damaru/doorbell/internal/relay"
	"github.com/damaru/doorbell/migrations"
)

// Build information, set via ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configEnv         = "DOORBELL_CONFIG"

	// recorderDrainTimeout bounds how long shutdown waits for queued
	// history entries.
	recorderDrainTimeout = 5 * time.Second

	// transportCloseTimeout bounds the wait for the final MQTT disconnect.
	transportCloseTimeout = 2 * time.Second
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := issueToken(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the relay together and blocks until ctx is cancelled.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting doorbell relay",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"filter", cfg.MQTT.Topics.Filter,
		"history", cfg.History.Enabled,
		"influxdb", cfg.InfluxDB.Enabled,
		"test_mode", cfg.TestMode,
	)

	// components are reported by GET /api/v1/health.
	components := make(map[string]api.HealthChecker)

	// History database
	var repo *history.SQLiteRepository
	if cfg.History.Enabled {
		db, err := database.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()

		if err := db.Migrate(ctx, migrations.FS); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		log.Info("database ready", "path", db.Path())

		repo = history.NewSQLiteRepository(db.DB)
		components["database"] = db
	}

	// InfluxDB export
	var influx *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influx, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to influxdb: %w", err)
		}
		defer func() {
			if closeErr := influx.Close(); closeErr != nil {
				log.Error("error closing influxdb", "error", closeErr)
			}
		}()
		influx.SetOnError(func(err error) {
			log.Error("influxdb write error", "error", err)
		})
		log.Info("connected to influxdb", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		components["influxdb"] = influx
	}

	var recorders []relay.Sink
	recorder := newRecorder(repo, influx, log)
	if recorder != nil {
		recorders = append(recorders, recorder)
		defer func() {
			drainCtx, cancel := context.WithTimeout(context.Background(), recorderDrainTimeout)
			defer cancel()
			if closeErr := recorder.Close(drainCtx); closeErr != nil {
				log.Warn("history recorder did not drain", "error", closeErr)
			}
		}()
	}

	// Broker transport and coordinator
	transport, err := mqtt.New(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("creating mqtt client: %w", err)
	}
	transport.SetLogger(log.Component("mqtt"))
	transport.SetOnConnectError(func(err error) {
		log.Warn("mqtt connection attempt failed", "error", err)
	})
	components["mqtt"] = transport

	coord, err := relay.New(relay.Options{
		Transport: transport,
		Config:    cfg.MQTT,
		Logger:    log.Component("relay"),
		Recorders: recorders,
	})
	if err != nil {
		transport.Close() //nolint:errcheck // already failing
		return fmt.Errorf("creating coordinator: %w", err)
	}
	defer func() {
		coord.Destroy()
		closeCtx, cancel := context.WithTimeout(context.Background(), transportCloseTimeout)
		defer cancel()
		if closeErr := transport.WaitClosed(closeCtx); closeErr != nil {
			log.Warn("mqtt transport did not close in time", "error", closeErr)
		}
	}()

	coord.ConnectFromInit()

	// API server
	deps := api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log.Component("api"),
		Coordinator: coord,
		Components:  components,
		TestMode:    cfg.TestMode,
		Version:     version,
	}
	if repo != nil {
		deps.History = repo
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating api server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting api server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing api server", "error", closeErr)
		}
	}()
	if cfg.Security.JWT.Secret == "" {
		log.Warn("api authentication disabled: no jwt secret configured")
	}

	if repo != nil {
		go history.RunPruner(ctx, repo, cfg.HistoryRetention(), history.DefaultPruneInterval, log.Component("history"))
	}

	log.Info("doorbell relay started")

	<-ctx.Done()
	log.Info("shutting down")

	// Deferred in reverse: API server, coordinator, recorder, influxdb,
	// database.
	return nil
}

// newRecorder returns nil when there is nowhere to record to. The
// parameters are checked individually so a nil client never becomes a
// non-nil interface.
func newRecorder(repo *history.SQLiteRepository, influx *influxdb.Client, log *logging.Logger) *history.Recorder {
	if repo == nil && influx == nil {
		return nil
	}

	opts := history.RecorderOptions{Logger: log.Component("history")}
	if repo != nil {
		opts.Repository = repo
	}
	if influx != nil {
		opts.Exporter = influx
	}
	return history.NewRecorder(opts)
}

// issueToken handles "doorbelld token [-ttl d] <subject>".
func issueToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: doorbelld token [-ttl duration] <subject>")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if cfg.Security.JWT.Secret == "" {
		return errors.New("security.jwt.secret is not configured")
	}

	token, err := api.IssueToken(cfg.Security.JWT.Secret, fs.Arg(0), *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

// getConfigPath returns the configuration file path from the environment
// or the default.
func getConfigPath() string {
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}
