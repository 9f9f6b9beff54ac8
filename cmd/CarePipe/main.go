package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/AudienHealth/CarePipe/internal/api"
	"github.com/AudienHealth/CarePipe/internal/caller"
	"github.com/AudienHealth/CarePipe/internal/dispatch"
	"github.com/AudienHealth/CarePipe/internal/lockfile"
	"github.com/AudienHealth/CarePipe/internal/scheduler"
	"github.com/AudienHealth/CarePipe/internal/store"
	"github.com/AudienHealth/CarePipe/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for CarePipe state data
	DefaultStateDir = "/var/lib/carepipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "carepipe.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	// File-based state needs its directory and an exclusive lock: two
	// dispatchers over the same database would both dial due callbacks.
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		lock, err := lockfile.Acquire(stateDir)
		if err != nil {
			slog.Error("Failed to lock state directory", "error", err)
			os.Exit(1)
		}
		defer lock.Release()
	}

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	dispatcher := buildDispatcher(flags, st)
	sched := scheduler.NewScheduler()
	server := api.NewServer(st, dispatcher, sched, buildAPIOptions(flags)...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping CarePipe", "addr", *flags.apiAddr, "provider", *flags.provider, "dsn_set", *flags.dbDSN != "")
	if err := server.Run(ctx); err != nil {
		slog.Error("CarePipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("CarePipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseDSN     string
	StateDir        string
	APIAddr         string
	Provider        string
	ElevenLabsKey   string
	RecalculateCron string
	PollInterval    time.Duration
}

// Flags holds command line flag values
type Flags struct {
	stateDir      *string
	dbDSN         *string
	apiAddr       *string
	provider      *string
	elevenLabsKey *string
	recalcCron    *string
	pollInterval  *time.Duration
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseDSN:     os.Getenv("DATABASE_DSN"),
		StateDir:        os.Getenv("CAREPIPE_STATE_DIR"),
		APIAddr:         os.Getenv("API_ADDR"),
		Provider:        os.Getenv("CALL_PROVIDER"),
		ElevenLabsKey:   os.Getenv("ELEVENLABS_API_KEY"),
		RecalculateCron: os.Getenv("RECALCULATE_SCHEDULE"),
		PollInterval:    util.ParseDurationEnv("DISPATCH_POLL_INTERVAL", dispatch.DefaultPollInterval),
	}

	// Legacy name, kept for hosted deployments.
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = os.Getenv("DATABASE_URL")
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No CAREPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// With no database DSN, default to SQLite in the state directory.
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseDSN)
	}

	if config.Provider == "" {
		config.Provider = "elevenlabs"
	}

	slog.Debug("environment variables loaded",
		"DATABASE_DSN_SET", config.DatabaseDSN != "",
		"CAREPIPE_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"CALL_PROVIDER", config.Provider,
		"ELEVENLABS_API_KEY_SET", config.ElevenLabsKey != "",
		"RECALCULATE_SCHEDULE", config.RecalculateCron,
		"DISPATCH_POLL_INTERVAL", config.PollInterval)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for CarePipe data (overrides $CAREPIPE_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseDSN, "database DSN, SQLite path or Postgres URL (overrides $DATABASE_DSN)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		provider:      flag.String("call-provider", config.Provider, "outbound call backend, elevenlabs or twilio (overrides $CALL_PROVIDER)"),
		elevenLabsKey: flag.String("elevenlabs-api-key", config.ElevenLabsKey, "ElevenLabs API key (overrides $ELEVENLABS_API_KEY)"),
		recalcCron:    flag.String("recalc-cron", config.RecalculateCron, "cron expression for the nightly schedule recalculation (overrides $RECALCULATE_SCHEDULE)"),
	}
	flags.pollInterval = flag.Duration("poll-interval", config.PollInterval, "dispatcher poll interval (overrides $DISPATCH_POLL_INTERVAL)")

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"provider", *flags.provider,
		"elevenLabsKeySet", *flags.elevenLabsKey != "",
		"recalcCron", *flags.recalcCron,
		"pollInterval", *flags.pollInterval)

	// Follow a changed state directory when the DSN was left at its default.
	if *flags.dbDSN == config.DatabaseDSN && config.DatabaseDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// buildStore opens the backing store for the configured DSN.
func buildStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
}

// buildDispatcher wires the outbound call backend into a dispatcher. A nil
// return means no backend is usable; the API still runs, calls are just
// never placed.
func buildDispatcher(flags Flags, st store.Store) *dispatch.Dispatcher {
	c, err := buildCaller(flags)
	if err != nil {
		slog.Warn("Outbound calling disabled", "provider", *flags.provider, "error", err)
		return nil
	}
	return dispatch.NewDispatcher(st, c, dispatch.WithInterval(*flags.pollInterval))
}

// buildCaller constructs the configured call backend.
func buildCaller(flags Flags) (caller.Caller, error) {
	if *flags.provider == "twilio" {
		return caller.NewTwilioCaller()
	}
	return caller.NewElevenLabsCaller(caller.WithAPIKey(*flags.elevenLabsKey))
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.recalcCron != "" {
		apiOpts = append(apiOpts, api.WithRecalculateSpec(*flags.recalcCron))
	}
	return apiOpts
}
