package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goodtune/promptlog/internal/config"
	"github.com/goodtune/promptlog/internal/settings"
	"github.com/goodtune/promptlog/internal/storage"
	"github.com/goodtune/promptlog/internal/storage/bolt"
	"github.com/goodtune/promptlog/internal/storage/redis"
	"github.com/goodtune/promptlog/internal/storage/sqlite"
	"github.com/rs/zerolog"
)

// environment is the shared state of the one-shot subcommands.
type environment struct {
	cfg      *config.Config
	logger   zerolog.Logger
	store    storage.Store
	settings *settings.Manager
}

// openEnvironment loads the configuration and opens the store with a quiet
// logger. Callers must close it.
func openEnvironment(ctx context.Context) (*environment, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	// Create a quiet logger for one-shot commands
	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	return &environment{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		settings: settings.Load(ctx, store.Settings(), logger),
	}, nil
}

func (e *environment) Close() {
	if err := e.store.Close(); err != nil {
		e.logger.Error().Err(err).Msg("Failed to close storage")
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(storage.ExpandPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// openStorage opens the configured backend.
func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "bolt":
		return bolt.Open(cfg.Path)
	case "sqlite":
		return sqlite.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Set output format
	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(out).With().Timestamp().Logger()
}
