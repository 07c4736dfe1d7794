// Package main is the entry point for the SpaniSami CV backend.
//
// MAIN PACKAGE IN GO:
// main stays minimal:
//  1. Read configuration (environment variables, see internal/config)
//  2. Create the logger
//  3. Build the server and run it until a shutdown signal arrives
//
// Everything else lives in internal/ packages so it can be tested without a
// running process.
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spanisami/cv-backend/internal/config"
	"github.com/spanisami/cv-backend/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// Load fails fast on a missing OPENAI_API_KEY or a half-set group of
	// integration variables. There is no logger yet, so use the default one.
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// Text for a terminal, JSON (LOG_FORMAT=json) for log collectors.
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	// === 3. DATABASE DIRECTORY ===
	// SQLite creates the file but not its parent directory. Skipped when the
	// realtime database holds the users instead.
	if !cfg.Firebase.Enabled() && cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	// === 4. CREATE AND START THE SERVER ===
	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
