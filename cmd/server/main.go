// Package main is the entry point for the Beacon audit server. It loads
// configuration, connects the configured storage backend, wires the audit
// plugin and notes widget, and starts the HTTP server.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/beacon/internal/app"
	"github.com/keyxmakerx/beacon/internal/config"
	"github.com/keyxmakerx/beacon/internal/database"
)

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	setupLogging(cfg)

	slog.Info("starting Beacon",
		slog.String("env", cfg.Env),
		slog.Int("port", cfg.Port),
		slog.String("storage", cfg.Storage.Backend),
	)

	// --- Connect Storage ---
	var (
		db  *sql.DB
		rdb *redis.Client
	)
	switch cfg.Storage.Backend {
	case config.BackendMariaDB:
		db, err = database.NewMariaDB(cfg.Database)
		if err != nil {
			slog.Error("failed to connect to MariaDB", slog.Any("error", err))
			os.Exit(1)
		}
		defer db.Close()
		slog.Info("connected to MariaDB")

		if err := database.RunMigrations(db, cfg.Database.MigrationsPath); err != nil {
			slog.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}

	case config.BackendRedis:
		rdb, err = database.NewRedis(cfg.Redis)
		if err != nil {
			slog.Error("failed to connect to Redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer rdb.Close()
		slog.Info("connected to Redis")

	default:
		slog.Warn("using in-memory storage; audit log is lost on restart")
	}

	// --- Create Application ---
	application, err := app.New(cfg, db, rdb)
	if err != nil {
		slog.Error("failed to create application", slog.Any("error", err))
		os.Exit(1)
	}
	application.RegisterRoutes()

	// --- Graceful Shutdown ---
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		slog.Info("shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := application.Echo.Shutdown(ctx); err != nil {
			slog.Error("server forced shutdown", slog.Any("error", err))
		}
	}()

	// --- Start Server ---
	if err := application.Start(); err != nil {
		// Echo returns http.ErrServerClosed on graceful shutdown, which is expected.
		slog.Info("server stopped", slog.Any("reason", err))
	}
}

// setupLogging configures the global slog logger. Development uses text
// format for readability, production uses JSON. LOG_LEVEL picks the level.
func setupLogging(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}

	var handler slog.Handler
	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
