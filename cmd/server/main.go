package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/constituents/internal/auth"
	"github.com/JonMunkholm/constituents/internal/config"
	"github.com/JonMunkholm/constituents/internal/core"
	"github.com/JonMunkholm/constituents/internal/logging"
	"github.com/JonMunkholm/constituents/internal/telemetry"
	"github.com/JonMunkholm/constituents/internal/web"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"seed_count", cfg.Store.SeedCount,
		"chunk_size", cfg.Upload.ChunkSize,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"telemetry_enabled", cfg.Telemetry.Enabled,
	)

	ctx := context.Background()
	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry, version)
	if err != nil {
		slog.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}

	store := core.NewStore()
	if err := store.Seed(cfg.Store.SeedCount); err != nil {
		slog.Error("failed to seed store", "error", err)
		os.Exit(1)
	}
	slog.Info("store seeded", "records", store.Count())

	pipeline, err := core.NewPipeline(store, core.WithChunkSize(cfg.Upload.ChunkSize))
	if err != nil {
		slog.Error("failed to create batch pipeline", "error", err)
		os.Exit(1)
	}
	limiter := core.NewBatchLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime)

	server := web.NewServer(cfg, web.Deps{
		Store:    store,
		Pipeline: pipeline,
		Limiter:  limiter,
		Users:    auth.NewUsers(0),
		Tokens:   auth.NewTokens(cfg.Security.SessionSecret, cfg.Security.SessionTTL),
	})

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Wait for active batches to complete (with timeout)
		if status := limiter.Status(); status.Active > 0 {
			slog.Info("waiting for batches to complete", "active", status.Active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("batches did not complete in time", "error", err)
			} else {
				slog.Info("all batches completed")
			}
		}

		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
