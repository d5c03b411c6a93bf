// Package main provides the entry point for the clipline production server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maauso/clipline/internal/bootstrap"
	"github.com/maauso/clipline/internal/config"
	"github.com/maauso/clipline/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting clipline",
		slog.Int("port", cfg.Port),
		slog.String("gateway_provider", cfg.GatewayProvider),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("temp_dir", cfg.TempDir),
		slog.Duration("tick_interval", cfg.TickInterval),
		slog.Int("max_concurrent_submits", cfg.MaxConcurrentSubmits),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
		slog.Bool("minio_enabled", cfg.MinIOEnabled()),
		slog.Bool("postgres_enabled", cfg.PostgresEnabled()),
		slog.Bool("redis_enabled", cfg.RedisEnabled()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	// Background loops stop with ctx; Close waits for them.
	loopCtx, cancelLoops := context.WithCancel(ctx)
	defer func() {
		cancelLoops()
		deps.Close()
	}()
	if err := deps.Start(loopCtx); err != nil {
		return err
	}

	// Initialize HTTP handlers and router
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = server.DefaultConfig().AllowedOrigins
	}
	handlers := server.NewHandlers(deps.Orchestrator, deps.Stitcher, logger,
		server.WithAllowedOrigins(origins),
	)
	router := server.NewRouter(handlers, logger, server.Config{AllowedOrigins: origins})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // Artifact downloads can be large
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		return err
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
