/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the insights server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and configuration
  2. Build the logger
  3. Open the snapshot store
  4. Build reference tables, loader and pipeline; restore the last snapshot
  5. Configure HTTP router and start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML configuration file (optional)
  -env     dotenv file loaded before configuration (default: .env)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (shutdown timeout)
  3. Close the store
  4. Exit

ENVIRONMENT:
  Every setting can be overridden with INSIGHTS_* variables, e.g.
  INSIGHTS_SERVER_PORT=9000 INSIGHTS_STORE_DRIVER=memory

SEE ALSO:
  - config/config.go: Settings and precedence
  - api/server.go: Router configuration
  - cmd/insights: One-shot CLI
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/warp/insights-engine/api"
	"github.com/warp/insights-engine/config"
	"github.com/warp/insights-engine/factory"
	"github.com/warp/insights-engine/insights"
	"github.com/warp/insights-engine/logging"
	"github.com/warp/insights-engine/metrics"
	"github.com/warp/insights-engine/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "insights-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	configPath := flag.String("config", "", "YAML configuration file")
	envFile := flag.String("env", ".env", "dotenv file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	// Initialize store
	snapshots, storeCloser, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer storeCloser.Close()

	ref, err := factory.NewReferenceFactory().LoadFile(cfg.Reference.File)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	pipeline := insights.New(
		insights.NewLoader(insights.NewNormalizer(ref), logger),
		insights.Options{
			Detect:   insights.DetectOptions{Sigma: cfg.Pipeline.Sigma, Limit: cfg.Pipeline.AnomalyTopN},
			Store:    snapshots,
			Observer: collector,
			Logger:   logger,
		},
	)

	// Load the last persisted snapshot
	if err := pipeline.Restore(context.Background()); err != nil {
		logger.Warn("Failed to restore snapshot", slog.String("error", err.Error()))
	}

	handler := api.NewHandler(pipeline, api.Config{
		DataDir:     cfg.Pipeline.DataDir,
		StoreDriver: cfg.Store.Driver,
		RunTimeout:  cfg.Pipeline.RunTimeout,
		Logger:      logger,
	})
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Metrics:        collector.Handler(),
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting",
			slog.String("addr", server.Addr),
			slog.String("data_dir", cfg.Pipeline.DataDir),
			slog.String("store", cfg.Store.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-quit:
	}

	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}
