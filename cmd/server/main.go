/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the revenue recognition server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (file, REVREC_* environment, defaults)
  2. Build the zap logger
  3. Initialize SQLite store
  4. Create builder, poster and API handler
  5. Configure HTTP router
  6. Start the posting scheduler (when enabled)
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Config file path (default: ./revrec.yaml if present)
  -port    HTTP server port, overrides config
  -db      SQLite database path, overrides config
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the posting scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/revrec.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Configure through the environment
  REVREC_SERVER_PORT=3000 REVREC_LOG_FORMAT=json ./server

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - internal/config/config.go: configuration keys
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/revrec-engine/api"
	"github.com/warp/revrec-engine/internal/config"
	"github.com/warp/revrec-engine/internal/logging"
	"github.com/warp/revrec-engine/ledger"
	"github.com/warp/revrec-engine/revrec"
	"github.com/warp/revrec-engine/store/sqlite"
	"go.uber.org/zap"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "Config file path")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.String("path", cfg.Database.Path), zap.Error(err))
	}
	defer store.Close()

	// Initialize handler
	builder := revrec.NewBuilder(cfg.RevrecPolicy(), logger.Named("revrec"))
	handler := api.NewHandler(store, builder, ledger.NewPoster(cfg.Accounts), logger.Named("api"))
	if cfg.Server.ConcurrencyLimit > 0 {
		handler.ConcurrencyLimit = cfg.Server.ConcurrencyLimit
	}

	// Create router
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins...)

	// Month-end posting
	scheduler := api.NewPostingScheduler(handler)
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.CheckInterval = cfg.Scheduler.Interval
	scheduler.Start()

	// Create server
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("database", cfg.Database.Path))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		return
	}

	logger.Info("server stopped")
}
