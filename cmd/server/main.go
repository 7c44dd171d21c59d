package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/bcnelson/autoreply-console/internal/api"
	"github.com/bcnelson/autoreply-console/internal/automation"
	"github.com/bcnelson/autoreply-console/internal/config"
	"github.com/bcnelson/autoreply-console/internal/storage/sql"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", "error", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", "error", err)
	}

	logger := cfg.Log.NewLogger(os.Stderr)
	log.SetDefault(logger)

	// Create data directory if needed (for SQLite)
	if cfg.Database.Driver == "sqlite3" && cfg.Database.DSN != ":memory:" {
		if dir := filepath.Dir(cfg.Database.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				logger.Fatal("Failed to create data directory", "dir", dir, "error", err)
			}
		}
	}

	// Initialize storage
	store, err := sql.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("Failed to initialize storage", "error", err)
	}
	defer store.Close()

	var responder automation.Responder = automation.LogResponder{Logger: logger.WithPrefix("responder")}
	if cfg.Webhook.ResponderFile != "" {
		logger.Info("journaling outbound actions to file", "path", cfg.Webhook.ResponderFile)
		responder = automation.NewFileResponder(cfg.Webhook.ResponderFile)
	}
	processor := automation.NewProcessor(store, responder)

	// Create router
	router := api.NewRouter(store, logger, api.Options{
		BootstrapKey: cfg.Auth.BootstrapAPIKey,
		VerifyToken:  cfg.Webhook.VerifyToken,
		Processor:    processor,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.Info("Starting auto-reply backend", "addr", "http://"+cfg.Server.Addr(), "driver", cfg.Database.Driver)

	// Start server in goroutine
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped")
}
