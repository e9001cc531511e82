package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/eeg-findings-server/internal/api"
	"github.com/eeg-findings-server/internal/app"
	"github.com/eeg-findings-server/internal/config"
)

func main() {
	// Load configuration
	configManager, err := config.NewManagerFromFile(os.Getenv("EEG_CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, configManager, app.Options{})
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer application.Close()

	logger := application.Logger
	var opts []api.Option
	if application.Cache != nil {
		opts = append(opts, api.WithHealthCheck("cache", application.Cache))
	}
	server := api.NewServer(configManager, application.Analysis, application.Store, logger, opts...)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Start server
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("Server failed")
		application.Close()
		os.Exit(1)
	}

	logger.Info("Server stopped")
}
