package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/eeg-findings-server/internal/app"
	"github.com/eeg-findings-server/internal/config"
	"github.com/eeg-findings-server/internal/mcp"
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

	// stdout carries the protocol
	application, err := app.New(ctx, configManager, app.Options{LogOutput: "stderr"})
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer application.Close()

	logger := application.Logger
	mcpServer, err := mcp.NewServer(application.Config.MCP, application.Analysis, application.Store, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to create MCP server")
		return
	}

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down MCP server...")
		cancel()
	}()

	if err := mcpServer.Start(ctx); err != nil && ctx.Err() == nil {
		logger.WithError(err).Error("MCP server failed")
		application.Close()
		os.Exit(1)
	}

	logger.Info("EEG findings MCP server stopped")
}
