// Package app wires configuration, logging, storage, the response cache and the vision
// analyzer into the analysis service shared by the binaries.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/eeg-findings-server/internal/cache"
	"github.com/eeg-findings-server/internal/domain"
	"github.com/eeg-findings-server/internal/logging"
	"github.com/eeg-findings-server/internal/service"
	"github.com/eeg-findings-server/internal/storage"
	"github.com/eeg-findings-server/pkg/vision"
)

// App holds the long-lived dependencies of a process.
type App struct {
	Config   *domain.Config
	Logger   *logrus.Logger
	Store    storage.Store
	Cache    *cache.ResponseCache
	Analyzer domain.VisionAnalyzer
	Analysis *service.AnalysisService

	logCloser io.Closer
}

// Options select which parts are built.
type Options struct {
	// SkipVision builds the service with vision disabled, for tools that only read history.
	SkipVision bool
	// LogOutput overrides logging.output, e.g. "stderr" for the stdio MCP server.
	LogOutput string
}

// New builds the application from configuration. Close releases everything it opened.
func New(ctx context.Context, cm domain.ConfigManager, opts Options) (*App, error) {
	cfg := cm.GetConfig()

	logCfg := cfg.Logging
	if opts.LogOutput != "" {
		logCfg.Output = opts.LogOutput
	}
	logger, logCloser, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}

	a := &App{Config: cfg, Logger: logger, logCloser: logCloser}

	store, err := storage.Open(ctx, cfg.Database, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a.Store = store

	a.Analyzer = vision.Disabled{}
	if !opts.SkipVision {
		responses, err := cache.New(cfg.Cache, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create response cache: %w", err)
		}
		a.Cache = responses

		analyzer, err := vision.New(cfg.Vision, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create vision analyzer: %w", err)
		}
		a.Analyzer = analyzer
	}

	var responses service.ResponseCache
	if a.Cache != nil {
		responses = a.Cache
	}
	a.Analysis = service.NewAnalysisService(logger, a.Analyzer, responses, store)

	logger.WithFields(logrus.Fields{
		"environment":  cfg.Environment,
		"store":        cfg.Database.Driver,
		"provider":     a.Analyzer.Name(),
		"model":        a.Analyzer.Model(),
		"shared_cache": cfg.Cache.RedisURL != "",
	}).Info("Application initialized")
	return a, nil
}

// Close releases the store, the cache and the log file.
func (a *App) Close() {
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.WithError(err).Warn("Failed to close store")
		}
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Logger.WithError(err).Warn("Failed to close cache")
		}
	}
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
}
