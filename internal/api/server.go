package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/eeg-findings-server/internal/domain"
	"github.com/eeg-findings-server/internal/middleware"
	"github.com/eeg-findings-server/internal/service"
	"github.com/eeg-findings-server/internal/storage"
)

// Version is reported by the health endpoint.
var Version = "0.1.0"

// Pinger is a dependency whose health is reported by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	config   *domain.ServerConfig
	router   *gin.Engine
	server   *http.Server
	analysis *service.AnalysisService
	store    storage.Store
	checks   map[string]Pinger
	logger   *logrus.Logger
}

// Option customizes a Server.
type Option func(*Server)

// WithHealthCheck adds a named dependency to the health report.
func WithHealthCheck(name string, p Pinger) Option {
	return func(s *Server) {
		if p != nil {
			s.checks[name] = p
		}
	}
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, analysis *service.AnalysisService, store storage.Store, logger *logrus.Logger, opts ...Option) *Server {
	cfg := configManager.GetConfig()

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.CORS())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst, 0))
	router.Use(middleware.RequestTimeout(cfg.Server.WriteTimeout))

	server := &Server{
		config:   &cfg.Server,
		router:   router,
		analysis: analysis,
		store:    store,
		checks:   map[string]Pinger{},
		logger:   logger,
	}
	if store != nil {
		server.checks["store"] = store
	}
	for _, opt := range opts {
		opt(server)
	}

	server.setupRoutes()

	return server
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/analyze", s.handleAnalyze)

		v1.POST("/findings/extract", s.handleExtract)
		v1.POST("/findings/classify", s.handleClassify)

		v1.POST("/files", s.handleCreateFile)
		v1.GET("/files", s.handleListFiles)
		v1.GET("/files/export", s.handleExport)
		v1.GET("/files/:id", s.handleGetFile)
		v1.DELETE("/files/:id", s.handleDeleteFile)
		v1.PUT("/files/:id/pages/:page", s.handleSavePage)
		v1.GET("/files/:id/pages/:page/sections", s.handlePageSections)
	}
}
