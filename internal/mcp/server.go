// Package mcp exposes finding extraction, section classification and image analysis as
// Model Context Protocol tools over stdio.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/eeg-findings-server/internal/domain"
	"github.com/eeg-findings-server/internal/service"
	"github.com/eeg-findings-server/internal/storage"
)

// Server represents the EEG findings MCP server
type Server struct {
	mcpServer *mcp.Server
	analysis  *service.AnalysisService
	store     storage.Store
	logger    *logrus.Logger
}

// NewServer creates a new MCP server instance. store may be nil, in which case the
// file tools are not registered.
func NewServer(cfg domain.MCPConfig, analysis *service.AnalysisService, store storage.Store, logger *logrus.Logger) (*Server, error) {
	if analysis == nil {
		return nil, fmt.Errorf("analysis service is required")
	}

	name := cfg.ServerName
	if name == "" {
		name = "eeg-findings-server"
	}
	version := cfg.ServerVersion
	if version == "" {
		version = "v0.1.0"
	}

	server := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		analysis:  analysis,
		store:     store,
		logger:    logger,
	}

	server.registerTools()
	server.registerResources()
	server.registerPrompts()

	logger.WithFields(logrus.Fields{
		"server_name":  name,
		"file_tools":   store != nil,
		"server_build": version,
	}).Info("MCP capabilities registered")
	return server, nil
}

// Start serves MCP over stdin/stdout until ctx is cancelled or the client disconnects.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting EEG findings MCP server on stdio")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// Connect serves a single session over t. Used with in-memory transports.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcpServer.Connect(ctx, t, nil)
}
