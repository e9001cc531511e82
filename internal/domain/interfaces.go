package domain

import (
	"context"
)

// VisionAnalyzer sends one page image to a vision-capable model and returns its raw text answer.
// An empty answer is not an error.
type VisionAnalyzer interface {
	Name() string
	Model() string
	Analyze(ctx context.Context, image []byte, mime string) (string, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetVisionConfig() *VisionConfig
	GetServerConfig() *ServerConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
