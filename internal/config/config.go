package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/eeg-findings-server/internal/database"
	"github.com/eeg-findings-server/internal/domain"
)

// EnvPrefix is prepended to every environment override, e.g. EEG_SERVER_PORT.
const EnvPrefix = "EEG"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v      *viper.Viper
	file   string
	config *domain.Config
}

// NewManager creates a new configuration manager that looks for config.yaml in the
// usual locations.
func NewManager() (*Manager, error) {
	return NewManagerFromFile("")
}

// NewManagerFromFile creates a configuration manager reading an explicit config file.
// An empty path falls back to the search paths.
func NewManagerFromFile(path string) (*Manager, error) {
	m := &Manager{file: path}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.file != "" {
		v.SetConfigFile(m.file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/eeg-findings-server/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// provider keys are also read from their conventional variables
	_ = v.BindEnv("vision.openai.api_key", EnvPrefix+"_VISION_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("vision.gemini.api_key", EnvPrefix+"_VISION_GEMINI_API_KEY", "GEMINI_API_KEY")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.max_upload_bytes", 20<<20)
	v.SetDefault("server.rate_limit", 5)
	v.SetDefault("server.rate_burst", 10)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite_path", "data/eeg.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "eeg_findings")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.migrations_path", "")

	// Vision defaults
	v.SetDefault("vision.provider", "openai")
	v.SetDefault("vision.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("vision.openai.model", "gpt-4-turbo")
	v.SetDefault("vision.gemini.model", "gemini-1.5-flash")
	v.SetDefault("vision.timeout", "60s")
	v.SetDefault("vision.rate_limit", 3)
	v.SetDefault("vision.max_tokens", 1000)

	// Cache defaults
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.default_ttl", "24h")
	v.SetDefault("cache.max_items", 512)
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// MCP defaults
	v.SetDefault("mcp.server_name", "eeg-findings-server")
	v.SetDefault("mcp.server_version", "v0.1.0")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetVisionConfig returns vision provider configuration
func (m *Manager) GetVisionConfig() *domain.VisionConfig {
	return &m.config.Vision
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server max upload size must be positive")
	}

	switch strings.ToLower(config.Database.Driver) {
	case "sqlite":
		if config.Database.SQLitePath == "" {
			return fmt.Errorf("database sqlite path is required")
		}
	case "postgres":
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if config.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if config.Database.Username == "" {
			return fmt.Errorf("database username is required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", config.Database.Driver)
	}

	switch strings.ToLower(config.Vision.Provider) {
	case "openai":
		if config.Vision.OpenAI.APIKey == "" {
			return fmt.Errorf("OpenAI API key is required for vision provider openai")
		}
	case "gemini":
		if config.Vision.Gemini.APIKey == "" {
			return fmt.Errorf("Gemini API key is required for vision provider gemini")
		}
	case "none", "":
	default:
		return fmt.Errorf("unsupported vision provider: %q", config.Vision.Provider)
	}

	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}
	switch config.Logging.Format {
	case "json", "text", "auto":
	default:
		return fmt.Errorf("invalid log format: %s", config.Logging.Format)
	}

	return nil
}

// GetDatabaseConnectionString returns the SQLite path or the Postgres URL.
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	if strings.EqualFold(db.Driver, "sqlite") {
		return db.SQLitePath
	}
	return database.ConfigFrom(db).URL()
}

// GetRedisConnectionString returns the Redis connection string
func (m *Manager) GetRedisConnectionString() string {
	return m.config.Cache.RedisURL
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}
