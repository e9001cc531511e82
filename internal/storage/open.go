package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/eeg-findings-server/internal/database"
	"github.com/eeg-findings-server/internal/domain"
)

// Drivers accepted in configuration.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open returns the store selected by cfg.Driver. For PostgreSQL it connects the pool and
// applies pending migrations first.
func Open(ctx context.Context, cfg domain.DatabaseConfig, logger *logrus.Logger) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverSQLite, "":
		path := cfg.SQLitePath
		if path == "" {
			path = "data/eeg.db"
		}
		store, err := NewSQLiteStore(path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		logger.WithField("path", path).Info("Using SQLite store")
		return store, nil

	case DriverPostgres:
		dbConfig := database.ConfigFrom(cfg)
		db, err := database.NewConnection(ctx, dbConfig, logger)
		if err != nil {
			return nil, err
		}

		runner, err := database.NewMigrationRunner(dbConfig.URL(), cfg.MigrationsPath, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		if err := runner.Up(ctx); err != nil {
			runner.Close()
			db.Close()
			return nil, err
		}
		if err := runner.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close migration runner")
		}

		store, err := NewPostgresStore(db.SQL)
		if err != nil {
			db.Close()
			return nil, err
		}
		store.onClose = db.Close
		return store, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
