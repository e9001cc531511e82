package database

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/eeg-findings-server/internal/domain"
)

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(domain.DatabaseConfig{
		Host:            "db",
		Port:            5432,
		Database:        "eeg",
		Username:        "eeg",
		Password:        "p@ss word",
		MaxOpenConns:    0,
		MaxIdleConns:    50,
		ConnMaxLifetime: time.Hour,
	})

	assert.Equal(t, int32(10), cfg.MaxConns)
	assert.Equal(t, int32(0), cfg.MinConns)
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Equal(t, time.Hour, cfg.MaxConnLife)
	assert.Equal(t, "postgres://eeg:p%40ss%20word@db:5432/eeg?sslmode=disable", cfg.URL())
}

func startPostgres(t *testing.T) Config {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("PostgreSQL container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return Config{
		Host:        host,
		Port:        port.Int(),
		Database:    "testdb",
		Username:    "testuser",
		Password:    "testpass",
		MaxConns:    10,
		MinConns:    2,
		MaxConnLife: time.Hour,
		MaxConnIdle: time.Minute * 30,
		SSLMode:     "disable",
	}
}

func TestDatabaseConnectionAndMigrations(t *testing.T) {
	config := startPostgres(t)
	ctx := context.Background()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	db, err := NewConnection(ctx, config, logger)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Health(ctx))
	assert.NotZero(t, db.Stats().TotalConns())
	require.NoError(t, db.SQL.PingContext(ctx))

	runner, err := NewMigrationRunner(config.URL(), "", logger)
	require.NoError(t, err)
	defer runner.Close()

	require.NoError(t, runner.Up(ctx))
	version, dirty, err := runner.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// running again is a no-op
	require.NoError(t, runner.Up(ctx))

	var tables int
	err = db.SQL.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_name IN ('files', 'page_analyses')
	`).Scan(&tables)
	require.NoError(t, err)
	assert.Equal(t, 2, tables)

	require.NoError(t, runner.Down(ctx))
	version, _, err = runner.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}
