package database

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/lab-report-companion/internal/domain"
)

// startPostgres runs a disposable postgres container and returns the
// connection config plus a URL for the migration runner.
func startPostgres(t *testing.T) (*domain.DatabaseConfig, string) {
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
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &domain.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		Database:        "testdb",
		Username:        "testuser",
		Password:        "testpass",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	}
	url := "postgres://testuser:testpass@" + host + ":" + port.Port() + "/testdb?sslmode=disable"
	return cfg, url
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func TestNewConnectionAndHealth(t *testing.T) {
	cfg, _ := startPostgres(t)
	ctx := context.Background()

	db, err := NewConnection(ctx, cfg, quietLogger())
	if err != nil {
		t.Fatalf("Failed to create database connection: %v", err)
	}
	defer db.Close()

	if err := db.Health(ctx); err != nil {
		t.Fatalf("Health check failed: %v", err)
	}
	if db.Pool.Stat().TotalConns() == 0 {
		t.Error("Expected at least one pooled connection")
	}
}

func TestMigrationCycle(t *testing.T) {
	_, url := startPostgres(t)

	runner, err := NewMigrationRunner(url, "../../migrations", quietLogger())
	if err != nil {
		t.Fatalf("Failed to create migration runner: %v", err)
	}
	defer runner.Close()

	if err := runner.Up(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	version, dirty, err := runner.Version()
	if err != nil {
		t.Fatalf("Failed to read schema version: %v", err)
	}
	if dirty {
		t.Error("Schema left dirty after migration")
	}
	if version == 0 {
		t.Error("Expected a nonzero schema version")
	}

	// A second Up is a no-op, not an error.
	if err := runner.Up(); err != nil {
		t.Fatalf("Re-running migrations failed: %v", err)
	}

	if err := runner.Down(); err != nil {
		t.Fatalf("Failed to roll back one migration: %v", err)
	}
	downVersion, _, err := runner.Version()
	if err != nil {
		t.Fatalf("Failed to read schema version after down: %v", err)
	}
	if downVersion >= version {
		t.Errorf("Expected version below %d after rollback, got %d", version, downVersion)
	}
}

func TestNewMigrationRunnerBadPath(t *testing.T) {
	_, err := NewMigrationRunner("postgres://localhost/none", "/does/not/exist", quietLogger())
	if err == nil {
		t.Fatal("Expected an error for a missing migrations directory")
	}
}
