package helpers

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/hbomb79/Reel/internal/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	User         = "postgres"
	Password     = "postgres"
	MasterDBName = "REEL_DB"

	// EnvPostgresTests must be set for tests requiring PostgreSQL to run; they
	// are skipped otherwise.
	EnvPostgresTests = "REEL_TEST_POSTGRES"
)

var (
	ctx = context.Background()

	pgOnce    sync.Once
	pgManager database.Manager
	pgErr     error
)

// RequirePostgres spawns (once per test binary) a PostgreSQL container using
// testcontainers, connects a database manager to it and runs the migrations.
// Tests calling this are skipped unless EnvPostgresTests is set.
func RequirePostgres(t *testing.T) database.Manager {
	if os.Getenv(EnvPostgresTests) == "" {
		t.Skipf("skipping test requiring PostgreSQL; set %s=1 to enable", EnvPostgresTests)
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	pgOnce.Do(func() { pgManager, pgErr = spawnPostgres() })
	if pgErr != nil {
		t.Fatalf("failed to provision postgres: %s", pgErr)
	}

	return pgManager
}

func spawnPostgres() (database.Manager, error) {
	postgresC, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("docker.io/postgres:14.1-alpine"),
		postgres.WithDatabase(MasterDBName),
		postgres.WithUsername(User),
		postgres.WithPassword(Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, err
	}

	host, err := postgresC.Host(ctx)
	if err != nil {
		return nil, err
	}
	port, err := postgresC.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return nil, err
	}

	manager := database.New()
	if err := manager.Connect(database.DatabaseConfig{
		User:            User,
		Password:        Password,
		Name:            MasterDBName,
		Host:            host,
		Port:            port.Port(),
		ConnectAttempts: 5,
	}); err != nil {
		return nil, err
	}

	return manager, nil
}
