//go:build integration

// Package testsupport starts throwaway dependencies for integration tests.
package testsupport

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/hrvault/hrvault/internal/platform/db"
)

// MigrationsDir resolves the repository's migrations directory.
func MigrationsDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), "../../migrations")
}

// StartPostgres launches a PostgreSQL container, applies every migration and
// returns a pool connected to it. The container is removed on test cleanup.
func StartPostgres(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("hrvault"),
		postgrescontainer.WithUsername("hrvault"),
		postgrescontainer.WithPassword("hrvault"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := db.NewPool(ctx, connStr, 4, 1)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	applied, err := db.NewMigrator(pool, MigrationsDir(t)).Up(ctx)
	require.NoError(t, err)
	require.Positive(t, applied)

	return pool
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
