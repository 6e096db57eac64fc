package data

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func setupPostgresDB(t *testing.T) *DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("riskctl"),
		postgres.WithUsername("riskctl"),
		postgres.WithPassword("riskctl"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := Open(ctx, DriverPostgres, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStores_Postgres(t *testing.T) {
	db := setupPostgresDB(t)

	v, err := db.SchemaVersion(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, v)

	t.Run("models", func(t *testing.T) { testModelStore(t, db) })
	t.Run("history", func(t *testing.T) { testHistoryStore(t, db) })
}
