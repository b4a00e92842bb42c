// Package database provides test database clients backed by per-test schemas.
package database

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/swarmhq/hive/pkg/database"
	"github.com/swarmhq/hive/test/util"
)

// NewTestClient creates a test database client on a fresh schema.
// In CI (when CI_DATABASE_URL is set): connects to external PostgreSQL service container.
// In local dev: spins up a testcontainer with PostgreSQL.
// The schema and connections are cleaned up when the test ends.
func NewTestClient(t *testing.T) *database.Client {
	t.Helper()
	ctx := context.Background()

	db, connStr := util.SetupTestDatabase(t)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return database.NewClientFromPool(pool, db, connStr)
}
