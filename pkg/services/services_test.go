package services

import (
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/swarmhq/hive/pkg/events"
	testdb "github.com/swarmhq/hive/test/database"
)

// newTestPool provisions a fresh schema and returns its pool plus a publisher
// bound to it.
func newTestPool(t *testing.T) (*pgxpool.Pool, *events.Publisher) {
	t.Helper()
	client := testdb.NewTestClient(t)
	return client.Pool(), events.NewPublisher(client.Pool())
}
