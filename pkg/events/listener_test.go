package events_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmhq/hive/pkg/events"
	testdb "github.com/swarmhq/hive/test/database"
)

// envelopeRecorder collects envelopes carrying a marker so concurrent tests
// on the same database do not see each other's traffic.
type envelopeRecorder struct {
	mu       sync.Mutex
	marker   string
	received []events.Envelope
}

func (r *envelopeRecorder) handle(env events.Envelope) {
	if env.Data["marker"] != r.marker {
		return
	}
	r.mu.Lock()
	r.received = append(r.received, env)
	r.mu.Unlock()
}

func (r *envelopeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.received)
}

func (r *envelopeRecorder) first() events.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.received[0]
}

func TestPublishReachesListener(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	rec := &envelopeRecorder{marker: uuid.NewString()}
	listener := events.NewListener(client.DSN(), rec.handle)
	require.NoError(t, listener.Start(ctx))
	t.Cleanup(func() { listener.Stop(context.Background()) })

	pub := events.NewPublisher(client.Pool())
	env := events.NewEnvelope(events.ChannelGlobal, events.EventTaskCreated, map[string]any{
		"marker":  rec.marker,
		"task_id": "t-1",
	})
	require.NoError(t, pub.Publish(ctx, env))

	require.Eventually(t, func() bool {
		return rec.count() == 1
	}, 5*time.Second, 10*time.Millisecond)

	got := rec.first()
	assert.Equal(t, events.ChannelGlobal, got.Channel)
	assert.Equal(t, events.EventTaskCreated, got.Event)
	assert.Equal(t, "t-1", got.Data["task_id"])
	assert.NotEmpty(t, got.Timestamp)
}

func TestPublishTxHonorsRollback(t *testing.T) {
	client := testdb.NewTestClient(t)
	pool := client.Pool()
	ctx := context.Background()

	rec := &envelopeRecorder{marker: uuid.NewString()}
	listener := events.NewListener(client.DSN(), rec.handle)
	require.NoError(t, listener.Start(ctx))
	t.Cleanup(func() { listener.Stop(context.Background()) })

	pub := events.NewPublisher(pool)

	// Rolled-back transaction: the notification never leaves the server.
	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, pub.PublishTx(ctx, tx, events.NewEnvelope(
		events.ChannelGlobal, events.EventTaskCreated, map[string]any{"marker": rec.marker, "fate": "rollback"})))
	require.NoError(t, tx.Rollback(ctx))

	// Committed transaction: delivered after COMMIT.
	tx, err = pool.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, pub.PublishTx(ctx, tx, events.NewEnvelope(
		events.ChannelGlobal, events.EventTaskCreated, map[string]any{"marker": rec.marker, "fate": "commit"})))
	require.NoError(t, tx.Commit(ctx))

	require.Eventually(t, func() bool {
		return rec.count() == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, "commit", rec.first().Data["fate"])

	// Give the rolled-back notification a moment to prove it never arrives.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestStopIsIdempotentWithoutStart(t *testing.T) {
	listener := events.NewListener("postgres://unused", func(events.Envelope) {})
	listener.Stop(context.Background())
}
