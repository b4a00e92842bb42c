package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmhq/hive/pkg/models"
)

func TestPublishValidation(t *testing.T) {
	pool, pub := newTestPool(t)
	svc := NewMessageService(pool, pub)
	ctx := context.Background()

	_, err := svc.Publish(ctx, models.PublishMessageRequest{Topic: "task.created"})
	assert.True(t, IsValidationError(err))

	_, err = svc.Publish(ctx, models.PublishMessageRequest{FromAgent: "dev-1", Topic: "not.a.topic"})
	assert.True(t, IsValidationError(err))
}

func TestPublishClampsPriorityAndTTL(t *testing.T) {
	pool, pub := newTestPool(t)
	svc := NewMessageService(pool, pub)
	ctx := context.Background()

	msg, err := svc.Publish(ctx, models.PublishMessageRequest{
		FromAgent:  "dev-1",
		Topic:      "task.created",
		Priority:   intPtr(99),
		TTLSeconds: intPtr(999999),
	})
	require.NoError(t, err)
	assert.Equal(t, 10, msg.Priority)
	assert.WithinDuration(t, time.Now().Add(maxMessageTTL*time.Second), msg.ExpiresAt, 10*time.Second)

	msg, err = svc.Publish(ctx, models.PublishMessageRequest{
		FromAgent: "dev-1",
		Topic:     "task.created",
		Priority:  intPtr(-3),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, msg.Priority)
	assert.WithinDuration(t, time.Now().Add(defaultMessageTTL*time.Second), msg.ExpiresAt, 10*time.Second)
}

func TestDeliverDirectAndBroadcast(t *testing.T) {
	pool, pub := newTestPool(t)
	svc := NewMessageService(pool, pub)
	ctx := context.Background()

	_, err := svc.Publish(ctx, models.PublishMessageRequest{
		FromAgent: "dev-1",
		ToAgent:   "dev-2",
		Topic:     "task.created",
		Payload:   map[string]any{"task": "build"},
	})
	require.NoError(t, err)
	_, err = svc.Publish(ctx, models.PublishMessageRequest{
		FromAgent: "dev-1",
		Topic:     "alert.blocking",
		Priority:  intPtr(9),
	})
	require.NoError(t, err)
	_, err = svc.Publish(ctx, models.PublishMessageRequest{
		FromAgent: "dev-1",
		ToAgent:   "dev-3",
		Topic:     "task.created",
	})
	require.NoError(t, err)

	// dev-2 sees its direct message plus the broadcast, highest priority first.
	delivered, err := svc.Deliver(ctx, models.DeliverMessagesParams{AgentID: "dev-2"})
	require.NoError(t, err)
	require.Len(t, delivered, 2)
	assert.Equal(t, "alert.blocking", delivered[0].Topic)
	assert.Equal(t, "task.created", delivered[1].Topic)
	assert.Equal(t, "build", delivered[1].Payload["task"])

	// Delivery is consuming: a second pull returns nothing.
	delivered, err = svc.Deliver(ctx, models.DeliverMessagesParams{AgentID: "dev-2"})
	require.NoError(t, err)
	assert.Empty(t, delivered)

	// The broadcast is still unread for other agents.
	delivered, err = svc.Deliver(ctx, models.DeliverMessagesParams{AgentID: "dev-3"})
	require.NoError(t, err)
	require.Len(t, delivered, 2)
}

func TestDeliverOrdersByPriorityThenAge(t *testing.T) {
	pool, pub := newTestPool(t)
	svc := NewMessageService(pool, pub)
	ctx := context.Background()

	for _, prio := range []int{3, 7, 3} {
		_, err := svc.Publish(ctx, models.PublishMessageRequest{
			FromAgent: "dev-1",
			ToAgent:   "dev-2",
			Topic:     "workflow.progress",
			Priority:  intPtr(prio),
		})
		require.NoError(t, err)
	}

	delivered, err := svc.Deliver(ctx, models.DeliverMessagesParams{AgentID: "dev-2"})
	require.NoError(t, err)
	require.Len(t, delivered, 3)
	assert.Equal(t, 7, delivered[0].Priority)
	assert.Equal(t, 3, delivered[1].Priority)
	assert.Equal(t, 3, delivered[2].Priority)
	assert.True(t, !delivered[2].CreatedAt.Before(delivered[1].CreatedAt))
}

func TestDeliverTopicFilter(t *testing.T) {
	pool, pub := newTestPool(t)
	svc := NewMessageService(pool, pub)
	ctx := context.Background()

	for _, topic := range []string{"task.created", "agent.heartbeat"} {
		_, err := svc.Publish(ctx, models.PublishMessageRequest{
			FromAgent: "dev-1",
			ToAgent:   "dev-2",
			Topic:     topic,
		})
		require.NoError(t, err)
	}

	delivered, err := svc.Deliver(ctx, models.DeliverMessagesParams{
		AgentID: "dev-2",
		Topic:   "task.created",
	})
	require.NoError(t, err)
	require.Len(t, delivered, 1)
	assert.Equal(t, "task.created", delivered[0].Topic)

	// The filtered-out message is still pending.
	delivered, err = svc.Deliver(ctx, models.DeliverMessagesParams{AgentID: "dev-2"})
	require.NoError(t, err)
	require.Len(t, delivered, 1)
	assert.Equal(t, "agent.heartbeat", delivered[0].Topic)
}

func TestDeliverSinceFilter(t *testing.T) {
	pool, pub := newTestPool(t)
	svc := NewMessageService(pool, pub)
	ctx := context.Background()

	_, err := svc.Publish(ctx, models.PublishMessageRequest{
		FromAgent: "dev-1",
		ToAgent:   "dev-2",
		Topic:     "task.created",
	})
	require.NoError(t, err)

	future := time.Now().Add(time.Hour)
	delivered, err := svc.Deliver(ctx, models.DeliverMessagesParams{
		AgentID: "dev-2",
		Since:   &future,
	})
	require.NoError(t, err)
	assert.Empty(t, delivered)
}

func TestListMessagesDoesNotConsume(t *testing.T) {
	pool, pub := newTestPool(t)
	svc := NewMessageService(pool, pub)
	ctx := context.Background()

	_, err := svc.Publish(ctx, models.PublishMessageRequest{
		FromAgent: "dev-1",
		ToAgent:   "dev-2",
		Topic:     "task.created",
	})
	require.NoError(t, err)
	_, err = svc.Publish(ctx, models.PublishMessageRequest{
		FromAgent: "dev-9",
		Topic:     "agent.heartbeat",
	})
	require.NoError(t, err)

	listed, err := svc.ListMessages(ctx, "", "", models.ListParams{})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.False(t, listed[0].AlreadyRead)

	byTopic, err := svc.ListMessages(ctx, "agent.heartbeat", "", models.ListParams{})
	require.NoError(t, err)
	require.Len(t, byTopic, 1)

	bySender, err := svc.ListMessages(ctx, "", "dev-9", models.ListParams{})
	require.NoError(t, err)
	require.Len(t, bySender, 1)

	// Consume as dev-2, then the direct row shows as read in the listing.
	_, err = svc.Deliver(ctx, models.DeliverMessagesParams{AgentID: "dev-2"})
	require.NoError(t, err)

	listed, err = svc.ListMessages(ctx, "task.created", "", models.ListParams{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.True(t, listed[0].AlreadyRead)
}

func TestDeleteExpired(t *testing.T) {
	pool, pub := newTestPool(t)
	svc := NewMessageService(pool, pub)
	ctx := context.Background()

	// Two expired rows, one of them read; one live row that must survive.
	_, err := pool.Exec(ctx, `
		INSERT INTO agent_messages (from_agent, topic, payload, priority, read_by, expires_at)
		VALUES
			('dev-1', 'task.created', '{}', 5, '{}',        now() - interval '1 minute'),
			('dev-1', 'task.created', '{}', 5, '{"dev-2"}', now() - interval '1 minute'),
			('dev-1', 'task.created', '{}', 5, '{}',        now() + interval '1 hour')`)
	require.NoError(t, err)

	expired, read, err := svc.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), expired)
	assert.Equal(t, int64(1), read)

	live, err := svc.ListMessages(ctx, "", "", models.ListParams{})
	require.NoError(t, err)
	assert.Len(t, live, 1)
}
