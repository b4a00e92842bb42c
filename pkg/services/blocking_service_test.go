package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmhq/hive/pkg/models"
)

func TestCreateBlockingValidation(t *testing.T) {
	pool, pub := newTestPool(t)
	svc := NewBlockingService(pool, pub)
	ctx := context.Background()

	_, err := svc.CreateBlocking(ctx, models.CreateBlockingRequest{Blocked: "dev-2"})
	assert.True(t, IsValidationError(err))

	_, err = svc.CreateBlocking(ctx, models.CreateBlockingRequest{Blocker: "dev-1"})
	assert.True(t, IsValidationError(err))

	_, err = svc.CreateBlocking(ctx, models.CreateBlockingRequest{Blocker: "dev-1", Blocked: "dev-1"})
	assert.True(t, IsValidationError(err))
}

func TestCreateBlockingUpserts(t *testing.T) {
	pool, pub := newTestPool(t)
	svc := NewBlockingService(pool, pub)
	ctx := context.Background()

	first, err := svc.CreateBlocking(ctx, models.CreateBlockingRequest{
		Blocker: "dev-1",
		Blocked: "dev-2",
		Reason:  "migrating the schema",
	})
	require.NoError(t, err)
	require.NotNil(t, first.Reason)

	// Same pair again: one row, reason preserved when omitted.
	second, err := svc.CreateBlocking(ctx, models.CreateBlockingRequest{
		Blocker: "dev-1",
		Blocked: "dev-2",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.Reason)
	assert.Equal(t, "migrating the schema", *second.Reason)
}

func TestCheckBlocking(t *testing.T) {
	pool, pub := newTestPool(t)
	svc := NewBlockingService(pool, pub)
	ctx := context.Background()

	_, err := svc.Check(ctx, "", "dev-2")
	assert.True(t, IsValidationError(err))

	blocked, err := svc.Check(ctx, "dev-1", "dev-2")
	require.NoError(t, err)
	assert.False(t, blocked)

	_, err = svc.CreateBlocking(ctx, models.CreateBlockingRequest{Blocker: "dev-1", Blocked: "dev-2"})
	require.NoError(t, err)

	blocked, err = svc.Check(ctx, "dev-1", "dev-2")
	require.NoError(t, err)
	assert.True(t, blocked)

	// Direction matters.
	blocked, err = svc.Check(ctx, "dev-2", "dev-1")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestListForAgentBothDirections(t *testing.T) {
	pool, pub := newTestPool(t)
	svc := NewBlockingService(pool, pub)
	ctx := context.Background()

	_, err := svc.CreateBlocking(ctx, models.CreateBlockingRequest{Blocker: "dev-1", Blocked: "dev-2"})
	require.NoError(t, err)
	_, err = svc.CreateBlocking(ctx, models.CreateBlockingRequest{Blocker: "dev-3", Blocked: "dev-1"})
	require.NoError(t, err)
	_, err = svc.CreateBlocking(ctx, models.CreateBlockingRequest{Blocker: "dev-3", Blocked: "dev-4"})
	require.NoError(t, err)

	blockings, err := svc.ListForAgent(ctx, "dev-1")
	require.NoError(t, err)
	assert.Len(t, blockings, 2)
}

func TestUnblock(t *testing.T) {
	pool, pub := newTestPool(t)
	svc := NewBlockingService(pool, pub)
	ctx := context.Background()

	_, err := svc.CreateBlocking(ctx, models.CreateBlockingRequest{Blocker: "dev-1", Blocked: "dev-2"})
	require.NoError(t, err)

	require.NoError(t, svc.Unblock(ctx, models.UnblockRequest{Blocker: "dev-1", Blocked: "dev-2"}))
	assert.True(t, IsNotFound(svc.Unblock(ctx, models.UnblockRequest{Blocker: "dev-1", Blocked: "dev-2"})))
}

func TestUnblockAll(t *testing.T) {
	pool, pub := newTestPool(t)
	svc := NewBlockingService(pool, pub)
	ctx := context.Background()

	for _, blocker := range []string{"dev-1", "dev-3"} {
		_, err := svc.CreateBlocking(ctx, models.CreateBlockingRequest{Blocker: blocker, Blocked: "dev-2"})
		require.NoError(t, err)
	}
	_, err := svc.CreateBlocking(ctx, models.CreateBlockingRequest{Blocker: "dev-2", Blocked: "dev-1"})
	require.NoError(t, err)

	removed, err := svc.UnblockAll(ctx, "dev-2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	// Blockings held by dev-2 against others survive.
	blocked, err := svc.Check(ctx, "dev-2", "dev-1")
	require.NoError(t, err)
	assert.True(t, blocked)
}
