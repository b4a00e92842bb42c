package services

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/swarmhq/hive/pkg/events"
	"github.com/swarmhq/hive/pkg/models"
)

// BlockingService records blocker→blocked assertions between agents.
type BlockingService struct {
	pool *pgxpool.Pool
	pub  *events.Publisher
}

// NewBlockingService creates a new BlockingService.
func NewBlockingService(pool *pgxpool.Pool, pub *events.Publisher) *BlockingService {
	return &BlockingService{pool: pool, pub: pub}
}

const blockingColumns = `id, blocker, blocked, reason, created_at`

func scanBlocking(row pgx.Row) (*models.Blocking, error) {
	var b models.Blocking
	err := row.Scan(&b.ID, &b.Blocker, &b.Blocked, &b.Reason, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBlocking upserts on (blocker, blocked). Self-blocking is rejected.
func (s *BlockingService) CreateBlocking(ctx context.Context, req models.CreateBlockingRequest) (*models.Blocking, error) {
	if req.Blocker == "" {
		return nil, NewValidationError("blocker", "required")
	}
	if req.Blocked == "" {
		return nil, NewValidationError("blocked", "required")
	}
	if req.Blocker == req.Blocked {
		return nil, NewValidationError("blocked", "an agent cannot block itself")
	}
	var reason *string
	if req.Reason != "" {
		reason = &req.Reason
	}

	blocking, err := scanBlocking(s.pool.QueryRow(ctx, `
		INSERT INTO blockings (blocker, blocked, reason)
		VALUES ($1, $2, $3)
		ON CONFLICT (blocker, blocked) DO UPDATE SET
			reason = COALESCE(EXCLUDED.reason, blockings.reason)
		RETURNING `+blockingColumns,
		req.Blocker, req.Blocked, reason))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert blocking: %w", err)
	}

	s.pub.BestEffort(ctx, events.NewEnvelope(events.AgentChannel(blocking.Blocked), events.EventBlockingCreated, map[string]any{
		"blocking_id": blocking.ID,
		"blocker":     blocking.Blocker,
		"blocked":     blocking.Blocked,
		"reason":      blocking.Reason,
	}))
	return blocking, nil
}

// ListForAgent returns blockings in both directions for one agent.
func (s *BlockingService) ListForAgent(ctx context.Context, agentID string) ([]models.Blocking, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+blockingColumns+` FROM blockings
		 WHERE blocker = $1 OR blocked = $1
		 ORDER BY created_at ASC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list blockings: %w", err)
	}
	defer rows.Close()

	blockings := []models.Blocking{}
	for rows.Next() {
		b, err := scanBlocking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan blocking: %w", err)
		}
		blockings = append(blockings, *b)
	}
	return blockings, rows.Err()
}

// Check reports whether blocker currently blocks blocked.
func (s *BlockingService) Check(ctx context.Context, blocker, blocked string) (bool, error) {
	if blocker == "" || blocked == "" {
		return false, NewValidationError("blocker", "blocker and blocked required")
	}
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM blockings WHERE blocker = $1 AND blocked = $2)`,
		blocker, blocked).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check blocking: %w", err)
	}
	return exists, nil
}

// Unblock releases a blocking by its natural key.
func (s *BlockingService) Unblock(ctx context.Context, req models.UnblockRequest) error {
	if req.Blocker == "" || req.Blocked == "" {
		return NewValidationError("blocker", "blocker and blocked required")
	}

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM blockings WHERE blocker = $1 AND blocked = $2`,
		req.Blocker, req.Blocked)
	if err != nil {
		return fmt.Errorf("failed to unblock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return NewNotFoundError("blocking", req.Blocker+"→"+req.Blocked)
	}

	s.pub.BestEffort(ctx, events.NewEnvelope(events.AgentChannel(req.Blocked), events.EventBlockingRemoved, map[string]any{
		"blocker": req.Blocker,
		"blocked": req.Blocked,
	}))
	return nil
}

// UnblockAll releases every blocking held against one agent and reports how
// many were removed.
func (s *BlockingService) UnblockAll(ctx context.Context, blockedID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM blockings WHERE blocked = $1`, blockedID)
	if err != nil {
		return 0, fmt.Errorf("failed to unblock %s: %w", blockedID, err)
	}
	return tag.RowsAffected(), nil
}
