package services

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/swarmhq/hive/pkg/models"
)

// SubscriptionService records which topics an agent cares about. Pure
// metadata for the REST path; the bridge reads it to restore channels on
// reconnect.
type SubscriptionService struct {
	pool *pgxpool.Pool
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(pool *pgxpool.Pool) *SubscriptionService {
	return &SubscriptionService{pool: pool}
}

const subscriptionColumns = `id, agent_id, topic, callback_url, created_at`

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	var sub models.Subscription
	err := row.Scan(&sub.ID, &sub.AgentID, &sub.Topic, &sub.CallbackURL, &sub.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Subscribe upserts on (agent_id, topic).
func (s *SubscriptionService) Subscribe(ctx context.Context, req models.SubscribeRequest) (*models.Subscription, error) {
	if req.AgentID == "" {
		return nil, NewValidationError("agent_id", "required")
	}
	if !models.MessageTopics[req.Topic] {
		return nil, NewValidationError("topic", fmt.Sprintf("unknown topic %q", req.Topic))
	}
	var callbackURL *string
	if req.CallbackURL != "" {
		callbackURL = &req.CallbackURL
	}

	sub, err := scanSubscription(s.pool.QueryRow(ctx, `
		INSERT INTO subscriptions (agent_id, topic, callback_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (agent_id, topic) DO UPDATE SET
			callback_url = COALESCE(EXCLUDED.callback_url, subscriptions.callback_url)
		RETURNING `+subscriptionColumns,
		req.AgentID, req.Topic, callbackURL))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return sub, nil
}

// Unsubscribe removes a subscription by its natural key.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, req models.UnsubscribeRequest) error {
	if req.AgentID == "" {
		return NewValidationError("agent_id", "required")
	}
	if req.Topic == "" {
		return NewValidationError("topic", "required")
	}

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM subscriptions WHERE agent_id = $1 AND topic = $2`,
		req.AgentID, req.Topic)
	if err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return NewNotFoundError("subscription", req.AgentID+"/"+req.Topic)
	}
	return nil
}

// ListSubscriptions returns all subscriptions, or one agent's when agentID is
// set.
func (s *SubscriptionService) ListSubscriptions(ctx context.Context, agentID string) ([]models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions`
	args := []any{}
	if agentID != "" {
		query += ` WHERE agent_id = $1`
		args = append(args, agentID)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []models.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// DeleteSubscription removes one subscription by id.
func (s *SubscriptionService) DeleteSubscription(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return NewNotFoundError("subscription", id)
	}
	return nil
}

// TopicsForAgent returns the topics one agent subscribed to. The bridge uses
// this to restore topic channels when an agent re-authenticates.
func (s *SubscriptionService) TopicsForAgent(ctx context.Context, agentID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT topic FROM subscriptions WHERE agent_id = $1 ORDER BY topic`, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query topics for agent %s: %w", agentID, err)
	}
	defer rows.Close()

	topics := []string{}
	for rows.Next() {
		var topic string
		if err := rows.Scan(&topic); err != nil {
			return nil, err
		}
		topics = append(topics, topic)
	}
	return topics, rows.Err()
}
