package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Publisher emits event envelopes on the shared NOTIFY channel.
//
// PublishTx emits inside a caller-held transaction: pg_notify is
// transactional, so LISTEN receivers never observe events for rolled-back
// work and notifications appear strictly after COMMIT.
type Publisher struct {
	pool *pgxpool.Pool
}

// NewPublisher creates a Publisher over the shared connection pool.
func NewPublisher(pool *pgxpool.Pool) *Publisher {
	return &Publisher{pool: pool}
}

// PublishTx queues an envelope on the caller's transaction. The notification
// is delivered on COMMIT and discarded on ROLLBACK.
func (p *Publisher) PublishTx(ctx context.Context, tx pgx.Tx, env Envelope) error {
	payload, err := env.Marshal()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "SELECT pg_notify($1, $2)", NotifyChannel, payload); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	return nil
}

// Publish emits an envelope outside any transaction (metrics, transient
// events).
func (p *Publisher) Publish(ctx context.Context, env Envelope) error {
	payload, err := env.Marshal()
	if err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, "SELECT pg_notify($1, $2)", NotifyChannel, payload); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	return nil
}

// PublishAll emits one envelope per logical channel on the caller's
// transaction. Used when a single state change routes to several channels
// (e.g. a subtask transition goes to both global and agents/{type}).
func (p *Publisher) PublishAll(ctx context.Context, tx pgx.Tx, event string, data map[string]any, channels ...string) error {
	for _, ch := range channels {
		if err := p.PublishTx(ctx, tx, NewEnvelope(ch, event, data)); err != nil {
			return err
		}
	}
	return nil
}

// BestEffort publishes outside a transaction and logs instead of failing.
// Used on paths where the write already committed and a lost notification
// only delays the dashboard.
func (p *Publisher) BestEffort(ctx context.Context, env Envelope) {
	if err := p.Publish(ctx, env); err != nil {
		slog.Warn("Failed to publish event", "channel", env.Channel, "event", env.Event, "error", err)
	}
}
