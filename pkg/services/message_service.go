package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/swarmhq/hive/pkg/events"
	"github.com/swarmhq/hive/pkg/models"
)

// Message TTL bounds in seconds.
const (
	defaultMessageTTL = 3600
	minMessageTTL     = 1
	maxMessageTTL     = 86400
)

// MessageService implements pub/sub messaging between agents. Delivery is
// pull-based: reading marks the reader so the unread set shrinks atomically.
type MessageService struct {
	pool       *pgxpool.Pool
	pub        *events.Publisher
	defaultTTL int
}

// NewMessageService creates a new MessageService.
func NewMessageService(pool *pgxpool.Pool, pub *events.Publisher) *MessageService {
	return &MessageService{pool: pool, pub: pub, defaultTTL: defaultMessageTTL}
}

// SetDefaultTTL overrides the default expiry applied when a publish request
// carries no ttl_seconds. Out-of-bounds values are ignored.
func (s *MessageService) SetDefaultTTL(d time.Duration) {
	if secs := int(d.Seconds()); secs >= minMessageTTL && secs <= maxMessageTTL {
		s.defaultTTL = secs
	}
}

const messageColumns = `id, from_agent, to_agent, topic, payload, priority, read_by, created_at, expires_at`

func scanMessage(row pgx.Row) (*models.AgentMessage, error) {
	var m models.AgentMessage
	var payloadJSON []byte
	err := row.Scan(&m.ID, &m.FromAgent, &m.ToAgent, &m.Topic, &payloadJSON,
		&m.Priority, &m.ReadBy, &m.CreatedAt, &m.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(payloadJSON, &m.Payload); err != nil {
		return nil, err
	}
	return &m, nil
}

// Publish inserts one message. A missing to_agent means broadcast. TTL and
// priority are clamped rather than rejected so hook clients never fail on
// bounds.
func (s *MessageService) Publish(ctx context.Context, req models.PublishMessageRequest) (*models.AgentMessage, error) {
	if req.FromAgent == "" {
		return nil, NewValidationError("from_agent", "required")
	}
	if !models.MessageTopics[req.Topic] {
		return nil, NewValidationError("topic", fmt.Sprintf("unknown topic %q", req.Topic))
	}

	priority := 5
	if req.Priority != nil {
		priority = clampInt(*req.Priority, 0, 10)
	}
	ttl := s.defaultTTL
	if req.TTLSeconds != nil {
		ttl = clampInt(*req.TTLSeconds, minMessageTTL, maxMessageTTL)
	}
	payloadJSON, err := marshalJSONB(req.Payload)
	if err != nil {
		return nil, err
	}
	var toAgent *string
	if req.ToAgent != "" {
		toAgent = &req.ToAgent
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	message, err := scanMessage(tx.QueryRow(ctx, `
		INSERT INTO agent_messages (from_agent, to_agent, topic, payload, priority, expires_at)
		VALUES ($1, $2, $3, $4, $5, now() + make_interval(secs => $6))
		RETURNING `+messageColumns,
		req.FromAgent, toAgent, req.Topic, payloadJSON, priority, ttl))
	if err != nil {
		return nil, fmt.Errorf("failed to publish message: %w", err)
	}

	channels := []string{events.TopicChannel(message.Topic)}
	if message.ToAgent != nil {
		channels = append(channels, events.AgentChannel(*message.ToAgent))
	}
	err = s.pub.PublishAll(ctx, tx, events.EventMessageCreated, map[string]any{
		"message_id": message.ID,
		"from_agent": message.FromAgent,
		"to_agent":   message.ToAgent,
		"topic":      message.Topic,
		"priority":   message.Priority,
	}, channels...)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}
	return message, nil
}

// Deliver returns the unread, unexpired messages addressed to or broadcast
// for the agent and atomically appends the agent to each row's read_by list.
// Broadcast rows are marked too so a second call returns nothing new.
func (s *MessageService) Deliver(ctx context.Context, params models.DeliverMessagesParams) ([]models.AgentMessage, error) {
	if params.AgentID == "" {
		return nil, NewValidationError("agent_id", "required")
	}

	rows, err := s.pool.Query(ctx, `
		WITH to_deliver AS (
			SELECT id
			FROM agent_messages
			WHERE (to_agent = $1 OR to_agent IS NULL)
			  AND expires_at > now()
			  AND NOT ($1 = ANY(read_by))
			  AND ($2 = '' OR topic = $2)
			  AND ($3::timestamptz IS NULL OR created_at >= $3)
			ORDER BY priority DESC, created_at ASC
			FOR UPDATE
		)
		UPDATE agent_messages m
		SET read_by = array_append(m.read_by, $1)
		FROM to_deliver d
		WHERE m.id = d.id
		RETURNING `+qualifiedMessageColumns("m"),
		params.AgentID, params.Topic, params.Since)
	if err != nil {
		return nil, fmt.Errorf("failed to deliver messages: %w", err)
	}
	defer rows.Close()

	messages := []models.AgentMessage{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// UPDATE ... RETURNING does not preserve the CTE ordering.
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].Priority != messages[j].Priority {
			return messages[i].Priority > messages[j].Priority
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}

func qualifiedMessageColumns(alias string) string {
	return fmt.Sprintf("%[1]s.id, %[1]s.from_agent, %[1]s.to_agent, %[1]s.topic, %[1]s.payload, %[1]s.priority, %[1]s.read_by, %[1]s.created_at, %[1]s.expires_at", alias)
}

// ListMessages returns unexpired messages for the dashboard, optionally
// filtered by topic or sender, without marking anything read. Rows already
// read by anyone carry already_read.
func (s *MessageService) ListMessages(ctx context.Context, topic, fromAgent string, params models.ListParams) ([]models.AgentMessage, error) {
	limit := clampLimit(params.Limit, 100, 100)

	query := `SELECT ` + messageColumns + ` FROM agent_messages WHERE expires_at > now()`
	args := []any{limit, params.Offset}
	if topic != "" {
		args = append(args, topic)
		query += fmt.Sprintf(` AND topic = $%d`, len(args))
	}
	if fromAgent != "" {
		args = append(args, fromAgent)
		query += fmt.Sprintf(` AND from_agent = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []models.AgentMessage{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.AlreadyRead = len(m.ReadBy) > 0
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

// DeleteExpired removes messages past their expiry and reports how many were
// deleted and how many of those had been read. Called by the cleanup sweeper.
func (s *MessageService) DeleteExpired(ctx context.Context) (expired, read int64, err error) {
	err = s.pool.QueryRow(ctx, `
		WITH del AS (
			DELETE FROM agent_messages
			WHERE expires_at < now()
			RETURNING read_by
		)
		SELECT count(*), count(*) FILTER (WHERE cardinality(read_by) > 0)
		FROM del`).Scan(&expired, &read)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to delete expired messages: %w", err)
	}
	return expired, read, nil
}
