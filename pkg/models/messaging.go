package models

import "time"

// AgentMessage is one pub/sub message between agents. A nil ToAgent means
// broadcast.
type AgentMessage struct {
	ID          string         `json:"id"`
	FromAgent   string         `json:"from_agent"`
	ToAgent     *string        `json:"to_agent,omitempty"`
	Topic       string         `json:"topic"`
	Payload     map[string]any `json:"payload"`
	Priority    int            `json:"priority"`
	ReadBy      []string       `json:"read_by"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
	AlreadyRead bool           `json:"already_read,omitempty"`
}

// PublishMessageRequest publishes a message to an agent or to all agents.
type PublishMessageRequest struct {
	FromAgent  string         `json:"from_agent"`
	ToAgent    string         `json:"to_agent,omitempty"`
	Topic      string         `json:"topic"`
	Payload    map[string]any `json:"payload,omitempty"`
	Priority   *int           `json:"priority,omitempty"`
	TTLSeconds *int           `json:"ttl_seconds,omitempty"`
}

// DeliverMessagesParams filters message delivery for an agent.
type DeliverMessagesParams struct {
	AgentID string
	Topic   string
	Since   *time.Time
}

// Subscription marks an agent's interest in a topic.
type Subscription struct {
	ID          string    `json:"id"`
	AgentID     string    `json:"agent_id"`
	Topic       string    `json:"topic"`
	CallbackURL *string   `json:"callback_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SubscribeRequest upserts a subscription on (agent_id, topic).
type SubscribeRequest struct {
	AgentID     string `json:"agent_id"`
	Topic       string `json:"topic"`
	CallbackURL string `json:"callback_url,omitempty"`
}

// UnsubscribeRequest removes a subscription by its natural key.
type UnsubscribeRequest struct {
	AgentID string `json:"agent_id"`
	Topic   string `json:"topic"`
}

// Blocking asserts that blocked must not proceed until blocker releases it.
type Blocking struct {
	ID        string    `json:"id"`
	Blocker   string    `json:"blocker"`
	Blocked   string    `json:"blocked"`
	Reason    *string   `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateBlockingRequest upserts a blocking on (blocker, blocked).
type CreateBlockingRequest struct {
	Blocker string `json:"blocker"`
	Blocked string `json:"blocked"`
	Reason  string `json:"reason,omitempty"`
}

// UnblockRequest releases a blocking by its natural key.
type UnblockRequest struct {
	Blocker string `json:"blocker"`
	Blocked string `json:"blocked"`
}

// CleanupStats reports the last expiry sweeper run.
type CleanupStats struct {
	ExpiredDeleted int64      `json:"expired_deleted"`
	ReadDeleted    int64      `json:"read_deleted"`
	RanAt          *time.Time `json:"ran_at,omitempty"`
}
