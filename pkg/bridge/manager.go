package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/swarmhq/hive/pkg/events"
	"github.com/swarmhq/hive/pkg/token"
)

// Heartbeat tuning: ping every pingInterval, evict after idleTimeout without
// any client activity.
const (
	pingInterval = 30 * time.Second
	idleTimeout  = 60 * time.Second
)

// TopicSource lists the topics an agent subscribed to over the REST API.
// Satisfied by services.SubscriptionService.
type TopicSource interface {
	TopicsForAgent(ctx context.Context, agentID string) ([]string, error)
}

// EventPublisher routes client-originated events through the database NOTIFY
// channel so their ordering matches API-originated events. Satisfied by
// events.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, env events.Envelope) error
}

// Manager owns the client registry, channel subscription index and the
// per-agent previous-subscription memory. All registry maps live under one
// mutex held only for map operations; sends run on per-client write loops.
type Manager struct {
	signer        *token.Signer
	subscriptions TopicSource
	publisher     EventPublisher
	devMode       bool

	mu       sync.Mutex
	clients  map[string]*client
	channels map[string]map[string]bool
	prevSubs map[string]map[string]bool

	tracker *deliveryTracker

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a bridge Manager.
func NewManager(signer *token.Signer, subs TopicSource, pub EventPublisher, devMode bool) *Manager {
	m := &Manager{
		signer:        signer,
		subscriptions: subs,
		publisher:     pub,
		devMode:       devMode,
		clients:       map[string]*client{},
		channels:      map[string]map[string]bool{},
		prevSubs:      map[string]map[string]bool{},
	}
	m.tracker = newDeliveryTracker(m.resendToClient)
	return m
}

// Start launches the heartbeat loop and the retry sweeper.
func (m *Manager) Start(ctx context.Context) {
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.tracker.Start(ctx)
	go m.heartbeatLoop(ctx)
	slog.Info("Bridge manager started", "dev_mode", m.devMode)
}

// Stop closes every client and stops the loops.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.tracker.Stop()

	m.mu.Lock()
	clients := make([]*client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.Unlock()
	for _, c := range clients {
		m.dropClient(c, websocket.StatusGoingAway, "server shutting down")
	}
	slog.Info("Bridge manager stopped")
}

// HandleConnection manages one WebSocket connection after upgrade. Blocks
// until the connection closes.
func (m *Manager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	c := newClient(parentCtx, uuid.New().String(), conn)

	m.mu.Lock()
	m.clients[c.id] = c
	m.mu.Unlock()
	defer m.removeClient(c)

	go c.writeLoop(func() {
		m.dropClient(c, websocket.StatusAbnormalClosure, "write failed")
	})

	c.send(connectedFrame(c.id))

	for {
		_, data, err := conn.Read(c.ctx)
		if err != nil {
			return
		}
		c.touch()

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.send(errorFrame(CodeBadFrame, "malformed frame", nil))
			continue
		}
		m.handleFrame(c, &frame)
	}
}

func (m *Manager) handleFrame(c *client, frame *ClientFrame) {
	switch frame.Type {
	case FramePing:
		c.send(pongFrame())
	case FrameAuth:
		m.handleAuth(c, frame)
	case FrameAck:
		m.tracker.Ack(frame.MessageID, c.id)
	case FrameSubscribe:
		if !m.requireAuth(c) {
			return
		}
		if frame.Channel == "" {
			c.send(errorFrame(CodeBadFrame, "channel is required for subscribe", nil))
			return
		}
		m.subscribe(c, frame.Channel)
		c.send(ackFrame(frame.Channel, true, ""))
	case FrameUnsubscribe:
		if !m.requireAuth(c) {
			return
		}
		if frame.Channel == "" {
			c.send(errorFrame(CodeBadFrame, "channel is required for unsubscribe", nil))
			return
		}
		m.unsubscribe(c, frame.Channel)
		c.send(ackFrame(frame.Channel, true, ""))
	case FramePublish:
		if !m.requireAuth(c) {
			return
		}
		m.handlePublish(c, frame)
	default:
		c.send(errorFrame(CodeBadFrame, "unknown frame type", map[string]any{"type": frame.Type}))
	}
}

// requireAuth enforces the connection state machine: unauthenticated clients
// may only auth and ping.
func (m *Manager) requireAuth(c *client) bool {
	if c.isAuthenticated() {
		return true
	}
	c.send(errorFrame(CodeUnauthenticated, "authenticate first", nil))
	return false
}

// handleAuth validates the token (or a bare agent_id in dev mode), then
// auto-subscribes the client and restores its previous channel set.
func (m *Manager) handleAuth(c *client, frame *ClientFrame) {
	agentID := ""
	sessionID := ""

	switch {
	case frame.Token != "":
		claims, err := m.signer.Verify(frame.Token)
		if err != nil {
			code := CodeAuthInvalid
			if errors.Is(err, token.ErrExpired) {
				code = CodeAuthExpired
			}
			c.send(errorFrame(code, err.Error(), nil))
			return
		}
		agentID = claims.AgentID
		sessionID = claims.SessionID
	case m.devMode && frame.AgentID != "":
		agentID = frame.AgentID
		sessionID = frame.SessionID
	default:
		c.send(errorFrame(CodeAuthInvalid, "token required", nil))
		return
	}

	c.authenticate(agentID, sessionID)

	// Standard channel set for every authenticated client.
	m.subscribe(c, events.ChannelGlobal)
	m.subscribe(c, events.AgentChannel(agentID))
	if sessionID != "" {
		m.subscribe(c, events.SessionChannel(sessionID))
	}

	// Restore channels remembered from the agent's previous connection.
	m.mu.Lock()
	restored := make([]string, 0, len(m.prevSubs[agentID]))
	for ch := range m.prevSubs[agentID] {
		restored = append(restored, ch)
	}
	m.mu.Unlock()
	for _, ch := range restored {
		m.subscribe(c, ch)
	}

	// Topic subscriptions recorded over REST become topic channels.
	topicCtx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	topics, err := m.subscriptions.TopicsForAgent(topicCtx, agentID)
	cancel()
	if err != nil {
		slog.Warn("Failed to load topic subscriptions", "agent_id", agentID, "error", err)
	}
	for _, t := range topics {
		m.subscribe(c, events.TopicChannel(t))
	}

	c.send(ackFrame("auth", true, ""))
	slog.Info("Client authenticated", "client_id", c.id, "agent_id", agentID)
}

// handlePublish routes a client-originated event through the database's
// NOTIFY channel so delivery stays commit-ordered with API events.
func (m *Manager) handlePublish(c *client, frame *ClientFrame) {
	if frame.Channel == "" || frame.Event == "" {
		c.send(errorFrame(CodeBadFrame, "channel and event are required for publish", nil))
		return
	}

	pubCtx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()
	err := m.publisher.Publish(pubCtx, events.NewEnvelope(frame.Channel, frame.Event, frame.Data))
	if err != nil {
		slog.Error("Client publish failed", "client_id", c.id, "error", err)
		c.send(ackFrame(frame.Event, false, "publish failed"))
		return
	}
	c.send(ackFrame(frame.Event, true, ""))
}

// Dispatch fans one parsed notification out to every subscribed client. It is
// the events.Listener handler and must not block: sends go through the
// per-client outbound queues.
func (m *Manager) Dispatch(env events.Envelope) {
	frame := EventFrame{
		ID:        uuid.New().String(),
		Channel:   env.Channel,
		Event:     env.Event,
		Data:      env.Data,
		Timestamp: env.Timestamp,
	}
	raw := marshalFrame(frame)
	if raw == nil {
		return
	}

	targets := m.snapshotTargets(env.Channel)
	critical := events.IsCritical(env.Event)

	for _, c := range targets {
		if !c.send(raw) {
			m.dropClient(c, websocket.StatusAbnormalClosure, "send failed")
			continue
		}
		if critical {
			m.tracker.Track(frame.ID, c.id, raw)
		}
	}
}

// snapshotTargets collects the clients subscribed to a channel. Agent-channel
// events are additionally delivered to global subscribers so monitors see
// per-agent traffic without subscribing to every agent.
func (m *Manager) snapshotTargets(channel string) []*client {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := map[string]bool{}
	for id := range m.channels[channel] {
		ids[id] = true
	}
	if len(channel) > len("agents/") && channel[:len("agents/")] == "agents/" {
		for id := range m.channels[events.ChannelGlobal] {
			ids[id] = true
		}
	}

	targets := make([]*client, 0, len(ids))
	for id := range ids {
		if c, ok := m.clients[id]; ok {
			targets = append(targets, c)
		}
	}
	return targets
}

// resendToClient re-queues a retransmission. Used by the delivery tracker.
func (m *Manager) resendToClient(clientID string, frame []byte) bool {
	m.mu.Lock()
	c, ok := m.clients[clientID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return c.send(frame)
}

func (m *Manager) subscribe(c *client, channel string) {
	agentID, _ := c.identity()

	m.mu.Lock()
	if m.channels[channel] == nil {
		m.channels[channel] = map[string]bool{}
	}
	m.channels[channel][c.id] = true
	if agentID != "" {
		if m.prevSubs[agentID] == nil {
			m.prevSubs[agentID] = map[string]bool{}
		}
		m.prevSubs[agentID][channel] = true
	}
	m.mu.Unlock()
}

func (m *Manager) unsubscribe(c *client, channel string) {
	agentID, _ := c.identity()

	m.mu.Lock()
	if subs, ok := m.channels[channel]; ok {
		delete(subs, c.id)
		if len(subs) == 0 {
			delete(m.channels, channel)
		}
	}
	if agentID != "" && m.prevSubs[agentID] != nil {
		delete(m.prevSubs[agentID], channel)
	}
	m.mu.Unlock()
}

// removeClient clears a closed connection from every registry map. The
// per-agent previous-subscription memory survives for re-auth.
func (m *Manager) removeClient(c *client) {
	m.mu.Lock()
	delete(m.clients, c.id)
	for channel, subs := range m.channels {
		delete(subs, c.id)
		if len(subs) == 0 {
			delete(m.channels, channel)
		}
	}
	m.mu.Unlock()

	m.tracker.DropClient(c.id)
	c.close(websocket.StatusNormalClosure, "")
}

// dropClient closes a client that failed or idled out; removeClient runs via
// the read loop's deferred cleanup once the socket close unblocks it.
func (m *Manager) dropClient(c *client, code websocket.StatusCode, reason string) {
	c.close(code, reason)
}

// ActiveClients reports the number of open connections.
func (m *Manager) ActiveClients() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// SubscriberCount reports a channel's subscriber count. Used by tests to poll
// instead of sleeping.
func (m *Manager) SubscriberCount(channel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.channels[channel])
}

// heartbeatLoop pings every client on a fixed cadence and evicts clients that
// were silent for the idle timeout.
func (m *Manager) heartbeatLoop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepHeartbeats()
		}
	}
}

func (m *Manager) sweepHeartbeats() {
	cutoff := time.Now().Add(-idleTimeout)
	ping := pingFrame()

	m.mu.Lock()
	clients := make([]*client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.Unlock()

	for _, c := range clients {
		if c.idleSince().Before(cutoff) {
			slog.Info("Evicting idle client", "client_id", c.id)
			m.dropClient(c, websocket.StatusGoingAway, "idle timeout")
			continue
		}
		if !c.send(ping) {
			m.dropClient(c, websocket.StatusAbnormalClosure, "send failed")
		}
	}
}
