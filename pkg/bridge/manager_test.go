package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmhq/hive/pkg/events"
	"github.com/swarmhq/hive/pkg/token"
)

type stubTopics struct {
	topics map[string][]string
}

func (s *stubTopics) TopicsForAgent(_ context.Context, agentID string) ([]string, error) {
	return s.topics[agentID], nil
}

type stubPublisher struct {
	mu        sync.Mutex
	published []events.Envelope
}

func (s *stubPublisher) Publish(_ context.Context, env events.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, env)
	return nil
}

func (s *stubPublisher) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}

const testSecret = "bridge-test-secret"

func setupTestManager(t *testing.T, devMode bool, topics map[string][]string) (*Manager, *stubPublisher, *httptest.Server) {
	t.Helper()

	pub := &stubPublisher{}
	manager := NewManager(token.NewSigner(testSecret), &stubTopics{topics: topics}, pub, devMode)
	manager.Start(context.Background())
	t.Cleanup(manager.Stop)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			t.Logf("WebSocket accept error: %v", err)
			return
		}
		manager.HandleConnection(r.Context(), conn)
	}))
	t.Cleanup(server.Close)

	return manager, pub, server
}

func connectWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + server.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	data, err := json.Marshal(frame)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

// authDev connects and authenticates via dev-mode agent_id, consuming the
// connected and auth-ack frames.
func authDev(t *testing.T, server *httptest.Server, agentID, sessionID string) *websocket.Conn {
	t.Helper()
	conn := connectWS(t, server)
	readFrame(t, conn) // connected

	writeFrame(t, conn, map[string]any{"type": FrameAuth, "agent_id": agentID, "session_id": sessionID})
	ack := readFrame(t, conn)
	require.Equal(t, FrameServerAck, ack["type"])
	require.Equal(t, true, ack["success"])
	return conn
}

func TestManagerConnectedFrame(t *testing.T) {
	_, _, server := setupTestManager(t, true, nil)
	conn := connectWS(t, server)

	msg := readFrame(t, conn)
	assert.Equal(t, FrameConnected, msg["type"])
	assert.NotEmpty(t, msg["client_id"])
}

func TestManagerDevModeAuth(t *testing.T) {
	manager, _, server := setupTestManager(t, true, nil)
	authDev(t, server, "dev-1", "sess-1")

	// Standard channel set is registered after auth.
	require.Eventually(t, func() bool {
		return manager.SubscriberCount(events.AgentChannel("dev-1")) == 1 &&
			manager.SubscriberCount(events.SessionChannel("sess-1")) == 1 &&
			manager.SubscriberCount(events.ChannelGlobal) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManagerTokenAuth(t *testing.T) {
	manager, _, server := setupTestManager(t, false, nil)

	tok, _, err := token.NewSigner(testSecret).Mint("agent-7", "sess-7")
	require.NoError(t, err)

	conn := connectWS(t, server)
	readFrame(t, conn) // connected

	writeFrame(t, conn, map[string]any{"type": FrameAuth, "token": tok})
	ack := readFrame(t, conn)
	assert.Equal(t, FrameServerAck, ack["type"])
	assert.Equal(t, true, ack["success"])

	require.Eventually(t, func() bool {
		return manager.SubscriberCount(events.AgentChannel("agent-7")) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManagerRejectsBadToken(t *testing.T) {
	_, _, server := setupTestManager(t, false, nil)

	tok, _, err := token.NewSigner("some-other-secret").Mint("agent-7", "")
	require.NoError(t, err)

	conn := connectWS(t, server)
	readFrame(t, conn) // connected

	writeFrame(t, conn, map[string]any{"type": FrameAuth, "token": tok})
	msg := readFrame(t, conn)
	assert.Equal(t, FrameError, msg["type"])
	assert.Equal(t, CodeAuthInvalid, msg["code"])
}

func TestManagerRejectsDevAuthInProdMode(t *testing.T) {
	_, _, server := setupTestManager(t, false, nil)

	conn := connectWS(t, server)
	readFrame(t, conn) // connected

	writeFrame(t, conn, map[string]any{"type": FrameAuth, "agent_id": "dev-1"})
	msg := readFrame(t, conn)
	assert.Equal(t, FrameError, msg["type"])
	assert.Equal(t, CodeAuthInvalid, msg["code"])
	assert.Equal(t, "token required", msg["error"])
}

func TestManagerRequiresAuthBeforeSubscribe(t *testing.T) {
	_, _, server := setupTestManager(t, true, nil)

	conn := connectWS(t, server)
	readFrame(t, conn) // connected

	writeFrame(t, conn, map[string]any{"type": FrameSubscribe, "channel": "topics/deploys"})
	msg := readFrame(t, conn)
	assert.Equal(t, FrameError, msg["type"])
	assert.Equal(t, CodeUnauthenticated, msg["code"])
}

func TestManagerPingBeforeAuth(t *testing.T) {
	_, _, server := setupTestManager(t, true, nil)

	conn := connectWS(t, server)
	readFrame(t, conn) // connected

	writeFrame(t, conn, map[string]any{"type": FramePing})
	msg := readFrame(t, conn)
	assert.Equal(t, FramePong, msg["type"])
}

func TestManagerDispatchFanout(t *testing.T) {
	manager, _, server := setupTestManager(t, true, nil)
	conn := authDev(t, server, "dev-1", "")

	require.Eventually(t, func() bool {
		return manager.SubscriberCount(events.AgentChannel("dev-1")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	manager.Dispatch(events.NewEnvelope(events.AgentChannel("dev-1"), events.EventActionCreated, map[string]any{
		"action_id": "a-1",
	}))

	msg := readFrame(t, conn)
	assert.Equal(t, "agents/dev-1", msg["channel"])
	assert.Equal(t, "action.created", msg["event"])
	data, ok := msg["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "a-1", data["action_id"])
}

func TestManagerGlobalSeesAgentTraffic(t *testing.T) {
	manager, _, server := setupTestManager(t, true, nil)
	conn := authDev(t, server, "monitor-1", "")

	require.Eventually(t, func() bool {
		return manager.SubscriberCount(events.ChannelGlobal) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Not subscribed to agents/worker-9, but global subscribers get a copy.
	manager.Dispatch(events.NewEnvelope(events.AgentChannel("worker-9"), events.EventActionCreated, nil))

	msg := readFrame(t, conn)
	assert.Equal(t, "agents/worker-9", msg["channel"])
}

func TestManagerChannelIsolation(t *testing.T) {
	manager, _, server := setupTestManager(t, true, nil)
	conn := authDev(t, server, "dev-1", "sess-1")

	require.Eventually(t, func() bool {
		return manager.SubscriberCount(events.SessionChannel("sess-1")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	manager.Dispatch(events.NewEnvelope(events.SessionChannel("other-session"), events.EventActionCreated, nil))

	readCtx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, _, err := conn.Read(readCtx)
	assert.Error(t, err, "should not receive another session's events")
}

func TestManagerCriticalDeliveryAck(t *testing.T) {
	manager, _, server := setupTestManager(t, true, nil)
	conn := authDev(t, server, "dev-1", "")

	require.Eventually(t, func() bool {
		return manager.SubscriberCount(events.AgentChannel("dev-1")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	manager.Dispatch(events.NewEnvelope(events.AgentChannel("dev-1"), events.EventTaskCompleted, map[string]any{
		"task_id": "t-1",
	}))

	msg := readFrame(t, conn)
	assert.Equal(t, "task.completed", msg["event"])
	assert.Equal(t, 1, manager.tracker.PendingCount())

	writeFrame(t, conn, map[string]any{"type": FrameAck, "message_id": msg["id"]})
	require.Eventually(t, func() bool {
		return manager.tracker.PendingCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManagerSubscribeUnsubscribe(t *testing.T) {
	manager, _, server := setupTestManager(t, true, nil)
	conn := authDev(t, server, "dev-1", "")

	writeFrame(t, conn, map[string]any{"type": FrameSubscribe, "channel": "topics/deploys"})
	ack := readFrame(t, conn)
	assert.Equal(t, FrameServerAck, ack["type"])
	assert.Equal(t, "topics/deploys", ack["id"])

	require.Eventually(t, func() bool {
		return manager.SubscriberCount("topics/deploys") == 1
	}, 2*time.Second, 10*time.Millisecond)

	writeFrame(t, conn, map[string]any{"type": FrameUnsubscribe, "channel": "topics/deploys"})
	readFrame(t, conn) // ack

	require.Eventually(t, func() bool {
		return manager.SubscriberCount("topics/deploys") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManagerSubscribeRequiresChannel(t *testing.T) {
	_, _, server := setupTestManager(t, true, nil)
	conn := authDev(t, server, "dev-1", "")

	writeFrame(t, conn, map[string]any{"type": FrameSubscribe})
	msg := readFrame(t, conn)
	assert.Equal(t, FrameError, msg["type"])
	assert.Equal(t, CodeBadFrame, msg["code"])
}

func TestManagerTopicSubscriptionsRestoredOnAuth(t *testing.T) {
	manager, _, server := setupTestManager(t, true, map[string][]string{
		"dev-1": {"deploys", "alerts"},
	})
	authDev(t, server, "dev-1", "")

	require.Eventually(t, func() bool {
		return manager.SubscriberCount(events.TopicChannel("deploys")) == 1 &&
			manager.SubscriberCount(events.TopicChannel("alerts")) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManagerPreviousChannelsSurviveReconnect(t *testing.T) {
	manager, _, server := setupTestManager(t, true, nil)
	conn := authDev(t, server, "dev-1", "")

	writeFrame(t, conn, map[string]any{"type": FrameSubscribe, "channel": "topics/deploys"})
	readFrame(t, conn) // ack

	conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool {
		return manager.ActiveClients() == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, manager.SubscriberCount("topics/deploys"))

	// Re-auth under the same agent restores the remembered channel.
	authDev(t, server, "dev-1", "")
	require.Eventually(t, func() bool {
		return manager.SubscriberCount("topics/deploys") == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManagerClientPublish(t *testing.T) {
	_, pub, server := setupTestManager(t, true, nil)
	conn := authDev(t, server, "dev-1", "")

	writeFrame(t, conn, map[string]any{
		"type":    FramePublish,
		"channel": "topics/deploys",
		"event":   "deploy.requested",
		"data":    map[string]any{"ref": "main"},
	})
	ack := readFrame(t, conn)
	assert.Equal(t, FrameServerAck, ack["type"])
	assert.Equal(t, true, ack["success"])

	require.Eventually(t, func() bool { return pub.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	pub.mu.Lock()
	env := pub.published[0]
	pub.mu.Unlock()
	assert.Equal(t, "topics/deploys", env.Channel)
	assert.Equal(t, "deploy.requested", env.Event)
	assert.Equal(t, "main", env.Data["ref"])
}

func TestManagerPublishRequiresChannelAndEvent(t *testing.T) {
	_, pub, server := setupTestManager(t, true, nil)
	conn := authDev(t, server, "dev-1", "")

	writeFrame(t, conn, map[string]any{"type": FramePublish, "channel": "topics/deploys"})
	msg := readFrame(t, conn)
	assert.Equal(t, FrameError, msg["type"])
	assert.Equal(t, CodeBadFrame, msg["code"])
	assert.Equal(t, 0, pub.count())
}

func TestManagerMalformedFrame(t *testing.T) {
	_, _, server := setupTestManager(t, true, nil)
	conn := connectWS(t, server)
	readFrame(t, conn) // connected

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("not json")))

	msg := readFrame(t, conn)
	assert.Equal(t, FrameError, msg["type"])
	assert.Equal(t, CodeBadFrame, msg["code"])

	// The connection survives a bad frame.
	writeFrame(t, conn, map[string]any{"type": FramePing})
	msg = readFrame(t, conn)
	assert.Equal(t, FramePong, msg["type"])
}

func TestManagerUnknownFrameType(t *testing.T) {
	_, _, server := setupTestManager(t, true, nil)
	conn := connectWS(t, server)
	readFrame(t, conn) // connected

	writeFrame(t, conn, map[string]any{"type": "bogus"})
	msg := readFrame(t, conn)
	assert.Equal(t, FrameError, msg["type"])
	assert.Equal(t, CodeBadFrame, msg["code"])
}

func TestManagerCleanupOnDisconnect(t *testing.T) {
	manager, _, server := setupTestManager(t, true, nil)
	conn := authDev(t, server, "dev-1", "")

	require.Eventually(t, func() bool {
		return manager.ActiveClients() == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool {
		return manager.ActiveClients() == 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.NotPanics(t, func() {
		manager.Dispatch(events.NewEnvelope(events.AgentChannel("dev-1"), events.EventActionCreated, nil))
	})
}
