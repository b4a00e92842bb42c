package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// writeTimeout is the per-frame WebSocket write deadline. A client whose
// socket blocks longer than this is dropped.
const writeTimeout = 2 * time.Second

// outboundBuffer bounds the per-client send queue. A full queue means the
// client cannot keep up and is dropped.
const outboundBuffer = 64

// client is one WebSocket connection. Reads happen on the connection's own
// read loop; sends are serialized by the write loop draining outbound.
type client struct {
	id        string
	conn      *websocket.Conn
	outbound  chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu            sync.Mutex
	authenticated bool
	agentID       string
	sessionID     string
	lastActivity  time.Time
}

func newClient(parentCtx context.Context, id string, conn *websocket.Conn) *client {
	ctx, cancel := context.WithCancel(parentCtx)
	return &client{
		id:           id,
		conn:         conn,
		outbound:     make(chan []byte, outboundBuffer),
		ctx:          ctx,
		cancel:       cancel,
		lastActivity: time.Now(),
	}
}

// send queues a frame for the write loop. Returns false when the client is
// gone or cannot keep up; the caller drops it.
func (c *client) send(frame []byte) bool {
	if frame == nil {
		return true
	}
	select {
	case c.outbound <- frame:
		return true
	case <-c.ctx.Done():
		return false
	default:
		// Queue full: the client is too slow to be worth keeping.
		return false
	}
}

// writeLoop serializes all sends on the connection. Exits on the first write
// error or when the client context is cancelled.
func (c *client) writeLoop(onError func()) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case frame := <-c.outbound:
			writeCtx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				onError()
				return
			}
		}
	}
}

// close cancels the client and closes the socket, exactly once.
func (c *client) close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.conn.Close(code, reason)
	})
}

func (c *client) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

func (c *client) idleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

func (c *client) authenticate(agentID, sessionID string) {
	c.mu.Lock()
	c.authenticated = true
	c.agentID = agentID
	c.sessionID = sessionID
	c.mu.Unlock()
}

func (c *client) isAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

func (c *client) identity() (agentID, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agentID, c.sessionID
}
