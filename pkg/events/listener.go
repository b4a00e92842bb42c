package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// Reconnect backoff bounds for the LISTEN connection.
const (
	reconnectInitialBackoff = 250 * time.Millisecond
	reconnectMaxBackoff     = 5 * time.Second
)

// Handler receives each parsed envelope from the NOTIFY stream.
type Handler func(env Envelope)

// Listener holds a dedicated pgx connection with LISTEN on the shared
// channel and dispatches parsed envelopes to a handler. A dropped
// connection is re-established with exponential backoff; malformed payloads
// are logged and skipped.
type Listener struct {
	connString string
	handler    Handler

	conn   *pgx.Conn
	connMu sync.Mutex

	cancelLoop context.CancelFunc
	loopDone   chan struct{}
}

// NewListener creates a listener. The handler is invoked from the receive
// loop goroutine; it must not block.
func NewListener(connString string, handler Handler) *Listener {
	return &Listener{
		connString: connString,
		handler:    handler,
	}
}

// Start establishes the dedicated LISTEN connection and begins receiving.
func (l *Listener) Start(ctx context.Context) error {
	conn, err := l.connect(ctx)
	if err != nil {
		return err
	}

	l.connMu.Lock()
	l.conn = conn
	l.connMu.Unlock()

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancelLoop = cancel
	l.loopDone = make(chan struct{})
	go func() {
		defer close(l.loopDone)
		l.receiveLoop(loopCtx)
	}()

	slog.Info("Event listener started", "channel", NotifyChannel)
	return nil
}

// Stop signals the receive loop to exit, waits for it, then closes the
// connection. Prevents a race between WaitForNotification and Close.
func (l *Listener) Stop(ctx context.Context) {
	if l.cancelLoop != nil {
		l.cancelLoop()
	}
	if l.loopDone != nil {
		<-l.loopDone
	}

	l.connMu.Lock()
	defer l.connMu.Unlock()
	if l.conn != nil {
		_ = l.conn.Close(ctx)
		l.conn = nil
	}
}

func (l *Listener) connect(ctx context.Context) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, l.connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect for LISTEN: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("LISTEN %s failed: %w", NotifyChannel, err)
	}
	return conn, nil
}

func (l *Listener) receiveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		l.connMu.Lock()
		conn := l.conn
		l.connMu.Unlock()

		if conn == nil {
			l.reconnect(ctx)
			continue
		}

		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("NOTIFY receive error", "error", err)
			l.reconnect(ctx)
			continue
		}

		env, err := ParseEnvelope([]byte(notification.Payload))
		if err != nil {
			slog.Warn("Skipping malformed notification", "error", err)
			continue
		}
		l.handler(env)
	}
}

func (l *Listener) reconnect(ctx context.Context) {
	l.connMu.Lock()
	if l.conn != nil {
		_ = l.conn.Close(ctx)
		l.conn = nil
	}
	l.connMu.Unlock()

	backoff := reconnectInitialBackoff
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		conn, err := l.connect(ctx)
		if err != nil {
			slog.Error("LISTEN reconnect failed", "error", err, "backoff", backoff)
			backoff = min(backoff*2, reconnectMaxBackoff)
			continue
		}

		l.connMu.Lock()
		l.conn = conn
		l.connMu.Unlock()

		slog.Info("Event listener reconnected")
		return
	}
}
