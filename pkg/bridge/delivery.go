package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// At-least-once delivery tuning.
const (
	retrySweepInterval = 2 * time.Second
	retryAge           = 5 * time.Second
	maxDeliveryAttempts = 3
)

type pendingKey struct {
	messageID string
	clientID  string
}

type pendingEntry struct {
	frame    []byte
	sentAt   time.Time
	attempts int
}

// deliveryTracker implements at-least-once delivery for critical events: each
// tracked send sits in the pending map until the client acks it; a sweeper
// retransmits stale entries and drops them after the attempt budget.
type deliveryTracker struct {
	mu      sync.Mutex
	pending map[pendingKey]*pendingEntry

	// resend re-queues a frame on a client; false means the client is gone.
	resend func(clientID string, frame []byte) bool

	cancel context.CancelFunc
	done   chan struct{}
	now    func() time.Time
}

func newDeliveryTracker(resend func(clientID string, frame []byte) bool) *deliveryTracker {
	return &deliveryTracker{
		pending: map[pendingKey]*pendingEntry{},
		resend:  resend,
		now:     time.Now,
	}
}

// Track records one critical send awaiting ack.
func (t *deliveryTracker) Track(messageID, clientID string, frame []byte) {
	t.mu.Lock()
	t.pending[pendingKey{messageID, clientID}] = &pendingEntry{
		frame:    frame,
		sentAt:   t.now(),
		attempts: 1,
	}
	t.mu.Unlock()
}

// Ack removes a pending entry. Unknown acks are ignored (the entry may have
// been dropped or already acked).
func (t *deliveryTracker) Ack(messageID, clientID string) {
	t.mu.Lock()
	delete(t.pending, pendingKey{messageID, clientID})
	t.mu.Unlock()
}

// DropClient clears every pending entry for a disconnected client.
func (t *deliveryTracker) DropClient(clientID string) {
	t.mu.Lock()
	for key := range t.pending {
		if key.clientID == clientID {
			delete(t.pending, key)
		}
	}
	t.mu.Unlock()
}

// PendingCount reports the number of tracked sends.
func (t *deliveryTracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Start launches the retry sweeper.
func (t *deliveryTracker) Start(ctx context.Context) {
	if t.cancel != nil {
		return
	}
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	go t.run(ctx)
}

// Stop signals the sweeper to exit and waits for it.
func (t *deliveryTracker) Stop() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	<-t.done
}

func (t *deliveryTracker) run(ctx context.Context) {
	defer close(t.done)

	ticker := time.NewTicker(retrySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

// sweep retransmits entries older than retryAge and drops exhausted ones.
func (t *deliveryTracker) sweep() {
	now := t.now()

	type resendItem struct {
		key   pendingKey
		frame []byte
	}
	var resends []resendItem

	t.mu.Lock()
	for key, entry := range t.pending {
		if now.Sub(entry.sentAt) < retryAge {
			continue
		}
		if entry.attempts >= maxDeliveryAttempts {
			slog.Warn("Dropping unacked critical event",
				"message_id", key.messageID, "client_id", key.clientID, "attempts", entry.attempts)
			delete(t.pending, key)
			continue
		}
		entry.attempts++
		entry.sentAt = now
		resends = append(resends, resendItem{key: key, frame: entry.frame})
	}
	t.mu.Unlock()

	// Send outside the lock; a failed resend means the client is gone.
	for _, item := range resends {
		if !t.resend(item.key.clientID, item.frame) {
			t.mu.Lock()
			delete(t.pending, item.key)
			t.mu.Unlock()
		}
	}
}
