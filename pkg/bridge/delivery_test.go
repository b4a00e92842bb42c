package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// trackerAt returns a tracker with a controllable clock and a resend recorder.
func trackerAt(start time.Time) (*deliveryTracker, *[]string, *time.Time) {
	now := start
	var resent []string
	tr := newDeliveryTracker(func(clientID string, frame []byte) bool {
		resent = append(resent, clientID)
		return true
	})
	tr.now = func() time.Time { return now }
	return tr, &resent, &now
}

func TestTrackAndAck(t *testing.T) {
	tr, _, _ := trackerAt(time.Now())

	tr.Track("msg-1", "client-1", []byte("frame"))
	assert.Equal(t, 1, tr.PendingCount())

	tr.Ack("msg-1", "client-1")
	assert.Equal(t, 0, tr.PendingCount())

	// Duplicate or unknown acks are harmless.
	tr.Ack("msg-1", "client-1")
	tr.Ack("ghost", "client-1")
	assert.Equal(t, 0, tr.PendingCount())
}

func TestSweepSkipsFreshEntries(t *testing.T) {
	tr, resent, _ := trackerAt(time.Now())

	tr.Track("msg-1", "client-1", []byte("frame"))
	tr.sweep()

	assert.Empty(t, *resent)
	assert.Equal(t, 1, tr.PendingCount())
}

func TestSweepRetransmitsStaleEntries(t *testing.T) {
	start := time.Now()
	tr, resent, now := trackerAt(start)

	tr.Track("msg-1", "client-1", []byte("frame"))

	*now = start.Add(retryAge + time.Second)
	tr.sweep()

	assert.Equal(t, []string{"client-1"}, *resent)
	assert.Equal(t, 1, tr.PendingCount())
}

func TestSweepDropsAfterAttemptBudget(t *testing.T) {
	start := time.Now()
	tr, resent, now := trackerAt(start)

	tr.Track("msg-1", "client-1", []byte("frame"))

	// Initial send counts as attempt 1; two sweeps exhaust the budget.
	*now = start.Add(retryAge + time.Second)
	tr.sweep() // attempt 2
	*now = now.Add(retryAge + time.Second)
	tr.sweep() // attempt 3

	assert.Len(t, *resent, 2)
	assert.Equal(t, 1, tr.PendingCount())

	*now = now.Add(retryAge + time.Second)
	tr.sweep() // budget exhausted: drop

	assert.Len(t, *resent, 2, "no resend past the attempt budget")
	assert.Equal(t, 0, tr.PendingCount())
}

func TestSweepRemovesGoneClients(t *testing.T) {
	start := time.Now()
	now := start
	tr := newDeliveryTracker(func(clientID string, frame []byte) bool {
		return false // client gone
	})
	tr.now = func() time.Time { return now }

	tr.Track("msg-1", "client-1", []byte("frame"))
	now = start.Add(retryAge + time.Second)
	tr.sweep()

	assert.Equal(t, 0, tr.PendingCount())
}

func TestDropClientClearsPending(t *testing.T) {
	tr, _, _ := trackerAt(time.Now())

	tr.Track("msg-1", "client-1", []byte("a"))
	tr.Track("msg-2", "client-1", []byte("b"))
	tr.Track("msg-1", "client-2", []byte("a"))

	tr.DropClient("client-1")
	assert.Equal(t, 1, tr.PendingCount())

	tr.Ack("msg-1", "client-2")
	assert.Equal(t, 0, tr.PendingCount())
}
