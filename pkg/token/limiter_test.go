package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMintLimiterBurst(t *testing.T) {
	l := NewMintLimiter()

	for i := 0; i < mintBurst; i++ {
		assert.True(t, l.Allow("agent-1"), "mint %d should be allowed", i+1)
	}
	assert.False(t, l.Allow("agent-1"), "mint past the burst should be denied")
}

func TestMintLimiterPerIdentity(t *testing.T) {
	l := NewMintLimiter()

	for i := 0; i < mintBurst; i++ {
		assert.True(t, l.Allow("agent-1"))
	}
	assert.False(t, l.Allow("agent-1"))

	// A different identity has its own budget.
	assert.True(t, l.Allow("agent-2"))
}

func TestMintLimiterPrunesIdle(t *testing.T) {
	l := NewMintLimiter()
	assert.True(t, l.Allow("agent-1"))

	l.mu.Lock()
	l.limiters["agent-1"].lastSeen = time.Now().Add(-mintWindow - time.Minute)
	l.pruneLocked(time.Now())
	_, exists := l.limiters["agent-1"]
	l.mu.Unlock()

	assert.False(t, exists, "idle identity should be pruned")
}
