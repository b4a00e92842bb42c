package token

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Mint rate limit: 10 tokens per 15-minute window per client identity.
const (
	mintWindow = 15 * time.Minute
	mintBurst  = 10
)

// MintLimiter rate-limits token minting per client identity. Idle limiters
// are pruned so the map does not grow with one-shot clients.
type MintLimiter struct {
	mu       sync.Mutex
	limiters map[string]*mintEntry
}

type mintEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMintLimiter creates a MintLimiter.
func NewMintLimiter() *MintLimiter {
	return &MintLimiter{limiters: map[string]*mintEntry{}}
}

// Allow reports whether the identity may mint another token now.
func (l *MintLimiter) Allow(identity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	entry, ok := l.limiters[identity]
	if !ok {
		entry = &mintEntry{
			limiter: rate.NewLimiter(rate.Every(mintWindow/mintBurst), mintBurst),
		}
		l.limiters[identity] = entry
	}
	entry.lastSeen = now

	l.pruneLocked(now)
	return entry.limiter.Allow()
}

// pruneLocked drops identities idle for longer than a full window.
func (l *MintLimiter) pruneLocked(now time.Time) {
	for id, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > mintWindow {
			delete(l.limiters, id)
		}
	}
}
