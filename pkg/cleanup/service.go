// Package cleanup provides the message expiry sweeper.
package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/swarmhq/hive/pkg/models"
	"github.com/swarmhq/hive/pkg/services"
)

// DefaultInterval is how often the sweeper runs.
const DefaultInterval = 60 * time.Second

// Service periodically deletes expired agent messages and keeps statistics
// about the last run for GET /api/cleanup/stats. Deletions are idempotent.
type Service struct {
	messages *services.MessageService
	interval time.Duration

	mu    sync.Mutex
	stats models.CleanupStats

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service. A zero interval uses the default.
func NewService(messages *services.MessageService, interval time.Duration) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Service{
		messages: messages,
		interval: interval,
	}
}

// Start launches the background sweep loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started", "interval", s.interval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

// Stats returns the statistics of the most recent sweep.
func (s *Service) Stats() models.CleanupStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep runs one deletion pass with its own deadline so an overrun never
// delays the next tick.
func (s *Service) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	expired, read, err := s.messages.DeleteExpired(sweepCtx)
	if err != nil {
		slog.Error("Message expiry sweep failed", "error", err)
		return
	}

	now := time.Now().UTC()
	s.mu.Lock()
	s.stats = models.CleanupStats{
		ExpiredDeleted: expired,
		ReadDeleted:    read,
		RanAt:          &now,
	}
	s.mu.Unlock()

	if expired > 0 {
		slog.Info("Expired messages deleted", "expired", expired, "previously_read", read)
	}
}
