package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/swarmhq/hive/pkg/events"
	"github.com/swarmhq/hive/pkg/services"
)

// metricsInterval is the cadence of the KPI broadcast.
const metricsInterval = 5 * time.Second

// MetricsLoop periodically aggregates dashboard KPIs and broadcasts one
// metric.update event on the metrics channel. Metric events are never
// retried; the next tick supersedes a lost one.
type MetricsLoop struct {
	stats   *services.StatsService
	manager *Manager

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMetricsLoop creates a MetricsLoop.
func NewMetricsLoop(stats *services.StatsService, manager *Manager) *MetricsLoop {
	return &MetricsLoop{stats: stats, manager: manager}
}

// Start launches the aggregation loop.
func (l *MetricsLoop) Start(ctx context.Context) {
	if l.cancel != nil {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go l.run(ctx)
	slog.Info("Metrics loop started", "interval", metricsInterval)
}

// Stop signals the loop to exit and waits for it.
func (l *MetricsLoop) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
	slog.Info("Metrics loop stopped")
}

func (l *MetricsLoop) run(ctx context.Context) {
	defer close(l.done)

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// tick runs one aggregation pass under its own deadline so an overrun never
// delays the next tick.
func (l *MetricsLoop) tick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, metricsInterval)
	defer cancel()

	kpis, err := l.stats.DashboardKPIs(tickCtx)
	if err != nil {
		slog.Error("Metrics aggregation failed", "error", err)
		return
	}

	l.manager.Dispatch(events.NewEnvelope(events.ChannelMetrics, events.EventMetricUpdate, map[string]any{
		"active_sessions":      kpis.ActiveSessions,
		"active_agents":        kpis.ActiveAgents,
		"pending_tasks":        kpis.PendingTasks,
		"running_tasks":        kpis.RunningTasks,
		"messages_last_hour":   kpis.MessagesLastHr,
		"actions_per_minute":   kpis.ActionsPerMin,
		"avg_task_duration_ms": kpis.AvgTaskDuration,
	}))
}
