// Hive API server — ingests lifecycle hook events and serves the hierarchy,
// routing, context and messaging endpoints.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/swarmhq/hive/pkg/api"
	"github.com/swarmhq/hive/pkg/cleanup"
	"github.com/swarmhq/hive/pkg/config"
	"github.com/swarmhq/hive/pkg/database"
	"github.com/swarmhq/hive/pkg/events"
	"github.com/swarmhq/hive/pkg/services"
	"github.com/swarmhq/hive/pkg/version"
)

// connectDB dials the database, retrying transient failures up to maxRetries.
func connectDB(ctx context.Context, dbCfg database.Config, maxRetries int) (*database.Client, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			slog.Warn("Retrying database connection", "attempt", attempt, "error", lastErr)
			time.Sleep(time.Duration(attempt) * time.Second)
		}
		client, err := database.NewClient(ctx, dbCfg)
		if err == nil {
			return client, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func main() {
	config.LoadEnvFile()

	cfg, err := config.LoadServerFromEnv()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting hive-api", "version", version.Full(), "addr", cfg.Addr())

	ctx := context.Background()

	dbClient, err := connectDB(ctx, dbCfg, cfg.MaxDBRetries)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	pool := dbClient.Pool()
	publisher := events.NewPublisher(pool)

	projectService := services.NewProjectService(pool, publisher)
	sessionService := services.NewSessionService(pool, publisher)
	requestService := services.NewRequestService(pool, publisher)
	taskService := services.NewTaskService(pool, publisher)
	subtaskService := services.NewSubtaskService(pool, publisher)
	actionService := services.NewActionService(pool, publisher)
	routingService := services.NewRoutingService(pool)
	messageService := services.NewMessageService(pool, publisher)
	messageService.SetDefaultTTL(cfg.MessageTTL)
	subscriptionService := services.NewSubscriptionService(pool)
	blockingService := services.NewBlockingService(pool, publisher)
	contextService := services.NewContextService(pool, sessionService)
	statsService := services.NewStatsService(pool)
	slog.Info("Services initialized")

	cleanupService := cleanup.NewService(messageService, cleanup.DefaultInterval)
	cleanupService.Start(ctx)
	defer cleanupService.Stop()

	httpServer := api.NewServer(cfg, dbClient, api.Services{
		Projects:      projectService,
		Sessions:      sessionService,
		Requests:      requestService,
		Tasks:         taskService,
		Subtasks:      subtaskService,
		Actions:       actionService,
		Routing:       routingService,
		Messages:      messageService,
		Subscriptions: subscriptionService,
		Blockings:     blockingService,
		Contexts:      contextService,
		Stats:         statsService,
	}, cleanupService)

	errCh := make(chan error, 1)
	go func() {
		addr := cfg.Addr()
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown incomplete", "error", err)
	}
	slog.Info("Shutdown complete")
}
