// Hive bridge — listens on the shared database notification channel and fans
// committed events out to WebSocket subscribers.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"

	"github.com/swarmhq/hive/pkg/bridge"
	"github.com/swarmhq/hive/pkg/config"
	"github.com/swarmhq/hive/pkg/database"
	"github.com/swarmhq/hive/pkg/events"
	"github.com/swarmhq/hive/pkg/services"
	"github.com/swarmhq/hive/pkg/token"
	"github.com/swarmhq/hive/pkg/version"
)

func main() {
	config.LoadEnvFile()

	cfg, err := config.LoadBridgeFromEnv()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting hive-bridge", "version", version.Full(), "addr", cfg.Addr())

	ctx := context.Background()

	dbClient, err := database.NewClient(ctx, dbCfg)
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
	subscriptionService := services.NewSubscriptionService(pool)
	statsService := services.NewStatsService(pool)

	signer := token.NewSigner(cfg.WSAuthSecret)
	manager := bridge.NewManager(signer, subscriptionService, publisher, cfg.DevMode)
	manager.Start(ctx)
	defer manager.Stop()

	// Dedicated LISTEN connection; every committed envelope goes to the
	// manager for fan-out.
	listener := events.NewListener(dbClient.DSN(), manager.Dispatch)
	if err := listener.Start(ctx); err != nil {
		slog.Error("Failed to start notification listener", "error", err)
		os.Exit(1)
	}
	defer listener.Stop(ctx)

	metricsLoop := bridge.NewMetricsLoop(statsService, manager)
	metricsLoop.Start(ctx)
	defer metricsLoop.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		// Local-only service; origin checks add nothing here.
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			slog.Warn("WebSocket accept failed", "error", err)
			return
		}
		manager.HandleConnection(r.Context(), conn)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Bridge listening", "addr", cfg.Addr(), "dev_mode", cfg.DevMode)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Bridge server error", "error", err)
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
		slog.Warn("Bridge shutdown incomplete", "error", err)
	}
	slog.Info("Shutdown complete")
}
