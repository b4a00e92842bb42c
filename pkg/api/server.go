// Package api exposes the REST surface: hook-event ingest, hierarchy queries,
// routing suggestions, context briefs, messaging and token minting.
package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/swarmhq/hive/pkg/cleanup"
	"github.com/swarmhq/hive/pkg/config"
	"github.com/swarmhq/hive/pkg/database"
	"github.com/swarmhq/hive/pkg/services"
	"github.com/swarmhq/hive/pkg/token"
)

// Services bundles the service layer handed to the server.
type Services struct {
	Projects      *services.ProjectService
	Sessions      *services.SessionService
	Requests      *services.RequestService
	Tasks         *services.TaskService
	Subtasks      *services.SubtaskService
	Actions       *services.ActionService
	Routing       *services.RoutingService
	Messages      *services.MessageService
	Subscriptions *services.SubscriptionService
	Blockings     *services.BlockingService
	Contexts      *services.ContextService
	Stats         *services.StatsService
}

// Server is the HTTP API server.
type Server struct {
	echo     *echo.Echo
	http     *http.Server
	dbClient *database.Client
	svc      Services
	cleanup  *cleanup.Service
	signer   *token.Signer
	limiter  *token.MintLimiter
	devMode  bool
}

// NewServer creates the API server and registers all routes.
func NewServer(cfg *config.Server, dbClient *database.Client, svc Services, cleanupSvc *cleanup.Service) *Server {
	e := echo.New()
	e.Use(securityHeaders())
	e.HTTPErrorHandler = httpErrorHandler

	s := &Server{
		echo:     e,
		dbClient: dbClient,
		svc:      svc,
		cleanup:  cleanupSvc,
		signer:   token.NewSigner(cfg.WSAuthSecret),
		limiter:  token.NewMintLimiter(),
		devMode:  cfg.DevMode,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	e := s.echo

	// Unprefixed operational endpoints.
	e.GET("/health", s.healthHandler)
	e.GET("/stats", s.serverStatsHandler)
	e.GET("/stats/tools-summary", s.toolsSummaryHandler)

	g := e.Group("/api")

	g.GET("/dashboard/kpis", s.dashboardKPIsHandler)
	g.GET("/cleanup/stats", s.cleanupStatsHandler)
	g.POST("/auth/token", s.mintTokenHandler)

	g.POST("/projects", s.createProjectHandler)
	g.GET("/projects", s.listProjectsHandler)
	g.GET("/projects/by-path", s.projectByPathHandler)
	g.GET("/projects/:id", s.getProjectHandler)
	g.DELETE("/projects/:id", s.deleteProjectHandler)

	g.POST("/sessions", s.createSessionHandler)
	g.GET("/sessions", s.listSessionsHandler)
	g.GET("/sessions/stats", s.sessionStatsHandler)
	g.GET("/sessions/:id", s.getSessionHandler)
	g.PATCH("/sessions/:id", s.updateSessionHandler)
	g.DELETE("/sessions/:id", s.deleteSessionHandler)

	g.POST("/requests", s.createRequestHandler)
	g.GET("/requests", s.listRequestsHandler)
	g.GET("/requests/:id", s.getRequestHandler)
	g.PATCH("/requests/:id", s.updateRequestHandler)
	g.DELETE("/requests/:id", s.deleteRequestHandler)

	g.POST("/tasks", s.createTaskHandler)
	g.GET("/tasks", s.listTasksHandler)
	g.GET("/tasks/:id", s.getTaskHandler)
	g.PATCH("/tasks/:id", s.updateTaskHandler)
	g.DELETE("/tasks/:id", s.deleteTaskHandler)

	g.POST("/subtasks", s.createSubtaskHandler)
	g.GET("/subtasks", s.listSubtasksHandler)
	g.GET("/subtasks/:id", s.getSubtaskHandler)
	g.PATCH("/subtasks/:id", s.updateSubtaskHandler)
	g.DELETE("/subtasks/:id", s.deleteSubtaskHandler)

	g.POST("/actions", s.createActionHandler)
	g.GET("/actions", s.listActionsHandler)
	g.GET("/actions/hourly", s.hourlyActionsHandler)
	g.DELETE("/actions/by-session/:session_id", s.deleteSessionActionsHandler)
	g.DELETE("/actions/:id", s.deleteActionHandler)

	g.GET("/hierarchy/:project_id", s.hierarchyHandler)
	g.GET("/active-sessions", s.activeSessionsHandler)

	g.GET("/routing/suggest", s.routingSuggestHandler)
	g.GET("/routing/stats", s.routingStatsHandler)
	g.POST("/routing/feedback", s.routingFeedbackHandler)

	g.POST("/context", s.upsertAgentContextHandler)
	g.POST("/context/generate", s.generateBriefHandler)
	g.GET("/context/:agent_id", s.getAgentContextHandler)
	g.GET("/agent-contexts", s.listAgentContextsHandler)
	g.GET("/agent-contexts/stats", s.agentContextStatsHandler)

	g.POST("/compact/save", s.compactSaveHandler)
	g.POST("/compact/restore", s.compactRestoreHandler)
	g.GET("/compact/status/:session_id", s.compactStatusHandler)
	g.GET("/compact/snapshot/:session_id", s.compactSnapshotHandler)

	g.POST("/messages", s.publishMessageHandler)
	g.GET("/messages", s.listMessagesHandler)
	g.GET("/messages/:agent_id", s.deliverMessagesHandler)

	g.POST("/subscribe", s.subscribeHandler)
	g.POST("/unsubscribe", s.unsubscribeHandler)
	g.GET("/subscriptions", s.listSubscriptionsHandler)
	g.GET("/subscriptions/:agent_id", s.agentSubscriptionsHandler)
	g.DELETE("/subscriptions/:id", s.deleteSubscriptionHandler)

	g.POST("/blocking", s.createBlockingHandler)
	g.GET("/blocking/check", s.checkBlockingHandler)
	g.GET("/blocking/:agent_id", s.listBlockingsHandler)
	g.DELETE("/blocking/:blocked_id", s.unblockAllHandler)
	g.POST("/unblock", s.unblockHandler)
}

// Start begins serving on addr. Blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
