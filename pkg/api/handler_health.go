package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/swarmhq/hive/pkg/database"
	"github.com/swarmhq/hive/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health.
// A failed database ping reports 503 but the server keeps serving; the
// process supervisor decides what to do with the signal.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	_, err := database.Health(reqCtx, s.dbClient.DB())
	if err != nil {
		status = healthStatusUnhealthy
		checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["database"] = HealthCheck{Status: healthStatusHealthy}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, &HealthResponse{
		Status:  status,
		Version: version.GitCommit,
		Checks:  checks,
	})
}

// serverStatsHandler handles GET /stats.
func (s *Server) serverStatsHandler(c *echo.Context) error {
	stats, err := s.svc.Stats.ServerStats(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

// toolsSummaryHandler handles GET /stats/tools-summary.
func (s *Server) toolsSummaryHandler(c *echo.Context) error {
	summary, err := s.svc.Stats.ToolsSummary(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"tools": summary, "count": len(summary)})
}

// dashboardKPIsHandler handles GET /api/dashboard/kpis. Same bundle the
// bridge broadcasts on the metrics channel, for REST pollers.
func (s *Server) dashboardKPIsHandler(c *echo.Context) error {
	kpis, err := s.svc.Stats.DashboardKPIs(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, kpis)
}

// cleanupStatsHandler handles GET /api/cleanup/stats.
func (s *Server) cleanupStatsHandler(c *echo.Context) error {
	if s.cleanup == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "cleanup service is not running")
	}
	return c.JSON(http.StatusOK, s.cleanup.Stats())
}
