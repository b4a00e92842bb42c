package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/swarmhq/hive/pkg/models"
)

// upsertAgentContextHandler handles POST /api/context. Agents checkpoint
// their working state here; the row is keyed on (project, agent).
func (s *Server) upsertAgentContextHandler(c *echo.Context) error {
	var req models.UpsertAgentContextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	agentCtx, err := s.svc.Contexts.UpsertAgentContext(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, agentCtx)
}

// getAgentContextHandler handles GET /api/context/:agent_id.
func (s *Server) getAgentContextHandler(c *echo.Context) error {
	agentID := c.Param("agent_id")
	if agentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent id is required")
	}

	agentCtx, err := s.svc.Contexts.GetAgentContext(c.Request().Context(), agentID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, agentCtx)
}

// listAgentContextsHandler handles GET /api/agent-contexts.
func (s *Server) listAgentContextsHandler(c *echo.Context) error {
	params := parseListParams(c, 100, 100)
	contexts, err := s.svc.Contexts.ListAgentContexts(c.Request().Context(), c.QueryParam("agent_type"), params)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, listResponse(contexts, params))
}

// agentContextStatsHandler handles GET /api/agent-contexts/stats.
func (s *Server) agentContextStatsHandler(c *echo.Context) error {
	stats, err := s.svc.Contexts.AgentContextStats(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

// generateBriefHandler handles POST /api/context/generate.
func (s *Server) generateBriefHandler(c *echo.Context) error {
	var req models.GenerateBriefRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := s.svc.Contexts.GenerateBrief(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// compactSaveHandler handles POST /api/compact/save.
func (s *Server) compactSaveHandler(c *echo.Context) error {
	var req models.CompactSaveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	snapshot, err := s.svc.Contexts.CompactSave(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, snapshot)
}

// compactRestoreHandler handles POST /api/compact/restore. Marks the session
// compacted and returns a brief with the saved summary folded in.
func (s *Server) compactRestoreHandler(c *echo.Context) error {
	var req models.CompactRestoreRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := s.svc.Contexts.CompactRestore(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// compactStatusHandler handles GET /api/compact/status/:session_id.
func (s *Server) compactStatusHandler(c *echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	status, err := s.svc.Contexts.CompactStatus(c.Request().Context(), sessionID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, status)
}

// compactSnapshotHandler handles GET /api/compact/snapshot/:session_id.
func (s *Server) compactSnapshotHandler(c *echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	snapshot, err := s.svc.Contexts.CompactSnapshot(c.Request().Context(), sessionID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, snapshot)
}
