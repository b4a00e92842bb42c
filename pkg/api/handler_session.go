package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/swarmhq/hive/pkg/models"
)

// createSessionHandler handles POST /api/sessions. Unlike projects, session
// creation is strict: a duplicate session_id is a conflict.
func (s *Server) createSessionHandler(c *echo.Context) error {
	var req models.CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	session, err := s.svc.Sessions.CreateSession(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, session)
}

// listSessionsHandler handles GET /api/sessions.
func (s *Server) listSessionsHandler(c *echo.Context) error {
	params := parseListParams(c, 100, 100)
	sessions, err := s.svc.Sessions.ListSessions(c.Request().Context(), c.QueryParam("project_id"), params)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, listResponse(sessions, params))
}

// sessionStatsHandler handles GET /api/sessions/stats.
func (s *Server) sessionStatsHandler(c *echo.Context) error {
	stats, err := s.svc.Sessions.SessionStats(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

// getSessionHandler handles GET /api/sessions/:id.
func (s *Server) getSessionHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	session, err := s.svc.Sessions.GetSession(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, session)
}

// updateSessionHandler handles PATCH /api/sessions/:id.
func (s *Server) updateSessionHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	var req models.UpdateSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	session, err := s.svc.Sessions.UpdateSession(c.Request().Context(), id, req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, session)
}

// deleteSessionHandler handles DELETE /api/sessions/:id.
func (s *Server) deleteSessionHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	if err := s.svc.Sessions.DeleteSession(c.Request().Context(), id); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// activeSessionsHandler handles GET /api/active-sessions.
func (s *Server) activeSessionsHandler(c *echo.Context) error {
	sessions, err := s.svc.Sessions.ActiveSessions(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	if sessions == nil {
		sessions = []models.ActiveSession{}
	}
	return c.JSON(http.StatusOK, map[string]any{"sessions": sessions, "count": len(sessions)})
}
