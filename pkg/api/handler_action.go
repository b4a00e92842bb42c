package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/swarmhq/hive/pkg/models"
	"github.com/swarmhq/hive/pkg/services"
)

// createActionHandler handles POST /api/actions, the hot ingest path for
// lifecycle hooks. The whole write (project/session upsert, action insert,
// keyword scoring, notify) commits before the 201 is returned.
func (s *Server) createActionHandler(c *echo.Context) error {
	var req models.CreateActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	action, err := s.svc.Actions.CreateAction(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, action)
}

// listActionsHandler handles GET /api/actions. The cap is higher than other
// resources because dashboards replay full sessions.
func (s *Server) listActionsHandler(c *echo.Context) error {
	listParams := parseListParams(c, 100, 5000)
	params := services.ActionListParams{
		SessionID: c.QueryParam("session_id"),
		SubtaskID: c.QueryParam("subtask_id"),
		ToolName:  c.QueryParam("tool_name"),
		Limit:     listParams.Limit,
		Offset:    listParams.Offset,
	}

	actions, err := s.svc.Actions.ListActions(c.Request().Context(), params)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, listResponse(actions, listParams))
}

// hourlyActionsHandler handles GET /api/actions/hourly.
func (s *Server) hourlyActionsHandler(c *echo.Context) error {
	counts, err := s.svc.Actions.HourlyActionCounts(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	if counts == nil {
		counts = []models.HourlyActionCount{}
	}
	return c.JSON(http.StatusOK, map[string]any{"hours": counts, "count": len(counts)})
}

// deleteActionHandler handles DELETE /api/actions/:id.
func (s *Server) deleteActionHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "action id is required")
	}

	if err := s.svc.Actions.DeleteAction(c.Request().Context(), id); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// deleteSessionActionsHandler handles DELETE /api/actions/by-session/:session_id.
func (s *Server) deleteSessionActionsHandler(c *echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	deleted, err := s.svc.Actions.DeleteActionsBySession(c.Request().Context(), sessionID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, DeletedResponse{Deleted: deleted})
}

// hierarchyHandler handles GET /api/hierarchy/:project_id.
func (s *Server) hierarchyHandler(c *echo.Context) error {
	projectID := c.Param("project_id")
	if projectID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "project id is required")
	}

	tree, err := s.svc.Stats.Hierarchy(c.Request().Context(), projectID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, tree)
}
