package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/swarmhq/hive/pkg/models"
)

// createSubtaskHandler handles POST /api/subtasks.
func (s *Server) createSubtaskHandler(c *echo.Context) error {
	var req models.CreateSubtaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	subtask, err := s.svc.Subtasks.CreateSubtask(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, subtask)
}

// listSubtasksHandler handles GET /api/subtasks.
func (s *Server) listSubtasksHandler(c *echo.Context) error {
	params := parseListParams(c, 100, 100)
	subtasks, err := s.svc.Subtasks.ListSubtasks(c.Request().Context(),
		c.QueryParam("task_id"), c.QueryParam("agent_id"), c.QueryParam("status"), params)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, listResponse(subtasks, params))
}

// getSubtaskHandler handles GET /api/subtasks/:id.
func (s *Server) getSubtaskHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "subtask id is required")
	}

	subtask, err := s.svc.Subtasks.GetSubtask(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, subtask)
}

// updateSubtaskHandler handles PATCH /api/subtasks/:id. Status transitions
// drive the lifecycle events agents see on the bridge.
func (s *Server) updateSubtaskHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "subtask id is required")
	}

	var req models.UpdateSubtaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	subtask, err := s.svc.Subtasks.UpdateSubtask(c.Request().Context(), id, req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, subtask)
}

// deleteSubtaskHandler handles DELETE /api/subtasks/:id.
func (s *Server) deleteSubtaskHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "subtask id is required")
	}

	if err := s.svc.Subtasks.DeleteSubtask(c.Request().Context(), id); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
