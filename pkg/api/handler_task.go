package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/swarmhq/hive/pkg/models"
)

// createTaskHandler handles POST /api/tasks. A missing wave_number
// auto-increments past the request's highest wave.
func (s *Server) createTaskHandler(c *echo.Context) error {
	var req models.CreateTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	task, err := s.svc.Tasks.CreateTask(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, task)
}

// listTasksHandler handles GET /api/tasks.
func (s *Server) listTasksHandler(c *echo.Context) error {
	params := parseListParams(c, 100, 100)
	tasks, err := s.svc.Tasks.ListTasks(c.Request().Context(),
		c.QueryParam("request_id"), c.QueryParam("status"), params)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, listResponse(tasks, params))
}

// getTaskHandler handles GET /api/tasks/:id.
func (s *Server) getTaskHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "task id is required")
	}

	task, err := s.svc.Tasks.GetTask(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, task)
}

// updateTaskHandler handles PATCH /api/tasks/:id.
func (s *Server) updateTaskHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "task id is required")
	}

	var req models.UpdateTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	task, err := s.svc.Tasks.UpdateTask(c.Request().Context(), id, req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, task)
}

// deleteTaskHandler handles DELETE /api/tasks/:id.
func (s *Server) deleteTaskHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "task id is required")
	}

	if err := s.svc.Tasks.DeleteTask(c.Request().Context(), id); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
