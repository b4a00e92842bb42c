package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/swarmhq/hive/pkg/models"
)

// createProjectHandler handles POST /api/projects. Creation is an upsert
// keyed on path so hook clients can fire it repeatedly.
func (s *Server) createProjectHandler(c *echo.Context) error {
	var req models.CreateProjectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	project, err := s.svc.Projects.CreateProject(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, project)
}

// listProjectsHandler handles GET /api/projects.
func (s *Server) listProjectsHandler(c *echo.Context) error {
	params := parseListParams(c, 100, 100)
	projects, err := s.svc.Projects.ListProjects(c.Request().Context(), params)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, listResponse(projects, params))
}

// projectByPathHandler handles GET /api/projects/by-path?path=.
func (s *Server) projectByPathHandler(c *echo.Context) error {
	path := c.QueryParam("path")
	if path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "path query parameter is required")
	}

	project, err := s.svc.Projects.GetProjectByPath(c.Request().Context(), path)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, project)
}

// getProjectHandler handles GET /api/projects/:id.
func (s *Server) getProjectHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "project id is required")
	}

	project, err := s.svc.Projects.GetProject(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, project)
}

// deleteProjectHandler handles DELETE /api/projects/:id.
func (s *Server) deleteProjectHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "project id is required")
	}

	if err := s.svc.Projects.DeleteProject(c.Request().Context(), id); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
