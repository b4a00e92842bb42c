package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/swarmhq/hive/pkg/models"
)

// createRequestHandler handles POST /api/requests.
func (s *Server) createRequestHandler(c *echo.Context) error {
	var req models.CreateRequestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	request, err := s.svc.Requests.CreateRequest(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, request)
}

// listRequestsHandler handles GET /api/requests.
func (s *Server) listRequestsHandler(c *echo.Context) error {
	params := parseListParams(c, 100, 100)
	requests, err := s.svc.Requests.ListRequests(c.Request().Context(),
		c.QueryParam("session_id"), c.QueryParam("project_id"), params)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, listResponse(requests, params))
}

// getRequestHandler handles GET /api/requests/:id.
func (s *Server) getRequestHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "request id is required")
	}

	request, err := s.svc.Requests.GetRequest(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, request)
}

// updateRequestHandler handles PATCH /api/requests/:id.
func (s *Server) updateRequestHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "request id is required")
	}

	var req models.UpdateRequestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	request, err := s.svc.Requests.UpdateRequest(c.Request().Context(), id, req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, request)
}

// deleteRequestHandler handles DELETE /api/requests/:id.
func (s *Server) deleteRequestHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "request id is required")
	}

	if err := s.svc.Requests.DeleteRequest(c.Request().Context(), id); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
