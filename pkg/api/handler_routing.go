package api

import (
	"net/http"
	"strconv"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/swarmhq/hive/pkg/models"
)

// routingSuggestHandler handles GET /api/routing/suggest?keywords=a,b,c.
func (s *Server) routingSuggestHandler(c *echo.Context) error {
	raw := c.QueryParam("keywords")
	if raw == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "keywords query parameter is required")
	}

	var keywords []string
	for _, kw := range strings.Split(raw, ",") {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	if len(keywords) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "keywords query parameter is required")
	}

	params := models.RoutingSuggestParams{
		Keywords: keywords,
		ToolType: c.QueryParam("tool_type"),
	}
	if v := c.QueryParam("min_score"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid min_score: must be a number")
		}
		params.MinScore = f
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit: must be a positive integer")
		}
		params.Limit = n
	}

	result, err := s.svc.Routing.Suggest(c.Request().Context(), params)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// routingStatsHandler handles GET /api/routing/stats.
func (s *Server) routingStatsHandler(c *echo.Context) error {
	stats, err := s.svc.Routing.Stats(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

// routingFeedbackHandler handles POST /api/routing/feedback.
func (s *Server) routingFeedbackHandler(c *echo.Context) error {
	var req models.RoutingFeedbackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	updated, err := s.svc.Routing.Feedback(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"updated": updated})
}
