package api

import (
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/swarmhq/hive/pkg/models"
)

// HealthCheck is the status of one checked component.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}

// DeletedResponse reports a counted deletion.
type DeletedResponse struct {
	Deleted int64 `json:"deleted"`
}

// listResponse wraps a page of items in the standard pagination envelope.
func listResponse[T any](items []T, params models.ListParams) models.ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return models.ListResponse[T]{
		Items:  items,
		Count:  len(items),
		Limit:  params.Limit,
		Offset: int64(params.Offset),
	}
}

// parseListParams reads limit/offset query parameters, applying the default
// and cap the endpoint advertises.
func parseListParams(c *echo.Context, def, max int) models.ListParams {
	params := models.ListParams{Limit: def}
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			params.Limit = n
		}
	}
	if params.Limit > max {
		params.Limit = max
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			params.Offset = n
		}
	}
	return params
}
