package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/swarmhq/hive/pkg/services"
)

// mapServiceError maps service-layer errors to HTTP error responses.
func mapServiceError(err error) *echo.HTTPError {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		he := echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
		return he.Wrap(err).(*echo.HTTPError)
	}
	var notFound *services.NotFoundError
	if errors.As(err, &notFound) {
		return echo.NewHTTPError(http.StatusNotFound, notFound.Error())
	}
	if errors.Is(err, services.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}
	if errors.Is(err, services.ErrAlreadyExists) {
		return echo.NewHTTPError(http.StatusConflict, "resource already exists")
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}

// httpErrorHandler renders every error as {error, details?} so clients see one
// shape regardless of where the error originated.
func httpErrorHandler(c *echo.Context, err error) {
	if res, _ := echo.UnwrapResponse(c.Response()); res != nil && res.Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "internal server error"

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		message = he.Message
	} else {
		var sc echo.HTTPStatusCoder
		if errors.As(err, &sc) {
			if status := sc.StatusCode(); status != 0 {
				code = status
				message = err.Error()
			}
		}
	}

	body := map[string]any{"error": message}

	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		body["details"] = map[string]any{validErr.Field: validErr.Message}
	}

	if c.Request().Method == http.MethodHead {
		if err := c.NoContent(code); err != nil {
			slog.Error("Failed to write error response", "error", err)
		}
		return
	}
	if err := c.JSON(code, body); err != nil {
		slog.Error("Failed to write error response", "error", err)
	}
}
