package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// mintTokenRequest is the body of POST /api/auth/token.
type mintTokenRequest struct {
	AgentID   string `json:"agent_id"`
	SessionID string `json:"session_id,omitempty"`
}

// mintTokenHandler handles POST /api/auth/token. Minting is rate limited per
// agent identity; clients are expected to cache tokens for their lifetime.
func (s *Server) mintTokenHandler(c *echo.Context) error {
	var req mintTokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.AgentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent_id is required")
	}
	if s.signer == nil || !s.signer.Configured() {
		if !s.devMode {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "token minting is not configured")
		}
	}
	if !s.limiter.Allow(req.AgentID) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "token mint rate exceeded, retry later")
	}

	tok, claims, err := s.signer.Mint(req.AgentID, req.SessionID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to mint token")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"token":      tok,
		"agent_id":   claims.AgentID,
		"session_id": claims.SessionID,
		"expires_at": claims.ExpiresAt,
	})
}
