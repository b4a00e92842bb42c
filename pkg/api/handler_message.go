package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/swarmhq/hive/pkg/models"
)

// publishMessageHandler handles POST /api/messages.
func (s *Server) publishMessageHandler(c *echo.Context) error {
	var req models.PublishMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	msg, err := s.svc.Messages.Publish(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, msg)
}

// listMessagesHandler handles GET /api/messages. Read-only: rows are not
// marked read.
func (s *Server) listMessagesHandler(c *echo.Context) error {
	params := parseListParams(c, 100, 100)
	messages, err := s.svc.Messages.ListMessages(c.Request().Context(),
		c.QueryParam("topic"), c.QueryParam("from_agent"), params)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, listResponse(messages, params))
}

// deliverMessagesHandler handles GET /api/messages/:agent_id. Returned rows
// are atomically marked read by the requesting agent.
func (s *Server) deliverMessagesHandler(c *echo.Context) error {
	agentID := c.Param("agent_id")
	if agentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent id is required")
	}

	params := models.DeliverMessagesParams{
		AgentID: agentID,
		Topic:   c.QueryParam("topic"),
	}
	if v := c.QueryParam("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid since: must be RFC3339")
		}
		params.Since = &t
	}

	messages, err := s.svc.Messages.Deliver(c.Request().Context(), params)
	if err != nil {
		return mapServiceError(err)
	}
	if messages == nil {
		messages = []models.AgentMessage{}
	}
	return c.JSON(http.StatusOK, map[string]any{"messages": messages, "count": len(messages)})
}

// subscribeHandler handles POST /api/subscribe.
func (s *Server) subscribeHandler(c *echo.Context) error {
	var req models.SubscribeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	sub, err := s.svc.Subscriptions.Subscribe(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, sub)
}

// unsubscribeHandler handles POST /api/unsubscribe.
func (s *Server) unsubscribeHandler(c *echo.Context) error {
	var req models.UnsubscribeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := s.svc.Subscriptions.Unsubscribe(c.Request().Context(), req); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// listSubscriptionsHandler handles GET /api/subscriptions.
func (s *Server) listSubscriptionsHandler(c *echo.Context) error {
	subs, err := s.svc.Subscriptions.ListSubscriptions(c.Request().Context(), c.QueryParam("agent_id"))
	if err != nil {
		return mapServiceError(err)
	}
	if subs == nil {
		subs = []models.Subscription{}
	}
	return c.JSON(http.StatusOK, map[string]any{"subscriptions": subs, "count": len(subs)})
}

// agentSubscriptionsHandler handles GET /api/subscriptions/:agent_id.
func (s *Server) agentSubscriptionsHandler(c *echo.Context) error {
	agentID := c.Param("agent_id")
	if agentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent id is required")
	}

	subs, err := s.svc.Subscriptions.ListSubscriptions(c.Request().Context(), agentID)
	if err != nil {
		return mapServiceError(err)
	}
	if subs == nil {
		subs = []models.Subscription{}
	}
	return c.JSON(http.StatusOK, map[string]any{"subscriptions": subs, "count": len(subs)})
}

// deleteSubscriptionHandler handles DELETE /api/subscriptions/:id.
func (s *Server) deleteSubscriptionHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "subscription id is required")
	}

	if err := s.svc.Subscriptions.DeleteSubscription(c.Request().Context(), id); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// createBlockingHandler handles POST /api/blocking.
func (s *Server) createBlockingHandler(c *echo.Context) error {
	var req models.CreateBlockingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	blocking, err := s.svc.Blockings.CreateBlocking(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, blocking)
}

// listBlockingsHandler handles GET /api/blocking/:agent_id. Both directions:
// rows where the agent blocks and rows where it is blocked.
func (s *Server) listBlockingsHandler(c *echo.Context) error {
	agentID := c.Param("agent_id")
	if agentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent id is required")
	}

	blockings, err := s.svc.Blockings.ListForAgent(c.Request().Context(), agentID)
	if err != nil {
		return mapServiceError(err)
	}
	if blockings == nil {
		blockings = []models.Blocking{}
	}
	return c.JSON(http.StatusOK, map[string]any{"blockings": blockings, "count": len(blockings)})
}

// checkBlockingHandler handles GET /api/blocking/check?blocker=&blocked=.
func (s *Server) checkBlockingHandler(c *echo.Context) error {
	blocker := c.QueryParam("blocker")
	blocked := c.QueryParam("blocked")
	if blocker == "" || blocked == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "blocker and blocked query parameters are required")
	}

	isBlocked, err := s.svc.Blockings.Check(c.Request().Context(), blocker, blocked)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"blocked": isBlocked})
}

// unblockHandler handles POST /api/unblock.
func (s *Server) unblockHandler(c *echo.Context) error {
	var req models.UnblockRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := s.svc.Blockings.Unblock(c.Request().Context(), req); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// unblockAllHandler handles DELETE /api/blocking/:blocked_id. Removes every
// blocking row holding the agent.
func (s *Server) unblockAllHandler(c *echo.Context) error {
	blockedID := c.Param("blocked_id")
	if blockedID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "blocked agent id is required")
	}

	deleted, err := s.svc.Blockings.UnblockAll(c.Request().Context(), blockedID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, DeletedResponse{Deleted: deleted})
}
