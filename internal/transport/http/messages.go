package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/emeraldgrove/clinic-assistant/internal/service"
)

// GetSessionMessages retrieves the transcript of a session. Callers see
// only their own sessions; ADMIN callers see all. A foreign session id
// reads as not found.
// GET /api/sessions/:session_id/messages
func (h *Handler) GetSessionMessages(c echo.Context) error {
	caller := CallerFrom(c)
	if caller == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "authentication required"})
	}

	sessionID := c.Param("session_id")
	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}

	messages, err := h.service.GetMessages(c.Request().Context(), caller, sessionID, limit)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
		}
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load messages"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"messages": messages,
	})
}
