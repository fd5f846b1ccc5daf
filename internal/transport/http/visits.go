package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/emeraldgrove/clinic-assistant/internal/service"
)

// UpcomingVisits returns visit summaries for the next days days.
// GET /api/visits/upcoming?days=7
func (h *Handler) UpcomingVisits(c echo.Context) error {
	caller := CallerFrom(c)
	if caller == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "authentication required"})
	}

	days := 7
	if d := c.QueryParam("days"); d != "" {
		val, err := strconv.Atoi(d)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "days must be a number"})
		}
		days = val
	}

	visits, err := h.service.UpcomingVisits(c.Request().Context(), caller, days)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load upcoming visits"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"days":   days,
		"visits": visits,
	})
}
