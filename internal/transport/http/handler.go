package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/emeraldgrove/clinic-assistant/internal/config"
	"github.com/emeraldgrove/clinic-assistant/internal/repository"
	"github.com/emeraldgrove/clinic-assistant/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	config  *config.Config
}

// NewHandler creates a new handler.
func NewHandler(svc *service.Service, cfg *config.Config) *Handler {
	return &Handler{service: svc, config: cfg}
}

// RegisterRoutes registers routes with the echo server. Everything under
// /api requires authentication.
func (h *Handler) RegisterRoutes(e *echo.Echo, users repository.UserStore) {
	api := e.Group("/api", BasicAuth(users))
	api.POST("/chat", h.Chat)
	api.GET("/visits/upcoming", h.UpcomingVisits)
	api.GET("/sessions/:session_id/messages", h.GetSessionMessages)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
