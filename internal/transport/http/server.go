// Package http provides the HTTP server for the clinic assistant.
package http

import (
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/emeraldgrove/clinic-assistant/internal/config"
	"github.com/emeraldgrove/clinic-assistant/internal/repository"
	"github.com/emeraldgrove/clinic-assistant/internal/service"
)

// requestValidator adapts go-playground/validator to echo's Validator.
type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

// NewServer creates and configures the HTTP server.
func NewServer(svc *service.Service, users repository.UserStore, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &requestValidator{validate: validator.New()}

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	h := NewHandler(svc, cfg)
	h.RegisterRoutes(e, users)

	return e
}
