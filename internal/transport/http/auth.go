package http

import (
	"log"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/emeraldgrove/clinic-assistant/internal/domain"
	"github.com/emeraldgrove/clinic-assistant/internal/repository"
)

// callerContextKey is the echo context key holding the resolved caller.
const callerContextKey = "caller"

// BasicAuth resolves HTTP Basic credentials against the user store and
// attaches the resulting CallerContext to the request. Requests without
// valid credentials are rejected with 401 before reaching the
// orchestrator.
func BasicAuth(users repository.UserStore) echo.MiddlewareFunc {
	return middleware.BasicAuth(func(email, password string, c echo.Context) (bool, error) {
		user, err := users.GetUserByEmail(c.Request().Context(), email)
		if err != nil {
			log.Printf("ERROR: user lookup for %s failed: %v", email, err)
			return false, nil
		}
		if user == nil {
			return false, nil
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
			return false, nil
		}

		displayName := user.Email
		if user.OwnerName != "" {
			displayName = user.OwnerName
		}
		c.Set(callerContextKey, &domain.CallerContext{
			UserID:      user.ID,
			DisplayName: displayName,
			Role:        user.Role,
			OwnerID:     user.OwnerID,
		})
		return true, nil
	})
}

// CallerFrom returns the caller resolved by the auth middleware, or nil.
func CallerFrom(c echo.Context) *domain.CallerContext {
	caller, _ := c.Get(callerContextKey).(*domain.CallerContext)
	return caller
}
