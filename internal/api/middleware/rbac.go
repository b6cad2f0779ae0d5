package middleware

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/approval-system/internal/core/domain"
)

// UserKey is the echo context key holding the caller's registry record once
// RequireRole has admitted the request.
const UserKey = "user"

// Authorizer re-reads the caller from the registry.
type Authorizer interface {
	Authorize(ctx context.Context, caller string, min domain.Role) (*domain.User, error)
}

// RequireRole admits active registered callers holding at least min. The role
// is looked up on every request, so a demotion takes effect immediately.
// Services repeat the check inside their own operations; this only rejects
// early.
func RequireRole(auth Authorizer, min domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity, _ := c.Get(IdentityKey).(string)
			user, err := auth.Authorize(c.Request().Context(), identity, min)
			if err != nil {
				return err
			}
			c.Set(UserKey, user)
			return next(c)
		}
	}
}
