package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/approval-system/internal/api/middleware"
	"github.com/99minutos/approval-system/internal/core/domain"
)

// ctxCaller extracts the identity injected by the Auth middleware and fails
// fast before any service call. Its presence proves the middleware ran.
func ctxCaller(c echo.Context) (string, error) {
	identity, _ := c.Get(middleware.IdentityKey).(string)
	if identity == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing caller identity")
	}
	return identity, nil
}

// pathID parses a numeric path parameter.
func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Invalid(name, "must be a positive integer")
	}
	return id, nil
}
