package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/approval-system/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error string      `json:"error"`
	Kind  domain.Kind `json:"kind"`
}

// kindStatus maps each error kind to its HTTP status. Kinds are never merged:
// a lost race (409) must stay distinguishable from a missing record (404).
var kindStatus = map[domain.Kind]int{
	domain.KindValidation:       http.StatusUnprocessableEntity,
	domain.KindPermissionDenied: http.StatusForbidden,
	domain.KindNotFound:         http.StatusNotFound,
	domain.KindAlreadyExists:    http.StatusConflict,
	domain.KindStateConflict:    http.StatusConflict,
	domain.KindTransport:        http.StatusServiceUnavailable,
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps domain error kinds to their HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>", "kind": "<kind>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, resp := resolveError(err, log, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, resp)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, errorResponse) {
	// Echo's own errors (bind failures, 404 from router, auth middleware).
	var he *echo.HTTPError
	if errors.As(err, &he) {
		kind := domain.KindUnknown
		switch he.Code {
		case http.StatusBadRequest:
			kind = domain.KindValidation
		case http.StatusUnauthorized, http.StatusForbidden:
			kind = domain.KindPermissionDenied
		case http.StatusNotFound:
			kind = domain.KindNotFound
		}
		return he.Code, errorResponse{Error: fmt.Sprintf("%v", he.Message), Kind: kind}
	}

	kind := domain.KindOf(err)
	if code, ok := kindStatus[kind]; ok {
		if kind == domain.KindTransport {
			log.Warn().
				Err(err).
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Msg("collaborator unavailable")
		}
		return code, errorResponse{Error: err.Error(), Kind: kind}
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, errorResponse{Error: "internal server error", Kind: domain.KindUnknown}
}
