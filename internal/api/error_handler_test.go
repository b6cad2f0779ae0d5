package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/approval-system/internal/core/domain"
)

func TestHTTPErrorHandler_MapsKinds(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		kind domain.Kind
	}{
		{"validation", domain.Invalid("amount", "must be greater than zero"), http.StatusUnprocessableEntity, domain.KindValidation},
		{"permission", fmt.Errorf("process approval: %w", domain.ErrForbidden), http.StatusForbidden, domain.KindPermissionDenied},
		{"not found", domain.ErrTransactionNotFound, http.StatusNotFound, domain.KindNotFound},
		{"already exists", domain.ErrUserExists, http.StatusConflict, domain.KindAlreadyExists},
		{"state conflict", domain.ErrApprovalDecided, http.StatusConflict, domain.KindStateConflict},
		{"transport", domain.Transport("ledger", errors.New("dial tcp: refused")), http.StatusServiceUnavailable, domain.KindTransport},
		{"bind", echo.NewHTTPError(http.StatusBadRequest, "invalid payload"), http.StatusBadRequest, domain.KindValidation},
		{"unauthorized", echo.NewHTTPError(http.StatusUnauthorized, "invalid token"), http.StatusUnauthorized, domain.KindPermissionDenied},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, domain.KindUnknown},
	}

	handler := NewHTTPErrorHandler(zerolog.Nop())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			handler(tc.err, c)

			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rec.Code)
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if resp.Kind != tc.kind {
				t.Fatalf("expected kind %q, got %q", tc.kind, resp.Kind)
			}
			if resp.Error == "" {
				t.Fatalf("expected an error message")
			}
		})
	}
}

func TestHTTPErrorHandler_HidesUnexpectedDetails(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	NewHTTPErrorHandler(zerolog.Nop())(errors.New("pq: password authentication failed"), c)

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Error != "internal server error" {
		t.Fatalf("leaked error detail: %q", resp.Error)
	}
}
