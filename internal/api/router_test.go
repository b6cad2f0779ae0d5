package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/approval-system/internal/core/domain"
	"github.com/99minutos/approval-system/internal/core/ports"
	"github.com/99minutos/approval-system/internal/core/service"
	"github.com/99minutos/approval-system/internal/infrastructure/db/memory"
	"github.com/99minutos/approval-system/internal/infrastructure/http/handlers"
	"github.com/99minutos/approval-system/internal/infrastructure/queue"
)

const (
	secret = "test-secret"
	dave   = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	carol  = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
	alice  = "0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB"
	bob    = "0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb"
)

type client struct {
	t *testing.T
	e *echo.Echo
}

func (c client) do(method, path, identity, body string) (int, map[string]any) {
	c.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if identity != "" {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   identity,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}).SignedString([]byte(secret))
		if err != nil {
			c.t.Fatalf("sign token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	c.e.ServeHTTP(rec, req)

	var resp map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			c.t.Fatalf("%s %s: invalid json %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code, resp
}

func newTestRouter(t *testing.T) client {
	t.Helper()
	ctx := context.Background()
	log := zerolog.Nop()
	ledger := memory.NewLedger()

	registry := service.NewRegistryService(ledger, log)
	if _, err := registry.Bootstrap(ctx, []ports.BootstrapUser{
		{Identity: dave, DisplayName: "Dave", Contact: "dave@example.com", Role: domain.RoleAdmin, Active: true},
	}); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	dispatcher := queue.NewDispatcher(2, time.Minute, log)
	dctx, cancel := context.WithCancel(ctx)
	dispatcher.Start(dctx)
	t.Cleanup(cancel)

	e := NewRouter(Dependencies{
		Registry:     registry,
		Transactions: service.NewTransactionService(ledger, memory.NewIdempotencyStore(), log),
		Approvals:    service.NewApprovalService(ledger, memory.NewLocker(), service.DefaultPolicy(), log),
		Projections:  service.NewProjectionService(ledger),
		Dispatcher:   dispatcher,
		Ready:        map[string]handlers.Pinger{"ledger": ledger},
		JWTSecret:    secret,
		Logger:       log,
	})
	return client{t: t, e: e}
}

// The router registers process-wide prometheus collectors, so it is built
// once and every flow runs as a subtest against it.
func TestRouter(t *testing.T) {
	c := newTestRouter(t)

	t.Run("health is public", func(t *testing.T) {
		if code, _ := c.do(http.MethodGet, "/health", "", ""); code != http.StatusOK {
			t.Fatalf("expected 200, got %d", code)
		}
		if code, resp := c.do(http.MethodGet, "/health/ready", "", ""); code != http.StatusOK {
			t.Fatalf("expected 200, got %d %v", code, resp)
		}
	})

	t.Run("v1 requires a token", func(t *testing.T) {
		code, resp := c.do(http.MethodGet, "/v1/transactions", "", "")
		if code != http.StatusUnauthorized || resp["kind"] != string(domain.KindPermissionDenied) {
			t.Fatalf("expected 401 permission_denied, got %d %v", code, resp)
		}
	})

	t.Run("only admins register", func(t *testing.T) {
		for _, u := range []struct{ identity, name, role string }{
			{carol, "Carol", "manager"},
			{alice, "Alice", "user"},
			{bob, "Bob", "user"},
		} {
			body := fmt.Sprintf(`{"identity":%q,"display_name":%q,"contact":"%s@example.com","role":%q}`,
				u.identity, u.name, strings.ToLower(u.name), u.role)
			if code, resp := c.do(http.MethodPost, "/v1/users", dave, body); code != http.StatusCreated {
				t.Fatalf("register %s: %d %v", u.name, code, resp)
			}
		}

		body := `{"identity":"0x52908400098527886E0F7030069857D2E4169EE7","display_name":"Erin","contact":"erin@example.com","role":"user"}`
		code, resp := c.do(http.MethodPost, "/v1/users", alice, body)
		if code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d %v", code, resp)
		}

		code, _ = c.do(http.MethodPost, "/v1/users", dave,
			`{"identity":"`+alice+`","display_name":"Alice","contact":"alice@example.com","role":"user"}`)
		if code != http.StatusConflict {
			t.Fatalf("expected 409 for duplicate registration, got %d", code)
		}
	})

	var txID, approvalID int64

	t.Run("create and request approval", func(t *testing.T) {
		code, resp := c.do(http.MethodPost, "/v1/transactions", alice,
			`{"to":"`+bob+`","amount":"1500000000000000000","description":"Invoice #42"}`)
		if code != http.StatusCreated || resp["status"] != "pending" {
			t.Fatalf("create: %d %v", code, resp)
		}
		txID = int64(resp["id"].(float64))

		code, resp = c.do(http.MethodPost, fmt.Sprintf("/v1/transactions/%d/approvals", txID), alice, `{"reason":"Invoice #42"}`)
		if code != http.StatusCreated || resp["status"] != "pending" || resp["requester"] != alice {
			t.Fatalf("request approval: %d %v", code, resp)
		}
		approvalID = int64(resp["id"].(float64))
	})

	t.Run("zero amount is a validation error", func(t *testing.T) {
		code, resp := c.do(http.MethodPost, "/v1/transactions", alice,
			`{"to":"`+bob+`","amount":"0","description":"nothing"}`)
		if code != http.StatusUnprocessableEntity || resp["kind"] != string(domain.KindValidation) {
			t.Fatalf("expected 422 validation_error, got %d %v", code, resp)
		}
	})

	t.Run("users cannot decide", func(t *testing.T) {
		code, _ := c.do(http.MethodPost, fmt.Sprintf("/v1/approvals/%d/decision", approvalID), bob, `{"approved":true,"reason":"sure"}`)
		if code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", code)
		}
	})

	t.Run("manager approves once", func(t *testing.T) {
		path := fmt.Sprintf("/v1/approvals/%d/decision", approvalID)
		code, resp := c.do(http.MethodPost, path, carol, `{"approved":true,"reason":"Looks good"}`)
		if code != http.StatusOK {
			t.Fatalf("decide: %d %v", code, resp)
		}
		approval := resp["approval"].(map[string]any)
		tx := resp["transaction"].(map[string]any)
		if approval["status"] != "approved" || approval["approver"] != carol || tx["status"] != "active" {
			t.Fatalf("unexpected decision: %v", resp)
		}

		code, resp = c.do(http.MethodPost, path, dave, `{"approved":true,"reason":"me too"}`)
		if code != http.StatusConflict || resp["kind"] != string(domain.KindStateConflict) {
			t.Fatalf("expected 409 state_conflict, got %d %v", code, resp)
		}

		code, resp = c.do(http.MethodPost, fmt.Sprintf("/v1/transactions/%d/approvals", txID), alice, `{"reason":"again"}`)
		if code != http.StatusConflict {
			t.Fatalf("expected 409 for a second request, got %d %v", code, resp)
		}
	})

	t.Run("sender completes", func(t *testing.T) {
		code, resp := c.do(http.MethodPost, fmt.Sprintf("/v1/transactions/%d/complete", txID), alice, "")
		if code != http.StatusOK || resp["status"] != "completed" {
			t.Fatalf("complete: %d %v", code, resp)
		}
	})

	t.Run("reads", func(t *testing.T) {
		code, resp := c.do(http.MethodGet, "/v1/approvals/history", bob, "")
		if code != http.StatusOK || resp["count"] != float64(1) {
			t.Fatalf("history: %d %v", code, resp)
		}
		code, resp = c.do(http.MethodGet, "/v1/users/"+strings.ToLower(bob)+"/transactions", bob, "")
		if code != http.StatusOK || resp["count"] != float64(1) {
			t.Fatalf("list by user: %d %v", code, resp)
		}
		code, resp = c.do(http.MethodGet, "/v1/projections/metrics", bob, "")
		if code != http.StatusOK || resp["total_volume_ether"] != "1.5" {
			t.Fatalf("metrics: %d %v", code, resp)
		}
		code, _ = c.do(http.MethodGet, "/v1/transactions/999", bob, "")
		if code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", code)
		}
	})

	t.Run("registration approval activates the user", func(t *testing.T) {
		const erin = "0x52908400098527886E0F7030069857D2E4169EE7"
		code, resp := c.do(http.MethodPost, "/v1/registrations", erin,
			`{"display_name":"Erin","contact":"erin@example.com","reason":"new hire"}`)
		if code != http.StatusCreated || resp["kind"] != string(domain.KindUserRegistration) {
			t.Fatalf("registration: %d %v", code, resp)
		}
		id := int64(resp["id"].(float64))

		code, _ = c.do(http.MethodPost, "/v1/transactions", erin, `{"to":"`+bob+`","amount":"1","description":"early"}`)
		if code != http.StatusForbidden {
			t.Fatalf("inactive user must not transact, got %d", code)
		}

		code, _ = c.do(http.MethodPost, fmt.Sprintf("/v1/approvals/%d/decision", id), carol, `{"approved":true,"reason":"ok"}`)
		if code != http.StatusForbidden {
			t.Fatalf("managers cannot decide registrations, got %d", code)
		}

		code, resp = c.do(http.MethodPost, fmt.Sprintf("/v1/approvals/%d/decision", id), dave, `{"approved":true,"reason":"welcome"}`)
		if code != http.StatusOK {
			t.Fatalf("decide registration: %d %v", code, resp)
		}
		if user := resp["user"].(map[string]any); user["is_active"] != true {
			t.Fatalf("user not activated: %v", user)
		}
	})

	t.Run("metrics endpoint", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		rec := httptest.NewRecorder()
		c.e.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "approval_decisions_total") {
			t.Fatalf("metrics not exposed: %d", rec.Code)
		}
	})
}
