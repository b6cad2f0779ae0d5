package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/approval-system/internal/core/domain"
)

type stubAuthorizer struct {
	users map[string]*domain.User
	calls int
}

func (s *stubAuthorizer) Authorize(_ context.Context, caller string, min domain.Role) (*domain.User, error) {
	s.calls++
	u, ok := s.users[caller]
	if !ok || !u.IsActive {
		return nil, domain.ErrInactiveUser
	}
	if !u.Role.AtLeast(min) {
		return nil, domain.ErrForbidden
	}
	return u, nil
}

func newRBACContext(identity string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(IdentityKey, identity)
	return c, rec
}

func TestRequireRole_Allows(t *testing.T) {
	auth := &stubAuthorizer{users: map[string]*domain.User{
		checksummed: {Identity: checksummed, Role: domain.RoleAdmin, IsActive: true},
	}}
	c, rec := newRBACContext(checksummed)

	called := false
	handler := RequireRole(auth, domain.RoleManager)(func(c echo.Context) error {
		called = true
		if u, _ := c.Get(UserKey).(*domain.User); u == nil || u.Role != domain.RoleAdmin {
			t.Fatalf("user not set on context")
		}
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !called {
		t.Fatalf("next handler not called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_Forbids(t *testing.T) {
	auth := &stubAuthorizer{users: map[string]*domain.User{
		checksummed: {Identity: checksummed, Role: domain.RoleUser, IsActive: true},
	}}
	c, _ := newRBACContext(checksummed)

	handler := RequireRole(auth, domain.RoleManager)(func(c echo.Context) error {
		t.Fatalf("should not reach next handler")
		return nil
	})

	err := handler(c)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestRequireRole_RereadsRegistryEachRequest(t *testing.T) {
	manager := &domain.User{Identity: checksummed, Role: domain.RoleManager, IsActive: true}
	auth := &stubAuthorizer{users: map[string]*domain.User{checksummed: manager}}
	mw := RequireRole(auth, domain.RoleManager)
	next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	c, _ := newRBACContext(checksummed)
	if err := mw(next)(c); err != nil {
		t.Fatalf("first request: %v", err)
	}

	manager.Role = domain.RoleUser
	c, _ = newRBACContext(checksummed)
	if err := mw(next)(c); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("demoted caller admitted: %v", err)
	}
	if auth.calls != 2 {
		t.Fatalf("expected 2 registry lookups, got %d", auth.calls)
	}
}

func TestRequireRole_InactiveCaller(t *testing.T) {
	auth := &stubAuthorizer{users: map[string]*domain.User{
		checksummed: {Identity: checksummed, Role: domain.RoleAdmin, IsActive: false},
	}}
	c, _ := newRBACContext(checksummed)

	err := RequireRole(auth, domain.RoleUser)(func(c echo.Context) error {
		t.Fatalf("should not reach next handler")
		return nil
	})(c)
	if !errors.Is(err, domain.ErrInactiveUser) {
		t.Fatalf("expected ErrInactiveUser, got %v", err)
	}
}
