package ports

import (
	"context"

	"github.com/99minutos/approval-system/internal/core/domain"
)

// RegisterUserInput carries the fields of a new registration.
type RegisterUserInput struct {
	Identity    string
	DisplayName string
	Contact     string
	Role        domain.Role
}

// BootstrapUser is a user created at startup without a caller check.
type BootstrapUser struct {
	Identity    string
	DisplayName string
	Contact     string
	Role        domain.Role
	Active      bool
}

// RegistryService owns identities and their roles.
type RegistryService interface {
	Register(ctx context.Context, caller string, in RegisterUserInput) (*domain.User, error)
	UpdateRole(ctx context.Context, caller, identity string, role domain.Role) (*domain.User, error)
	Get(ctx context.Context, identity string) (*domain.User, error)
	List(ctx context.Context) ([]*domain.User, error)
	// Authorize re-reads the caller from the registry and requires an active user holding min.
	Authorize(ctx context.Context, caller string, min domain.Role) (*domain.User, error)
	Bootstrap(ctx context.Context, users []BootstrapUser) (created int, err error)
}
