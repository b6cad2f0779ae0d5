package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/99minutos/approval-system/internal/core/domain"
	"github.com/99minutos/approval-system/internal/core/ports"
	"github.com/99minutos/approval-system/pkg/tracing"
)

type RegistryService struct {
	ledger ports.Ledger
	logger zerolog.Logger
	now    func() time.Time
}

func NewRegistryService(ledger ports.Ledger, logger zerolog.Logger) *RegistryService {
	return &RegistryService{ledger: ledger, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Register creates an active user. Only admins may register others.
func (s *RegistryService) Register(ctx context.Context, caller string, in ports.RegisterUserInput) (u *domain.User, err error) {
	ctx, span := tracing.StartSpan(ctx, "registry.register")
	defer func() { tracing.EndSpan(span, err) }()

	identity, err := checkIdentity("identity", in.Identity)
	if err != nil {
		return nil, err
	}
	if err := checkDisplayName(in.DisplayName); err != nil {
		return nil, err
	}
	if err := checkContact(in.Contact); err != nil {
		return nil, err
	}
	if !in.Role.Valid() {
		return nil, domain.Invalid("role", "must be one of user, manager, admin")
	}

	admin, err := authorize(ctx, s.ledger.Users(), caller, domain.RoleAdmin)
	if err != nil {
		logRejected(s.logger, "register", err)
		return nil, err
	}

	u = &domain.User{
		Identity:    identity,
		DisplayName: strings.TrimSpace(in.DisplayName),
		Contact:     in.Contact,
		Role:        in.Role,
		IsActive:    true,
		CreatedAt:   s.now(),
	}
	if err := s.ledger.Users().Create(ctx, u); err != nil {
		logRejected(s.logger, "register", err)
		return nil, err
	}

	span.SetAttributes(attribute.Int64("user_id", u.ID))
	s.logger.Info().Str("identity", u.Identity).Str("role", u.Role.String()).Str("by", admin.Identity).Msg("user registered")
	return u, nil
}

// UpdateRole changes identity's role. Setting the current role again succeeds
// without writing.
func (s *RegistryService) UpdateRole(ctx context.Context, caller, identity string, role domain.Role) (u *domain.User, err error) {
	ctx, span := tracing.StartSpan(ctx, "registry.update_role")
	defer func() { tracing.EndSpan(span, err) }()

	target, err := checkIdentity("identity", identity)
	if err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, domain.Invalid("role", "must be one of user, manager, admin")
	}

	admin, err := authorize(ctx, s.ledger.Users(), caller, domain.RoleAdmin)
	if err != nil {
		logRejected(s.logger, "update_role", err)
		return nil, err
	}

	u, err = s.ledger.Users().FindByIdentity(ctx, target)
	if err != nil {
		return nil, err
	}
	if u.Role == role {
		return u, nil
	}
	if err := s.ledger.Users().UpdateRole(ctx, target, u.Role, role); err != nil {
		logRejected(s.logger, "update_role", err)
		return nil, err
	}

	s.logger.Info().Str("identity", target).Str("from", u.Role.String()).Str("to", role.String()).Str("by", admin.Identity).Msg("role updated")
	u.Role = role
	return u, nil
}

func (s *RegistryService) Get(ctx context.Context, identity string) (*domain.User, error) {
	id, err := checkIdentity("identity", identity)
	if err != nil {
		return nil, err
	}
	return s.ledger.Users().FindByIdentity(ctx, id)
}

func (s *RegistryService) List(ctx context.Context) ([]*domain.User, error) {
	return s.ledger.Users().List(ctx)
}

func (s *RegistryService) Authorize(ctx context.Context, caller string, min domain.Role) (*domain.User, error) {
	return authorize(ctx, s.ledger.Users(), caller, min)
}

// Bootstrap creates the given users without a caller check. Identities that
// already exist are left untouched.
func (s *RegistryService) Bootstrap(ctx context.Context, users []ports.BootstrapUser) (int, error) {
	created := 0
	for i, b := range users {
		identity, err := checkIdentity("identity", b.Identity)
		if err != nil {
			return created, fmt.Errorf("bootstrap user %d: %w", i, err)
		}
		if !b.Role.Valid() {
			return created, fmt.Errorf("bootstrap user %d: %w", i, domain.Invalid("role", "must be one of user, manager, admin"))
		}
		u := &domain.User{
			Identity:    identity,
			DisplayName: strings.TrimSpace(b.DisplayName),
			Contact:     b.Contact,
			Role:        b.Role,
			IsActive:    b.Active,
			CreatedAt:   s.now(),
		}
		err = s.ledger.Users().Create(ctx, u)
		if errors.Is(err, domain.ErrUserExists) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("bootstrap user %s: %w", identity, err)
		}
		created++
		s.logger.Info().Str("identity", identity).Str("role", u.Role.String()).Msg("bootstrap user created")
	}
	return created, nil
}

var _ ports.RegistryService = (*RegistryService)(nil)
