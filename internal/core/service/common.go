package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/99minutos/approval-system/internal/core/domain"
	"github.com/99minutos/approval-system/internal/core/ports"
)

// Policy holds the product decisions the coordinator enforces.
type Policy struct {
	Settlement            domain.SettlementMode
	RequireDecisionReason bool
	AllowSelfApproval     bool
}

// DefaultPolicy is two-phase settlement, reason present but possibly empty,
// no self-approval.
func DefaultPolicy() Policy {
	return Policy{Settlement: domain.SettlementTwoPhase}
}

var validate = validator.New()

// callerIdentity normalizes the identity supplied by the signer. A missing or
// malformed caller is a permission problem, not a validation one.
func callerIdentity(caller string) (string, error) {
	if strings.TrimSpace(caller) == "" {
		return "", domain.ErrUnknownCaller
	}
	id, err := domain.NormalizeIdentity(caller)
	if err != nil {
		return "", domain.ErrUnknownCaller
	}
	return id, nil
}

// authorize re-reads caller from the registry and requires an active user
// holding at least min.
func authorize(ctx context.Context, users ports.UserRepository, caller string, min domain.Role) (*domain.User, error) {
	id, err := callerIdentity(caller)
	if err != nil {
		return nil, err
	}
	u, err := users.FindByIdentity(ctx, id)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrInactiveUser
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, domain.ErrInactiveUser
	}
	if !u.Role.AtLeast(min) {
		return nil, domain.ErrForbidden
	}
	return u, nil
}

func checkIdentity(field, s string) (string, error) {
	id, err := domain.NormalizeIdentity(s)
	if err != nil {
		var fe *domain.FieldError
		if errors.As(err, &fe) {
			return "", domain.Invalid(field, fe.Reason)
		}
		return "", err
	}
	return id, nil
}

func checkText(field, s string, required bool) error {
	if required && strings.TrimSpace(s) == "" {
		return domain.Invalid(field, "is required")
	}
	if utf8.RuneCountInString(s) > domain.MaxTextLength {
		return domain.Invalid(field, "must be at most 500 characters")
	}
	return nil
}

func checkDisplayName(s string) error {
	if err := validate.Var(strings.TrimSpace(s), "min=2,max=100"); err != nil {
		return domain.Invalid("display_name", "must be between 2 and 100 characters")
	}
	return nil
}

func checkContact(s string) error {
	if err := validate.Var(s, "required,email"); err != nil {
		return domain.Invalid("contact", "must be a valid email address")
	}
	return nil
}

// logRejected logs a failed operation at Warn with its kind. Unknown and
// transport failures are left to the caller's error path.
func logRejected(logger zerolog.Logger, op string, err error) {
	logger.Warn().Err(err).Str("op", op).Str("kind", string(domain.KindOf(err))).Msg("operation rejected")
}
