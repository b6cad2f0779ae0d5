package domain

import (
	"errors"
	"fmt"
)

// Kind is the stable tag attached to every error surfaced by the core.
type Kind string

const (
	KindValidation       Kind = "validation_error"
	KindPermissionDenied Kind = "permission_denied"
	KindNotFound         Kind = "not_found"
	KindAlreadyExists    Kind = "already_exists"
	KindStateConflict    Kind = "state_conflict"
	KindTransport        Kind = "transport_failure"
	KindUnknown          Kind = "unknown"
)

// Kind sentinels. Specific errors below wrap exactly one of these.
var (
	ErrValidation       = errors.New("validation error")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrStateConflict    = errors.New("state conflict")
	ErrTransport        = errors.New("transport failure")
)

var (
	ErrUserNotFound        = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("%w: transaction not found", ErrNotFound)
	ErrApprovalNotFound    = fmt.Errorf("%w: approval not found", ErrNotFound)

	ErrUserExists = fmt.Errorf("%w: identity already registered", ErrAlreadyExists)

	ErrIdempotencyMismatch = fmt.Errorf("%w: idempotency key reused with a different request", ErrValidation)

	ErrForbidden     = fmt.Errorf("%w: insufficient role", ErrPermissionDenied)
	ErrNotRequester  = fmt.Errorf("%w: caller is not the requester", ErrPermissionDenied)
	ErrInactiveUser  = fmt.Errorf("%w: caller is not an active registered user", ErrPermissionDenied)
	ErrSelfApproval  = fmt.Errorf("%w: requester cannot decide their own approval", ErrPermissionDenied)
	ErrUnknownCaller = fmt.Errorf("%w: caller identity missing", ErrPermissionDenied)

	ErrApprovalDecided   = fmt.Errorf("%w: approval already decided", ErrStateConflict)
	ErrApprovalOpen      = fmt.Errorf("%w: target already has an open approval", ErrStateConflict)
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrStateConflict)
	ErrNotApproved       = fmt.Errorf("%w: linked approval is not approved", ErrStateConflict)
	ErrRoleChanged       = fmt.Errorf("%w: role changed concurrently", ErrStateConflict)
	ErrRequestInFlight   = fmt.Errorf("%w: a request with this idempotency key is still running", ErrStateConflict)
)

var kindOrder = []struct {
	sentinel error
	kind     Kind
}{
	{ErrValidation, KindValidation},
	{ErrPermissionDenied, KindPermissionDenied},
	{ErrNotFound, KindNotFound},
	{ErrAlreadyExists, KindAlreadyExists},
	{ErrStateConflict, KindStateConflict},
	{ErrTransport, KindTransport},
}

// KindOf returns the kind tag of err, or KindUnknown when err carries none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kindOrder {
		if errors.Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindUnknown
}

// FieldError reports malformed input for a single field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrValidation }

// Invalid builds a FieldError.
func Invalid(field, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}

// Transport tags a collaborator failure (ledger unreachable, timeout, signer rejection).
func Transport(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}
