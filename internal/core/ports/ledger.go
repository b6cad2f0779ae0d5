package ports

import (
	"context"

	"github.com/99minutos/approval-system/internal/core/domain"
)

// Ledger is the system of record. It owns the three record tables and the
// atomic unit in which a decision and its cascade commit together.
type Ledger interface {
	Users() UserRepository
	Transactions() TransactionRepository
	Approvals() ApprovalRepository

	// Atomically runs fn so that every write made through the Ledger passed
	// to fn commits together or not at all. Reads through that Ledger observe
	// the unit's own writes. A non-nil error from fn aborts the unit.
	Atomically(ctx context.Context, fn func(ctx context.Context, tx Ledger) error) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}

// UserRepository persists registered identities.
type UserRepository interface {
	// Create assigns the next user id. Returns domain.ErrUserExists on a duplicate identity.
	Create(ctx context.Context, u *domain.User) error
	FindByIdentity(ctx context.Context, identity string) (*domain.User, error)
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	// UpdateRole swaps the role only when it currently equals from.
	UpdateRole(ctx context.Context, identity string, from, to domain.Role) error
	// SetActive swaps the active flag only when it currently equals from.
	SetActive(ctx context.Context, identity string, from, to bool) error
	// List returns all users in ascending id order.
	List(ctx context.Context) ([]*domain.User, error)
}

// TransactionRepository persists transfer requests.
type TransactionRepository interface {
	// Create assigns the next transaction id.
	Create(ctx context.Context, t *domain.Transaction) error
	FindByID(ctx context.Context, id int64) (*domain.Transaction, error)
	// UpdateStatus swaps the status only when it currently equals from.
	// Returns domain.ErrInvalidTransition when the stored status differs.
	UpdateStatus(ctx context.Context, id int64, from, to domain.TxStatus) error
	// AttachApproval links an approval while the transaction is still in status.
	AttachApproval(ctx context.Context, id int64, status domain.TxStatus, approvalID int64) error
	// ListByParty returns transactions sent or received by identity, ascending id.
	ListByParty(ctx context.Context, identity string) ([]*domain.Transaction, error)
	// List returns all transactions in ascending id order.
	List(ctx context.Context) ([]*domain.Transaction, error)
}

// ApprovalRepository persists approval cycles.
type ApprovalRepository interface {
	// Create assigns the next approval id. Returns domain.ErrApprovalOpen when a
	// pending approval of the same kind already exists for the target.
	Create(ctx context.Context, a *domain.Approval) error
	FindByID(ctx context.Context, id int64) (*domain.Approval, error)
	// FindOpen returns the pending approval for (kind, target) or domain.ErrApprovalNotFound.
	FindOpen(ctx context.Context, kind domain.ApprovalKind, targetID int64) (*domain.Approval, error)
	// Decide moves a pending approval to d.Status, recording approver and reason.
	// Returns domain.ErrApprovalDecided when the approval is no longer pending.
	Decide(ctx context.Context, id int64, d domain.Decision) error
	// ListByStatus returns approvals in any of statuses, ascending id.
	ListByStatus(ctx context.Context, statuses ...domain.ApprovalStatus) ([]*domain.Approval, error)
}
