package ports

import (
	"context"

	"github.com/99minutos/approval-system/internal/core/domain"
)

// ProcessApprovalInput carries a decision. Reason is a pointer so a missing
// reason can be told apart from an explicitly empty one.
type ProcessApprovalInput struct {
	ApprovalID int64
	Approved   bool
	Reason     *string
}

// RegistrationRequestInput carries a self-registration awaiting approval.
type RegistrationRequestInput struct {
	DisplayName string
	Contact     string
	Reason      string
}

// DecisionResult is the state after a decision and its cascade.
type DecisionResult struct {
	Approval    *domain.Approval
	Transaction *domain.Transaction // set for transaction approvals
	User        *domain.User        // set for registry approvals
}

// ApprovalService coordinates approval cycles and their cascades.
type ApprovalService interface {
	RequestApproval(ctx context.Context, caller string, transactionID int64, reason string) (*domain.Approval, error)
	RequestRoleUpdate(ctx context.Context, caller string, role domain.Role, reason string) (*domain.Approval, error)
	RequestRegistration(ctx context.Context, caller string, in RegistrationRequestInput) (*domain.Approval, error)
	ProcessApproval(ctx context.Context, caller string, in ProcessApprovalInput) (*DecisionResult, error)
	Get(ctx context.Context, id int64) (*domain.Approval, error)
	ListPending(ctx context.Context) ([]*domain.Approval, error)
	ListHistory(ctx context.Context) ([]*domain.Approval, error)
}
