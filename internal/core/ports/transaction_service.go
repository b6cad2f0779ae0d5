package ports

import (
	"context"

	"github.com/99minutos/approval-system/internal/core/domain"
)

// CreateTransactionInput carries all data needed to create a transaction.
// The sender is always the caller.
type CreateTransactionInput struct {
	To             string
	Amount         domain.Amount
	Description    string
	IdempotencyKey string
}

// CreateTransactionResult is returned after creating a transaction.
type CreateTransactionResult struct {
	Transaction *domain.Transaction
	// AlreadyExisted is true when the Idempotency-Key matched an earlier create.
	AlreadyExisted bool
}

// TransactionService owns transaction records and their lifecycle.
type TransactionService interface {
	Create(ctx context.Context, caller string, in CreateTransactionInput) (*CreateTransactionResult, error)
	Complete(ctx context.Context, caller string, id int64) (*domain.Transaction, error)
	Get(ctx context.Context, id int64) (*domain.Transaction, error)
	ListByUser(ctx context.Context, identity string) ([]*domain.Transaction, error)
	List(ctx context.Context) ([]*domain.Transaction, error)
}
