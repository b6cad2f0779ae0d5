package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/99minutos/approval-system/internal/core/domain"
	"github.com/99minutos/approval-system/internal/core/ports"
	"github.com/99minutos/approval-system/internal/infrastructure/db/memory"
)

// Checksummed identities used across the service tests.
const (
	dave  = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed" // admin
	carol = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359" // manager
	alice = "0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB" // user
	bob   = "0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb" // user
	erin  = "0x52908400098527886E0F7030069857D2E4169EE7" // unregistered
)

type fixture struct {
	ledger      *memory.Ledger
	registry    *RegistryService
	txs         *TransactionService
	approvals   *ApprovalService
	projections *ProjectionService
}

func newFixture(t *testing.T, policy Policy) *fixture {
	t.Helper()
	ledger := memory.NewLedger()
	f := &fixture{
		ledger:      ledger,
		registry:    NewRegistryService(ledger, zerolog.Nop()),
		txs:         NewTransactionService(ledger, memory.NewIdempotencyStore(), zerolog.Nop()),
		approvals:   NewApprovalService(ledger, memory.NewLocker(), policy, zerolog.Nop()),
		projections: NewProjectionService(ledger),
	}
	_, err := f.registry.Bootstrap(context.Background(), []ports.BootstrapUser{
		{Identity: dave, DisplayName: "Dave", Contact: "dave@example.com", Role: domain.RoleAdmin, Active: true},
	})
	require.NoError(t, err)
	f.register(t, carol, domain.RoleManager)
	f.register(t, alice, domain.RoleUser)
	f.register(t, bob, domain.RoleUser)
	return f
}

func (f *fixture) register(t *testing.T, identity string, role domain.Role) {
	t.Helper()
	_, err := f.registry.Register(context.Background(), dave, ports.RegisterUserInput{
		Identity:    identity,
		DisplayName: "User " + identity[2:6],
		Contact:     "someone@example.com",
		Role:        role,
	})
	require.NoError(t, err)
}

func mustAmount(t *testing.T, s string) domain.Amount {
	t.Helper()
	a, err := domain.ParseAmount(s)
	require.NoError(t, err)
	return a
}

// createPending runs Scenario A for alice and returns the transaction and its approval.
func (f *fixture) createPending(t *testing.T) (*domain.Transaction, *domain.Approval) {
	t.Helper()
	ctx := context.Background()
	res, err := f.txs.Create(ctx, alice, ports.CreateTransactionInput{
		To:          bob,
		Amount:      mustAmount(t, "1500000000000000000"),
		Description: "Invoice #42",
	})
	require.NoError(t, err)
	a, err := f.approvals.RequestApproval(ctx, alice, res.Transaction.ID, "Invoice #42")
	require.NoError(t, err)
	return res.Transaction, a
}

func reason(s string) *string { return &s }

// untouchedLedger fails the test if anything reaches the ledger.
type untouchedLedger struct{ t *testing.T }

func (l untouchedLedger) Users() ports.UserRepository {
	l.t.Fatal("ledger reached: Users")
	return nil
}

func (l untouchedLedger) Transactions() ports.TransactionRepository {
	l.t.Fatal("ledger reached: Transactions")
	return nil
}

func (l untouchedLedger) Approvals() ports.ApprovalRepository {
	l.t.Fatal("ledger reached: Approvals")
	return nil
}

func (l untouchedLedger) Atomically(context.Context, func(context.Context, ports.Ledger) error) error {
	l.t.Fatal("ledger reached: Atomically")
	return nil
}

func (l untouchedLedger) Ping(context.Context) error { return nil }
