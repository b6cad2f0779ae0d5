package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/99minutos/approval-system/internal/core/domain"
	"github.com/99minutos/approval-system/internal/core/ports"
	"github.com/99minutos/approval-system/internal/infrastructure/db/memory"
)

func TestCreateTransaction_Validation(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	ctx := context.Background()
	long := make([]byte, domain.MaxTextLength+1)
	for i := range long {
		long[i] = 'x'
	}

	cases := map[string]ports.CreateTransactionInput{
		"to":          {To: "bob", Amount: domain.AmountFromUint64(1), Description: "x"},
		"amount":      {To: bob, Description: "x"},
		"description": {To: bob, Amount: domain.AmountFromUint64(1), Description: string(long)},
	}
	for field, in := range cases {
		t.Run(field, func(t *testing.T) {
			_, err := f.txs.Create(ctx, alice, in)
			var fe *domain.FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, field, fe.Field)
		})
	}

	_, err := f.txs.Create(ctx, alice, ports.CreateTransactionInput{To: alice, Amount: domain.AmountFromUint64(1), Description: "self"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	all, err := f.txs.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateTransaction_RequiresActiveCaller(t *testing.T) {
	f := newFixture(t, DefaultPolicy())

	_, err := f.txs.Create(context.Background(), erin, ports.CreateTransactionInput{To: bob, Amount: domain.AmountFromUint64(1), Description: "x"})
	assert.ErrorIs(t, err, domain.ErrInactiveUser)

	_, err = f.txs.Create(context.Background(), "", ports.CreateTransactionInput{To: bob, Amount: domain.AmountFromUint64(1), Description: "x"})
	assert.ErrorIs(t, err, domain.ErrUnknownCaller)
}

func TestCreateTransaction_IdempotencyKey(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	ctx := context.Background()
	in := ports.CreateTransactionInput{To: bob, Amount: domain.AmountFromUint64(7), Description: "rent", IdempotencyKey: "k-1"}

	first, err := f.txs.Create(ctx, alice, in)
	require.NoError(t, err)
	assert.False(t, first.AlreadyExisted)

	replay, err := f.txs.Create(ctx, alice, in)
	require.NoError(t, err)
	assert.True(t, replay.AlreadyExisted)
	assert.Equal(t, first.Transaction.ID, replay.Transaction.ID)

	// The same key from another caller is a different request.
	other, err := f.txs.Create(ctx, bob, ports.CreateTransactionInput{To: alice, Amount: domain.AmountFromUint64(7), Description: "rent", IdempotencyKey: "k-1"})
	require.NoError(t, err)
	assert.NotEqual(t, first.Transaction.ID, other.Transaction.ID)
}

// slowKeys delays every claim so concurrent creates overlap inside the store.
type slowKeys struct {
	ports.IdempotencyStore
	delay time.Duration
}

func (s slowKeys) Claim(ctx context.Context, scope, key, fingerprint string) (ports.IdempotencyClaim, bool, error) {
	time.Sleep(s.delay)
	return s.IdempotencyStore.Claim(ctx, scope, key, fingerprint)
}

func TestCreateTransaction_ConcurrentSameKeyCreatesOnce(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	txs := NewTransactionService(f.ledger, slowKeys{IdempotencyStore: memory.NewIdempotencyStore(), delay: 20 * time.Millisecond}, zerolog.Nop())
	ctx := context.Background()
	in := ports.CreateTransactionInput{To: bob, Amount: domain.AmountFromUint64(7), Description: "rent", IdempotencyKey: "k1"}

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = txs.Create(ctx, alice, in)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, domain.ErrRequestInFlight)
		}
	}
	all, err := f.txs.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	replay, err := txs.Create(ctx, alice, in)
	require.NoError(t, err)
	assert.True(t, replay.AlreadyExisted)
	assert.Equal(t, all[0].ID, replay.Transaction.ID)
}

func TestCreateTransaction_KeyReusedWithDifferentBody(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	ctx := context.Background()
	in := ports.CreateTransactionInput{To: bob, Amount: domain.AmountFromUint64(7), Description: "rent", IdempotencyKey: "k1"}

	_, err := f.txs.Create(ctx, alice, in)
	require.NoError(t, err)

	changed := in
	changed.Amount = domain.AmountFromUint64(700)
	_, err = f.txs.Create(ctx, alice, changed)
	assert.ErrorIs(t, err, domain.ErrIdempotencyMismatch)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	changed = in
	changed.To = carol
	_, err = f.txs.Create(ctx, alice, changed)
	assert.ErrorIs(t, err, domain.ErrIdempotencyMismatch)

	all, err := f.txs.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestListByUser_SentAndReceivedNewestFirst(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	ctx := context.Background()

	mk := func(from, to string) int64 {
		res, err := f.txs.Create(ctx, from, ports.CreateTransactionInput{To: to, Amount: domain.AmountFromUint64(1), Description: "x"})
		require.NoError(t, err)
		return res.Transaction.ID
	}
	sent := mk(alice, bob)
	received := mk(bob, alice)
	mk(bob, carol)

	txs, err := f.txs.ListByUser(ctx, alice)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, received, txs[0].ID)
	assert.Equal(t, sent, txs[1].ID)

	_, err = f.txs.ListByUser(ctx, "garbage")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestComplete_ManagerMayComplete(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	ctx := context.Background()
	tx, a := f.createPending(t)

	_, err := f.approvals.ProcessApproval(ctx, dave, ports.ProcessApprovalInput{ApprovalID: a.ID, Approved: true, Reason: reason("ok")})
	require.NoError(t, err)

	done, err := f.txs.Complete(ctx, carol, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxCompleted, done.Status)

	_, err = f.txs.Complete(ctx, carol, 999)
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}
