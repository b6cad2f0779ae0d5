package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/99minutos/approval-system/internal/core/domain"
	"github.com/99minutos/approval-system/internal/core/ports"
)

const (
	alice = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	bob   = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
)

func seedTransaction(t *testing.T, l *Ledger) *domain.Transaction {
	t.Helper()
	tx := &domain.Transaction{
		From:      alice,
		To:        bob,
		Amount:    domain.AmountFromUint64(100),
		Status:    domain.TxPending,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, l.Transactions().Create(context.Background(), tx))
	return tx
}

func TestLedger_UserIdentityIsUniqueCaseInsensitive(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	require.NoError(t, l.Users().Create(ctx, &domain.User{Identity: alice, Role: domain.RoleUser}))
	err := l.Users().Create(ctx, &domain.User{Identity: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"})
	assert.ErrorIs(t, err, domain.ErrUserExists)

	u, err := l.Users().FindByIdentity(ctx, "0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED")
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.ID)
}

func TestLedger_ReturnedRecordsAreCopies(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	tx := seedTransaction(t, l)

	got, err := l.Transactions().FindByID(ctx, tx.ID)
	require.NoError(t, err)
	got.Status = domain.TxCompleted

	again, err := l.Transactions().FindByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxPending, again.Status)
}

func TestLedger_UpdateStatusIsCompareAndSwap(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	tx := seedTransaction(t, l)

	require.NoError(t, l.Transactions().UpdateStatus(ctx, tx.ID, domain.TxPending, domain.TxActive))
	err := l.Transactions().UpdateStatus(ctx, tx.ID, domain.TxPending, domain.TxRejected)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	err = l.Transactions().UpdateStatus(ctx, 999, domain.TxPending, domain.TxActive)
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestLedger_OnePendingApprovalPerTarget(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	first := &domain.Approval{TransactionID: 1, Kind: domain.KindTransaction, Status: domain.ApprovalPending}
	require.NoError(t, l.Approvals().Create(ctx, first))

	dup := &domain.Approval{TransactionID: 1, Kind: domain.KindTransaction, Status: domain.ApprovalPending}
	assert.ErrorIs(t, l.Approvals().Create(ctx, dup), domain.ErrApprovalOpen)

	// A different kind over the same numeric target is a different target.
	other := &domain.Approval{TransactionID: 1, Kind: domain.KindRoleUpdate, Status: domain.ApprovalPending}
	assert.NoError(t, l.Approvals().Create(ctx, other))

	require.NoError(t, l.Approvals().Decide(ctx, first.ID, domain.Decision{Status: domain.ApprovalRejected, Approver: bob}))
	again := &domain.Approval{TransactionID: 1, Kind: domain.KindTransaction, Status: domain.ApprovalPending}
	assert.NoError(t, l.Approvals().Create(ctx, again))
}

func TestLedger_DecideExactlyOnce(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	a := &domain.Approval{TransactionID: 7, Kind: domain.KindTransaction, Status: domain.ApprovalPending}
	require.NoError(t, l.Approvals().Create(ctx, a))

	const racers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := l.Approvals().Decide(ctx, a.ID, domain.Decision{
				Status:   domain.ApprovalApproved,
				Approver: bob,
				Reason:   "ok",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrApprovalDecided):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, racers-1, conflicts)
}

func TestLedger_AtomicallyRollsBackOnError(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	tx := seedTransaction(t, l)
	a := &domain.Approval{TransactionID: tx.ID, Kind: domain.KindTransaction, Status: domain.ApprovalPending}
	require.NoError(t, l.Approvals().Create(ctx, a))

	boom := errors.New("cascade failed")
	err := l.Atomically(ctx, func(ctx context.Context, u ports.Ledger) error {
		if err := u.Approvals().Decide(ctx, a.ID, domain.Decision{Status: domain.ApprovalApproved, Approver: bob}); err != nil {
			return err
		}
		// The unit sees its own write.
		got, err := u.Approvals().FindByID(ctx, a.ID)
		require.NoError(t, err)
		require.Equal(t, domain.ApprovalApproved, got.Status)
		return boom
	})
	require.ErrorIs(t, err, boom)

	stored, err := l.Approvals().FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalPending, stored.Status)
	assert.Empty(t, stored.Approver)
}

func TestLedger_AtomicallyCommits(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	tx := seedTransaction(t, l)

	err := l.Atomically(ctx, func(ctx context.Context, u ports.Ledger) error {
		return u.Transactions().UpdateStatus(ctx, tx.ID, domain.TxPending, domain.TxActive)
	})
	require.NoError(t, err)

	stored, err := l.Transactions().FindByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxActive, stored.Status)
}

func TestLedger_ListByPartyAndStatus(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	seedTransaction(t, l)
	seedTransaction(t, l)
	require.NoError(t, l.Transactions().Create(ctx, &domain.Transaction{From: bob, To: "0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB", Status: domain.TxPending}))

	mine, err := l.Transactions().ListByParty(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	bobs, err := l.Transactions().ListByParty(ctx, bob)
	require.NoError(t, err)
	assert.Len(t, bobs, 3)
	assert.True(t, bobs[0].ID < bobs[1].ID && bobs[1].ID < bobs[2].ID)
}

func TestLocker_SerializesPerKey(t *testing.T) {
	lk := NewLocker()
	ctx := context.Background()

	release, err := lk.Acquire(ctx, "approval:1")
	require.NoError(t, err)

	// Other keys are independent.
	releaseOther, err := lk.Acquire(ctx, "approval:2")
	require.NoError(t, err)
	releaseOther()

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = lk.Acquire(waitCtx, "approval:1")
	assert.ErrorIs(t, err, domain.ErrTransport)

	release()
	release() // idempotent

	again, err := lk.Acquire(ctx, "approval:1")
	require.NoError(t, err)
	again()
}

func TestIdempotencyStore(t *testing.T) {
	s := NewIdempotencyStore()
	ctx := context.Background()

	_, claimed, err := s.Claim(ctx, alice, "k1", "fp")
	require.NoError(t, err)
	assert.True(t, claimed)

	held, claimed, err := s.Claim(ctx, alice, "k1", "fp")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, ports.IdempotencyClaim{Fingerprint: "fp"}, held, "unsettled claim has no id")

	require.NoError(t, s.Settle(ctx, alice, "k1", "fp", 42))
	held, claimed, _ = s.Claim(ctx, alice, "k1", "fp")
	assert.False(t, claimed)
	assert.Equal(t, int64(42), held.ID)

	_, claimed, _ = s.Claim(ctx, bob, "k1", "fp")
	assert.True(t, claimed, "keys are scoped per caller")
}

func TestIdempotencyStore_ClaimIsExclusive(t *testing.T) {
	s := NewIdempotencyStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	var winners atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, claimed, err := s.Claim(ctx, alice, "k1", "fp"); err == nil && claimed {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load())
}

func TestIdempotencyStore_ReleaseFreesUnsettledKey(t *testing.T) {
	s := NewIdempotencyStore()
	ctx := context.Background()

	_, _, err := s.Claim(ctx, alice, "k1", "fp")
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, alice, "k1", "fp"))
	_, claimed, _ := s.Claim(ctx, alice, "k1", "fp")
	assert.True(t, claimed)

	require.NoError(t, s.Settle(ctx, alice, "k1", "fp", 7))
	require.NoError(t, s.Release(ctx, alice, "k1", "fp"))
	held, claimed, _ := s.Claim(ctx, alice, "k1", "fp")
	assert.False(t, claimed, "settled keys survive release")
	assert.Equal(t, int64(7), held.ID)
}
