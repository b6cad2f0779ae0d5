package service

import (
	"context"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/sha3"

	"github.com/99minutos/approval-system/internal/core/domain"
	"github.com/99minutos/approval-system/internal/core/ports"
	"github.com/99minutos/approval-system/pkg/tracing"
)

type TransactionService struct {
	ledger ports.Ledger
	keys   ports.IdempotencyStore
	logger zerolog.Logger
	now    func() time.Time
}

// NewTransactionService builds the service. keys may be nil, in which case
// Idempotency-Key values are ignored.
func NewTransactionService(ledger ports.Ledger, keys ports.IdempotencyStore, logger zerolog.Logger) *TransactionService {
	return &TransactionService{ledger: ledger, keys: keys, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Create records a Pending transaction from caller. Input is validated before
// the ledger is touched. A repeated idempotency key returns the transaction
// the first call created.
func (s *TransactionService) Create(ctx context.Context, caller string, in ports.CreateTransactionInput) (res *ports.CreateTransactionResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "transactions.create")
	defer func() { tracing.EndSpan(span, err) }()

	from, err := callerIdentity(caller)
	if err != nil {
		return nil, err
	}
	to, err := checkIdentity("to", in.To)
	if err != nil {
		return nil, err
	}
	if domain.SameIdentity(from, to) {
		return nil, domain.Invalid("to", "must differ from the sender")
	}
	if in.Amount.IsZero() {
		return nil, domain.Invalid("amount", "must be greater than zero")
	}
	if err := checkText("description", in.Description, true); err != nil {
		return nil, err
	}

	if _, err := authorize(ctx, s.ledger.Users(), from, domain.RoleUser); err != nil {
		logRejected(s.logger, "create_transaction", err)
		return nil, err
	}

	description := strings.TrimSpace(in.Description)
	useKey := in.IdempotencyKey != "" && s.keys != nil
	fingerprint := requestFingerprint(to, in.Amount, description)
	if useKey {
		held, claimed, err := s.keys.Claim(ctx, from, in.IdempotencyKey, fingerprint)
		if err != nil {
			return nil, err
		}
		if !claimed {
			return s.replay(ctx, in.IdempotencyKey, fingerprint, held)
		}
	}

	tx := &domain.Transaction{
		From:        from,
		To:          to,
		Amount:      in.Amount,
		Description: description,
		Status:      domain.TxPending,
		CreatedAt:   s.now(),
	}
	if err := s.ledger.Transactions().Create(ctx, tx); err != nil {
		s.logger.Error().Err(err).Msg("failed to create transaction")
		if useKey {
			if rerr := s.keys.Release(ctx, from, in.IdempotencyKey, fingerprint); rerr != nil {
				s.logger.Warn().Err(rerr).Str("idempotency_key", in.IdempotencyKey).Msg("failed to release idempotency key")
			}
		}
		return nil, err
	}

	if useKey {
		if err := s.keys.Settle(ctx, from, in.IdempotencyKey, fingerprint, tx.ID); err != nil {
			// The transaction exists; the unsettled claim expires on its own.
			s.logger.Warn().Err(err).Int64("transaction_id", tx.ID).Msg("failed to settle idempotency key")
		}
	}

	span.SetAttributes(attribute.Int64("transaction_id", tx.ID))
	s.logger.Info().Int64("transaction_id", tx.ID).Str("identity", from).Str("amount", tx.Amount.String()).Msg("transaction created")
	return &ports.CreateTransactionResult{Transaction: tx}, nil
}

// replay answers a request whose idempotency key was already claimed.
func (s *TransactionService) replay(ctx context.Context, key, fingerprint string, held ports.IdempotencyClaim) (*ports.CreateTransactionResult, error) {
	if held.Fingerprint != fingerprint {
		return nil, domain.ErrIdempotencyMismatch
	}
	if held.ID == 0 {
		return nil, domain.ErrRequestInFlight
	}
	existing, err := s.ledger.Transactions().FindByID(ctx, held.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("idempotency_key", key).Int64("transaction_id", held.ID).Msg("idempotent replay")
	return &ports.CreateTransactionResult{Transaction: existing, AlreadyExisted: true}, nil
}

// requestFingerprint identifies a create body so a reused key with other
// contents can be told apart from a retry.
func requestFingerprint(to string, amount domain.Amount, description string) string {
	sum := sha3.Sum256([]byte(strings.ToLower(to) + "\x00" + amount.String() + "\x00" + description))
	return hex.EncodeToString(sum[:])
}

// Complete settles an Active transaction whose approval was granted. The
// sender or any manager may call it.
func (s *TransactionService) Complete(ctx context.Context, caller string, id int64) (tx *domain.Transaction, err error) {
	ctx, span := tracing.StartSpan(ctx, "transactions.complete", attribute.Int64("transaction_id", id))
	defer func() { tracing.EndSpan(span, err) }()

	user, err := authorize(ctx, s.ledger.Users(), caller, domain.RoleUser)
	if err != nil {
		logRejected(s.logger, "complete", err)
		return nil, err
	}

	err = s.ledger.Atomically(ctx, func(ctx context.Context, l ports.Ledger) error {
		current, err := l.Transactions().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if !domain.SameIdentity(current.From, user.Identity) && !user.Can(domain.RoleManager) {
			return domain.ErrForbidden
		}
		if current.Status != domain.TxActive {
			return domain.ErrInvalidTransition
		}
		if current.ApprovalID == nil {
			return domain.ErrNotApproved
		}
		approval, err := l.Approvals().FindByID(ctx, *current.ApprovalID)
		if err != nil {
			return err
		}
		if approval.Status != domain.ApprovalApproved {
			return domain.ErrNotApproved
		}
		if err := l.Transactions().UpdateStatus(ctx, id, domain.TxActive, domain.TxCompleted); err != nil {
			return err
		}
		current.Status = domain.TxCompleted
		tx = current
		return nil
	})
	if err != nil {
		logRejected(s.logger, "complete", err)
		return nil, err
	}

	s.logger.Info().Int64("transaction_id", id).Str("identity", user.Identity).Msg("transaction completed")
	return tx, nil
}

func (s *TransactionService) Get(ctx context.Context, id int64) (*domain.Transaction, error) {
	return s.ledger.Transactions().FindByID(ctx, id)
}

// ListByUser returns transactions identity sent or received, newest first.
func (s *TransactionService) ListByUser(ctx context.Context, identity string) ([]*domain.Transaction, error) {
	id, err := checkIdentity("identity", identity)
	if err != nil {
		return nil, err
	}
	txs, err := s.ledger.Transactions().ListByParty(ctx, id)
	if err != nil {
		return nil, err
	}
	newestFirst(txs)
	return txs, nil
}

func (s *TransactionService) List(ctx context.Context) ([]*domain.Transaction, error) {
	return s.ledger.Transactions().List(ctx)
}

func newestFirst(txs []*domain.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].ID > txs[j].ID })
}

// isConflict reports whether err lost a race on a status write.
func isConflict(err error) bool {
	return errors.Is(err, domain.ErrStateConflict)
}

var _ ports.TransactionService = (*TransactionService)(nil)
