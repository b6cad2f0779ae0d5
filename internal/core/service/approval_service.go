package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/99minutos/approval-system/internal/core/domain"
	"github.com/99minutos/approval-system/internal/core/ports"
	"github.com/99minutos/approval-system/pkg/tracing"
)

// decisionLockWait bounds how long a decision waits for a concurrent one on
// the same approval.
const decisionLockWait = 10 * time.Second

// ApprovalService is the approval coordinator. Every decision and its cascade
// into the target record commit in one ledger unit, under a per-approval lock.
type ApprovalService struct {
	ledger ports.Ledger
	locker ports.Locker
	policy Policy
	logger zerolog.Logger
	now    func() time.Time
}

func NewApprovalService(ledger ports.Ledger, locker ports.Locker, policy Policy, logger zerolog.Logger) *ApprovalService {
	if policy.Settlement == "" {
		policy.Settlement = domain.SettlementTwoPhase
	}
	return &ApprovalService{
		ledger: ledger,
		locker: locker,
		policy: policy,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RequestApproval opens a decision over a Pending transaction. Only the
// transaction's sender may ask, and only while no other approval is open.
func (s *ApprovalService) RequestApproval(ctx context.Context, caller string, transactionID int64, reason string) (a *domain.Approval, err error) {
	ctx, span := tracing.StartSpan(ctx, "approvals.request", attribute.Int64("transaction_id", transactionID))
	defer func() { tracing.EndSpan(span, err) }()

	if err := checkText("reason", reason, false); err != nil {
		return nil, err
	}
	requester, err := authorize(ctx, s.ledger.Users(), caller, domain.RoleUser)
	if err != nil {
		logRejected(s.logger, "request_approval", err)
		return nil, err
	}

	err = s.ledger.Atomically(ctx, func(ctx context.Context, l ports.Ledger) error {
		tx, err := l.Transactions().FindByID(ctx, transactionID)
		if err != nil {
			return err
		}
		if !domain.SameIdentity(tx.From, requester.Identity) {
			return domain.ErrNotRequester
		}
		if tx.Status != domain.TxPending {
			return fmt.Errorf("transaction is %s: %w", tx.Status, domain.ErrInvalidTransition)
		}
		if _, err := l.Approvals().FindOpen(ctx, domain.KindTransaction, tx.ID); err == nil {
			return domain.ErrApprovalOpen
		}

		a = &domain.Approval{
			TransactionID: tx.ID,
			Requester:     requester.Identity,
			Kind:          domain.KindTransaction,
			Status:        domain.ApprovalPending,
			Reason:        reason,
			CreatedAt:     s.now(),
		}
		if err := l.Approvals().Create(ctx, a); err != nil {
			return err
		}
		return l.Transactions().AttachApproval(ctx, tx.ID, domain.TxPending, a.ID)
	})
	if err != nil {
		logRejected(s.logger, "request_approval", err)
		return nil, err
	}

	span.SetAttributes(attribute.Int64("approval_id", a.ID))
	s.logger.Info().Int64("approval_id", a.ID).Int64("transaction_id", transactionID).Str("identity", requester.Identity).Msg("approval requested")
	return a, nil
}

// RequestRoleUpdate asks admins to move the caller to role.
func (s *ApprovalService) RequestRoleUpdate(ctx context.Context, caller string, role domain.Role, reason string) (a *domain.Approval, err error) {
	ctx, span := tracing.StartSpan(ctx, "approvals.request_role")
	defer func() { tracing.EndSpan(span, err) }()

	if !role.Valid() {
		return nil, domain.Invalid("role", "must be one of user, manager, admin")
	}
	if err := checkText("reason", reason, false); err != nil {
		return nil, err
	}
	requester, err := authorize(ctx, s.ledger.Users(), caller, domain.RoleUser)
	if err != nil {
		logRejected(s.logger, "request_role_update", err)
		return nil, err
	}
	if requester.Role == role {
		return nil, domain.Invalid("role", "is already held by the caller")
	}

	requested := role
	a = &domain.Approval{
		TransactionID: requester.ID,
		Requester:     requester.Identity,
		Kind:          domain.KindRoleUpdate,
		Status:        domain.ApprovalPending,
		Reason:        reason,
		RequestedRole: &requested,
		CreatedAt:     s.now(),
	}
	if err := s.ledger.Approvals().Create(ctx, a); err != nil {
		logRejected(s.logger, "request_role_update", err)
		return nil, err
	}

	s.logger.Info().Int64("approval_id", a.ID).Str("identity", requester.Identity).Str("role", role.String()).Msg("role update requested")
	return a, nil
}

// RequestRegistration records an inactive user for caller and opens the
// approval that activates it.
func (s *ApprovalService) RequestRegistration(ctx context.Context, caller string, in ports.RegistrationRequestInput) (a *domain.Approval, err error) {
	ctx, span := tracing.StartSpan(ctx, "approvals.request_registration")
	defer func() { tracing.EndSpan(span, err) }()

	identity, err := callerIdentity(caller)
	if err != nil {
		return nil, err
	}
	if err := checkDisplayName(in.DisplayName); err != nil {
		return nil, err
	}
	if err := checkContact(in.Contact); err != nil {
		return nil, err
	}
	if err := checkText("reason", in.Reason, false); err != nil {
		return nil, err
	}

	now := s.now()
	err = s.ledger.Atomically(ctx, func(ctx context.Context, l ports.Ledger) error {
		// A rejected registration leaves the user inactive; asking again opens a
		// new approval for the same record.
		u, err := l.Users().FindByIdentity(ctx, identity)
		switch {
		case err == nil && u.IsActive:
			return domain.ErrUserExists
		case errors.Is(err, domain.ErrUserNotFound):
			u = &domain.User{
				Identity:    identity,
				DisplayName: strings.TrimSpace(in.DisplayName),
				Contact:     in.Contact,
				Role:        domain.RoleUser,
				CreatedAt:   now,
			}
			if err := l.Users().Create(ctx, u); err != nil {
				return err
			}
		case err != nil:
			return err
		}
		a = &domain.Approval{
			TransactionID: u.ID,
			Requester:     identity,
			Kind:          domain.KindUserRegistration,
			Status:        domain.ApprovalPending,
			Reason:        in.Reason,
			CreatedAt:     now,
		}
		return l.Approvals().Create(ctx, a)
	})
	if err != nil {
		logRejected(s.logger, "request_registration", err)
		return nil, err
	}

	s.logger.Info().Int64("approval_id", a.ID).Str("identity", identity).Msg("registration requested")
	return a, nil
}

// ProcessApproval decides a Pending approval exactly once and cascades the
// outcome into its target. If any step fails nothing is written and the
// approval stays Pending. A caller that loses a race gets a state conflict;
// nothing here retries.
func (s *ApprovalService) ProcessApproval(ctx context.Context, caller string, in ports.ProcessApprovalInput) (res *ports.DecisionResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "approvals.process", attribute.Int64("approval_id", in.ApprovalID))
	defer func() { tracing.EndSpan(span, err) }()

	if in.Reason == nil {
		return nil, domain.Invalid("reason", "is required")
	}
	if err := checkText("reason", *in.Reason, s.policy.RequireDecisionReason); err != nil {
		return nil, err
	}

	decider, err := authorize(ctx, s.ledger.Users(), caller, domain.RoleManager)
	if err != nil {
		logRejected(s.logger, "process_approval", err)
		return nil, err
	}

	// Operations run detached from the caller, so the wait must be bounded here.
	lockCtx, cancel := context.WithTimeout(ctx, decisionLockWait)
	release, err := s.locker.Acquire(lockCtx, fmt.Sprintf("approval:%d", in.ApprovalID))
	cancel()
	if err != nil {
		return nil, err
	}
	defer release()

	decision := domain.Decision{
		Status:    domain.DecisionStatus(in.Approved),
		Approver:  decider.Identity,
		Reason:    *in.Reason,
		DecidedAt: s.now(),
	}

	err = s.ledger.Atomically(ctx, func(ctx context.Context, l ports.Ledger) error {
		a, err := l.Approvals().FindByID(ctx, in.ApprovalID)
		if err != nil {
			return err
		}
		if !decider.Can(a.Kind.DeciderRole()) {
			return domain.ErrForbidden
		}
		if a.Status != domain.ApprovalPending {
			return domain.ErrApprovalDecided
		}
		if !s.policy.AllowSelfApproval && domain.SameIdentity(a.Requester, decider.Identity) {
			return domain.ErrSelfApproval
		}
		if err := l.Approvals().Decide(ctx, a.ID, decision); err != nil {
			return err
		}

		res = &ports.DecisionResult{}
		switch a.Kind {
		case domain.KindTransaction:
			res.Transaction, err = s.cascadeTransaction(ctx, l, a.TransactionID, in.Approved)
		case domain.KindRoleUpdate:
			res.User, err = s.cascadeRoleUpdate(ctx, l, a, in.Approved)
		case domain.KindUserRegistration:
			res.User, err = s.cascadeRegistration(ctx, l, a.TransactionID, in.Approved)
		default:
			err = fmt.Errorf("approval %d has unknown kind %q: %w", a.ID, a.Kind, domain.ErrInvalidTransition)
		}
		if err != nil {
			return err
		}

		res.Approval, err = l.Approvals().FindByID(ctx, a.ID)
		return err
	})
	if err != nil {
		if isConflict(err) {
			s.logger.Warn().Err(err).Int64("approval_id", in.ApprovalID).Str("identity", decider.Identity).Msg("decision lost")
		} else {
			logRejected(s.logger, "process_approval", err)
		}
		return nil, err
	}

	s.logger.Info().
		Int64("approval_id", in.ApprovalID).
		Str("kind", string(res.Approval.Kind)).
		Str("status", string(res.Approval.Status)).
		Str("identity", decider.Identity).
		Msg("approval decided")
	return res, nil
}

func (s *ApprovalService) cascadeTransaction(ctx context.Context, l ports.Ledger, id int64, approved bool) (*domain.Transaction, error) {
	txs := l.Transactions()
	if !approved {
		if err := txs.UpdateStatus(ctx, id, domain.TxPending, domain.TxRejected); err != nil {
			return nil, err
		}
		return txs.FindByID(ctx, id)
	}
	if err := txs.UpdateStatus(ctx, id, domain.TxPending, domain.TxActive); err != nil {
		return nil, err
	}
	if s.policy.Settlement == domain.SettlementAutoComplete {
		if err := txs.UpdateStatus(ctx, id, domain.TxActive, domain.TxCompleted); err != nil {
			return nil, err
		}
	}
	return txs.FindByID(ctx, id)
}

func (s *ApprovalService) cascadeRoleUpdate(ctx context.Context, l ports.Ledger, a *domain.Approval, approved bool) (*domain.User, error) {
	u, err := l.Users().FindByID(ctx, a.TransactionID)
	if err != nil {
		return nil, err
	}
	if !approved || a.RequestedRole == nil || u.Role == *a.RequestedRole {
		return u, nil
	}
	if err := l.Users().UpdateRole(ctx, u.Identity, u.Role, *a.RequestedRole); err != nil {
		return nil, err
	}
	u.Role = *a.RequestedRole
	return u, nil
}

func (s *ApprovalService) cascadeRegistration(ctx context.Context, l ports.Ledger, userID int64, approved bool) (*domain.User, error) {
	u, err := l.Users().FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !approved {
		return u, nil
	}
	if err := l.Users().SetActive(ctx, u.Identity, false, true); err != nil {
		return nil, err
	}
	u.IsActive = true
	return u, nil
}

func (s *ApprovalService) Get(ctx context.Context, id int64) (*domain.Approval, error) {
	return s.ledger.Approvals().FindByID(ctx, id)
}

// ListPending returns open approvals of every kind, oldest first.
func (s *ApprovalService) ListPending(ctx context.Context) ([]*domain.Approval, error) {
	return s.ledger.Approvals().ListByStatus(ctx, domain.ApprovalPending)
}

// ListHistory returns decided approvals, most recently decided first.
func (s *ApprovalService) ListHistory(ctx context.Context) ([]*domain.Approval, error) {
	out, err := s.ledger.Approvals().ListByStatus(ctx, domain.ApprovalApproved, domain.ApprovalRejected)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := decidedAt(out[i]), decidedAt(out[j])
		if !di.Equal(dj) {
			return di.After(dj)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func decidedAt(a *domain.Approval) time.Time {
	if a.DecidedAt != nil {
		return *a.DecidedAt
	}
	return a.CreatedAt
}

var _ ports.ApprovalService = (*ApprovalService)(nil)
