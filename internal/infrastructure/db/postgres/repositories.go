package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/99minutos/approval-system/internal/core/domain"
)

// ── users ─────────────────────────────────────────────────────────────────────

const userColumns = `id, identity, display_name, contact, role, is_active, created_at`

type userRepo struct {
	q querier
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u    domain.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Identity, &u.DisplayName, &u.Contact, &role, &u.IsActive, &u.CreatedAt); err != nil {
		return nil, err
	}
	r, err := domain.ParseRole(role)
	if err != nil {
		return nil, err
	}
	u.Role = r
	return &u, nil
}

func (r *userRepo) Create(ctx context.Context, u *domain.User) error {
	err := r.q.QueryRow(ctx,
		`INSERT INTO users (identity, display_name, contact, role, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		u.Identity, u.DisplayName, u.Contact, u.Role.String(), u.IsActive, u.CreatedAt,
	).Scan(&u.ID)
	return translate("insert user", err, domain.ErrUserExists, nil)
}

func (r *userRepo) FindByIdentity(ctx context.Context, identity string) (*domain.User, error) {
	u, err := scanUser(r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(identity) = lower($1)`, identity))
	return u, notFound(err, domain.ErrUserNotFound, "find user")
}

func (r *userRepo) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	u, err := scanUser(r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	return u, notFound(err, domain.ErrUserNotFound, "find user")
}

func (r *userRepo) UpdateRole(ctx context.Context, identity string, from, to domain.Role) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE users SET role = $3 WHERE lower(identity) = lower($1) AND role = $2`,
		identity, from.String(), to.String())
	if err != nil {
		return translate("update role", err, nil, domain.ErrRoleChanged)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.FindByIdentity(ctx, identity); err != nil {
		return err
	}
	return domain.ErrRoleChanged
}

func (r *userRepo) SetActive(ctx context.Context, identity string, from, to bool) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE users SET is_active = $3 WHERE lower(identity) = lower($1) AND is_active = $2`,
		identity, from, to)
	if err != nil {
		return translate("set active", err, nil, domain.ErrInvalidTransition)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.FindByIdentity(ctx, identity); err != nil {
		return err
	}
	return domain.ErrInvalidTransition
}

func (r *userRepo) List(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.q.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, translate("list users", err, nil, nil)
	}
	defer rows.Close()

	var out []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, translate("list users", err, nil, nil)
		}
		out = append(out, u)
	}
	return out, translate("list users", rows.Err(), nil, nil)
}

// ── transactions ──────────────────────────────────────────────────────────────

const txColumns = `id, from_id, to_id, amount::text, description, status, created_at, approval_id`

type txRepo struct {
	q querier
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		t      domain.Transaction
		amount string
		status string
	)
	if err := row.Scan(&t.ID, &t.From, &t.To, &amount, &t.Description, &status, &t.CreatedAt, &t.ApprovalID); err != nil {
		return nil, err
	}
	a, err := domain.ParseAmount(amount)
	if err != nil {
		return nil, err
	}
	t.Amount = a
	t.Status = domain.TxStatus(status)
	return &t, nil
}

func (r *txRepo) Create(ctx context.Context, t *domain.Transaction) error {
	err := r.q.QueryRow(ctx,
		`INSERT INTO transactions (from_id, to_id, amount, description, status, created_at)
		 VALUES ($1, $2, $3::numeric, $4, $5, $6) RETURNING id`,
		t.From, t.To, t.Amount.String(), t.Description, string(t.Status), t.CreatedAt,
	).Scan(&t.ID)
	return translate("insert transaction", err, nil, nil)
}

func (r *txRepo) FindByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	t, err := scanTransaction(r.q.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = $1`, id))
	return t, notFound(err, domain.ErrTransactionNotFound, "find transaction")
}

func (r *txRepo) UpdateStatus(ctx context.Context, id int64, from, to domain.TxStatus) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE transactions SET status = $3 WHERE id = $1 AND status = $2`,
		id, string(from), string(to))
	return r.swapped(ctx, id, tag.RowsAffected(), err)
}

func (r *txRepo) AttachApproval(ctx context.Context, id int64, status domain.TxStatus, approvalID int64) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE transactions SET approval_id = $3 WHERE id = $1 AND status = $2`,
		id, string(status), approvalID)
	return r.swapped(ctx, id, tag.RowsAffected(), err)
}

func (r *txRepo) swapped(ctx context.Context, id int64, affected int64, err error) error {
	if err != nil {
		return translate("update transaction", err, nil, domain.ErrInvalidTransition)
	}
	if affected == 1 {
		return nil
	}
	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return domain.ErrInvalidTransition
}

func (r *txRepo) ListByParty(ctx context.Context, identity string) ([]*domain.Transaction, error) {
	return r.find(ctx,
		`SELECT `+txColumns+` FROM transactions
		 WHERE lower(from_id) = lower($1) OR lower(to_id) = lower($1) ORDER BY id`, identity)
}

func (r *txRepo) List(ctx context.Context) ([]*domain.Transaction, error) {
	return r.find(ctx, `SELECT `+txColumns+` FROM transactions ORDER BY id`)
}

func (r *txRepo) find(ctx context.Context, sql string, args ...any) ([]*domain.Transaction, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, translate("list transactions", err, nil, nil)
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, translate("list transactions", err, nil, nil)
		}
		out = append(out, t)
	}
	return out, translate("list transactions", rows.Err(), nil, nil)
}

// ── approvals ─────────────────────────────────────────────────────────────────

const approvalColumns = `id, transaction_id, requester, approver, kind, status, reason, requested_role, created_at, decided_at`

type approvalRepo struct {
	q querier
}

func scanApproval(row pgx.Row) (*domain.Approval, error) {
	var (
		a         domain.Approval
		kind      string
		status    string
		requested *string
		decidedAt *time.Time
	)
	if err := row.Scan(&a.ID, &a.TransactionID, &a.Requester, &a.Approver, &kind, &status, &a.Reason, &requested, &a.CreatedAt, &decidedAt); err != nil {
		return nil, err
	}
	a.Kind = domain.ApprovalKind(kind)
	a.Status = domain.ApprovalStatus(status)
	a.DecidedAt = decidedAt
	if requested != nil {
		role, err := domain.ParseRole(*requested)
		if err != nil {
			return nil, err
		}
		a.RequestedRole = &role
	}
	return &a, nil
}

func (r *approvalRepo) Create(ctx context.Context, a *domain.Approval) error {
	var requested *string
	if a.RequestedRole != nil {
		s := a.RequestedRole.String()
		requested = &s
	}
	err := r.q.QueryRow(ctx,
		`INSERT INTO approvals (transaction_id, requester, kind, status, reason, requested_role, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		a.TransactionID, a.Requester, string(a.Kind), string(a.Status), a.Reason, requested, a.CreatedAt,
	).Scan(&a.ID)
	return translate("insert approval", err, domain.ErrApprovalOpen, domain.ErrApprovalOpen)
}

func (r *approvalRepo) FindByID(ctx context.Context, id int64) (*domain.Approval, error) {
	a, err := scanApproval(r.q.QueryRow(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE id = $1`, id))
	return a, notFound(err, domain.ErrApprovalNotFound, "find approval")
}

func (r *approvalRepo) FindOpen(ctx context.Context, kind domain.ApprovalKind, targetID int64) (*domain.Approval, error) {
	a, err := scanApproval(r.q.QueryRow(ctx,
		`SELECT `+approvalColumns+` FROM approvals WHERE kind = $1 AND transaction_id = $2 AND status = 'pending'`,
		string(kind), targetID))
	return a, notFound(err, domain.ErrApprovalNotFound, "find open approval")
}

func (r *approvalRepo) Decide(ctx context.Context, id int64, d domain.Decision) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE approvals SET status = $2, approver = $3, reason = $4, decided_at = $5
		 WHERE id = $1 AND status = 'pending'`,
		id, string(d.Status), d.Approver, d.Reason, d.DecidedAt)
	if err != nil {
		return translate("decide approval", err, nil, domain.ErrApprovalDecided)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return domain.ErrApprovalDecided
}

func (r *approvalRepo) ListByStatus(ctx context.Context, statuses ...domain.ApprovalStatus) ([]*domain.Approval, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	rows, err := r.q.Query(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE status = ANY($1) ORDER BY id`, names)
	if err != nil {
		return nil, translate("list approvals", err, nil, nil)
	}
	defer rows.Close()

	var out []*domain.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, translate("list approvals", err, nil, nil)
		}
		out = append(out, a)
	}
	return out, translate("list approvals", rows.Err(), nil, nil)
}

func notFound(err, sentinel error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return translate(op, err, nil, nil)
}
