package memory

import (
	"context"
	"sort"

	"github.com/99minutos/approval-system/internal/core/domain"
)

// ── users ─────────────────────────────────────────────────────────────────────

type userRepo struct {
	a access
}

func (r *userRepo) Create(_ context.Context, u *domain.User) error {
	return r.a.write(func(s *state) error {
		key := identityKey(u.Identity)
		if _, exists := s.byIdentity[key]; exists {
			return domain.ErrUserExists
		}
		s.userSeq++
		u.ID = s.userSeq
		s.users[u.ID] = *u
		s.byIdentity[key] = u.ID
		return nil
	})
}

func (r *userRepo) FindByIdentity(_ context.Context, identity string) (*domain.User, error) {
	var out *domain.User
	err := r.a.read(func(s *state) error {
		id, ok := s.byIdentity[identityKey(identity)]
		if !ok {
			return domain.ErrUserNotFound
		}
		u := s.users[id]
		out = &u
		return nil
	})
	return out, err
}

func (r *userRepo) FindByID(_ context.Context, id int64) (*domain.User, error) {
	var out *domain.User
	err := r.a.read(func(s *state) error {
		u, ok := s.users[id]
		if !ok {
			return domain.ErrUserNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

func (r *userRepo) UpdateRole(_ context.Context, identity string, from, to domain.Role) error {
	return r.a.write(func(s *state) error {
		id, ok := s.byIdentity[identityKey(identity)]
		if !ok {
			return domain.ErrUserNotFound
		}
		u := s.users[id]
		if u.Role != from {
			return domain.ErrRoleChanged
		}
		u.Role = to
		s.users[id] = u
		return nil
	})
}

func (r *userRepo) SetActive(_ context.Context, identity string, from, to bool) error {
	return r.a.write(func(s *state) error {
		id, ok := s.byIdentity[identityKey(identity)]
		if !ok {
			return domain.ErrUserNotFound
		}
		u := s.users[id]
		if u.IsActive != from {
			return domain.ErrInvalidTransition
		}
		u.IsActive = to
		s.users[id] = u
		return nil
	})
}

func (r *userRepo) List(_ context.Context) ([]*domain.User, error) {
	var out []*domain.User
	err := r.a.read(func(s *state) error {
		out = make([]*domain.User, 0, len(s.users))
		for _, u := range s.users {
			u := u
			out = append(out, &u)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// ── transactions ──────────────────────────────────────────────────────────────

type txRepo struct {
	a access
}

func (r *txRepo) Create(_ context.Context, t *domain.Transaction) error {
	return r.a.write(func(s *state) error {
		s.txSeq++
		t.ID = s.txSeq
		s.txs[t.ID] = *t
		return nil
	})
}

func (r *txRepo) FindByID(_ context.Context, id int64) (*domain.Transaction, error) {
	var out *domain.Transaction
	err := r.a.read(func(s *state) error {
		t, ok := s.txs[id]
		if !ok {
			return domain.ErrTransactionNotFound
		}
		out = &t
		return nil
	})
	return out, err
}

func (r *txRepo) UpdateStatus(_ context.Context, id int64, from, to domain.TxStatus) error {
	return r.a.write(func(s *state) error {
		t, ok := s.txs[id]
		if !ok {
			return domain.ErrTransactionNotFound
		}
		if t.Status != from {
			return domain.ErrInvalidTransition
		}
		t.Status = to
		s.txs[id] = t
		return nil
	})
}

func (r *txRepo) AttachApproval(_ context.Context, id int64, status domain.TxStatus, approvalID int64) error {
	return r.a.write(func(s *state) error {
		t, ok := s.txs[id]
		if !ok {
			return domain.ErrTransactionNotFound
		}
		if t.Status != status {
			return domain.ErrInvalidTransition
		}
		linked := approvalID
		t.ApprovalID = &linked
		s.txs[id] = t
		return nil
	})
}

func (r *txRepo) ListByParty(_ context.Context, identity string) ([]*domain.Transaction, error) {
	return r.list(func(t *domain.Transaction) bool { return t.Involves(identity) })
}

func (r *txRepo) List(_ context.Context) ([]*domain.Transaction, error) {
	return r.list(func(*domain.Transaction) bool { return true })
}

func (r *txRepo) list(keep func(*domain.Transaction) bool) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	err := r.a.read(func(s *state) error {
		out = make([]*domain.Transaction, 0, len(s.txs))
		for _, t := range s.txs {
			t := t
			if keep(&t) {
				out = append(out, &t)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// ── approvals ─────────────────────────────────────────────────────────────────

type approvalRepo struct {
	a access
}

func (r *approvalRepo) Create(_ context.Context, a *domain.Approval) error {
	return r.a.write(func(s *state) error {
		if a.Status == domain.ApprovalPending {
			for _, existing := range s.approvals {
				if existing.Status == domain.ApprovalPending &&
					existing.Kind == a.Kind &&
					existing.TransactionID == a.TransactionID {
					return domain.ErrApprovalOpen
				}
			}
		}
		s.approvalSeq++
		a.ID = s.approvalSeq
		s.approvals[a.ID] = *a
		return nil
	})
}

func (r *approvalRepo) FindByID(_ context.Context, id int64) (*domain.Approval, error) {
	var out *domain.Approval
	err := r.a.read(func(s *state) error {
		a, ok := s.approvals[id]
		if !ok {
			return domain.ErrApprovalNotFound
		}
		out = &a
		return nil
	})
	return out, err
}

func (r *approvalRepo) FindOpen(_ context.Context, kind domain.ApprovalKind, targetID int64) (*domain.Approval, error) {
	var out *domain.Approval
	err := r.a.read(func(s *state) error {
		for _, a := range s.approvals {
			if a.Status == domain.ApprovalPending && a.Kind == kind && a.TransactionID == targetID {
				a := a
				out = &a
				return nil
			}
		}
		return domain.ErrApprovalNotFound
	})
	return out, err
}

func (r *approvalRepo) Decide(_ context.Context, id int64, d domain.Decision) error {
	return r.a.write(func(s *state) error {
		a, ok := s.approvals[id]
		if !ok {
			return domain.ErrApprovalNotFound
		}
		if a.Status != domain.ApprovalPending {
			return domain.ErrApprovalDecided
		}
		decidedAt := d.DecidedAt
		a.Status = d.Status
		a.Approver = d.Approver
		a.Reason = d.Reason
		a.DecidedAt = &decidedAt
		s.approvals[id] = a
		return nil
	})
}

func (r *approvalRepo) ListByStatus(_ context.Context, statuses ...domain.ApprovalStatus) ([]*domain.Approval, error) {
	want := make(map[domain.ApprovalStatus]struct{}, len(statuses))
	for _, st := range statuses {
		want[st] = struct{}{}
	}

	var out []*domain.Approval
	err := r.a.read(func(s *state) error {
		out = make([]*domain.Approval, 0)
		for _, a := range s.approvals {
			if _, ok := want[a.Status]; ok {
				a := a
				out = append(out, &a)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}
