// Package memory implements the ledger in process memory. It is the default
// backend for development and the reference the other backends are tested
// against.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/99minutos/approval-system/internal/core/domain"
	"github.com/99minutos/approval-system/internal/core/ports"
)

// Records are stored by value and pointer fields inside them are replaced,
// never written through, so cloning a state only copies the maps.
type state struct {
	users       map[int64]domain.User
	byIdentity  map[string]int64
	userSeq     int64
	txs         map[int64]domain.Transaction
	txSeq       int64
	approvals   map[int64]domain.Approval
	approvalSeq int64
}

func newState() *state {
	return &state{
		users:      make(map[int64]domain.User),
		byIdentity: make(map[string]int64),
		txs:        make(map[int64]domain.Transaction),
		approvals:  make(map[int64]domain.Approval),
	}
}

func (s *state) clone() *state {
	c := &state{
		users:       make(map[int64]domain.User, len(s.users)),
		byIdentity:  make(map[string]int64, len(s.byIdentity)),
		userSeq:     s.userSeq,
		txs:         make(map[int64]domain.Transaction, len(s.txs)),
		txSeq:       s.txSeq,
		approvals:   make(map[int64]domain.Approval, len(s.approvals)),
		approvalSeq: s.approvalSeq,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.byIdentity {
		c.byIdentity[k] = v
	}
	for k, v := range s.txs {
		c.txs[k] = v
	}
	for k, v := range s.approvals {
		c.approvals[k] = v
	}
	return c
}

func identityKey(identity string) string {
	return strings.ToLower(identity)
}

// access is how repositories reach the state: the root ledger locks, a unit
// of work already holds the lock.
type access interface {
	read(fn func(*state) error) error
	write(fn func(*state) error) error
}

// Ledger implements ports.Ledger.
type Ledger struct {
	mu sync.RWMutex
	st *state
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{st: newState()}
}

func (l *Ledger) read(fn func(*state) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fn(l.st)
}

func (l *Ledger) write(fn func(*state) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.st)
}

func (l *Ledger) Users() ports.UserRepository               { return &userRepo{a: l} }
func (l *Ledger) Transactions() ports.TransactionRepository { return &txRepo{a: l} }
func (l *Ledger) Approvals() ports.ApprovalRepository       { return &approvalRepo{a: l} }

func (l *Ledger) Ping(context.Context) error { return nil }

// Atomically runs fn against a private copy of the state under the write lock
// and publishes the copy only when fn succeeds.
func (l *Ledger) Atomically(ctx context.Context, fn func(ctx context.Context, tx ports.Ledger) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	work := l.st.clone()
	if err := fn(ctx, &unit{st: work}); err != nil {
		return err
	}
	l.st = work
	return nil
}

// unit is the Ledger view handed to Atomically callbacks.
type unit struct {
	st *state
}

func (u *unit) read(fn func(*state) error) error  { return fn(u.st) }
func (u *unit) write(fn func(*state) error) error { return fn(u.st) }

func (u *unit) Users() ports.UserRepository               { return &userRepo{a: u} }
func (u *unit) Transactions() ports.TransactionRepository { return &txRepo{a: u} }
func (u *unit) Approvals() ports.ApprovalRepository       { return &approvalRepo{a: u} }

func (u *unit) Ping(context.Context) error { return nil }

// Atomically inside a unit joins the enclosing unit.
func (u *unit) Atomically(ctx context.Context, fn func(ctx context.Context, tx ports.Ledger) error) error {
	return fn(ctx, u)
}

var (
	_ ports.Ledger = (*Ledger)(nil)
	_ ports.Ledger = (*unit)(nil)
)
