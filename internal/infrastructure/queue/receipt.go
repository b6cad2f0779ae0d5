package queue

import (
	"context"
	"sync"
	"time"
)

// Phase is where an operation stands in its life.
type Phase string

const (
	PhaseSubmitted           Phase = "submitted"
	PhasePendingConfirmation Phase = "pending_confirmation"
	PhaseSettled             Phase = "settled"
	PhaseFailed              Phase = "failed"
)

// Terminal reports whether p is Settled or Failed.
func (p Phase) Terminal() bool {
	return p == PhaseSettled || p == PhaseFailed
}

// Receipt tracks one submitted operation. It is safe for concurrent use.
type Receipt struct {
	id        string
	operation string
	owner     string

	mu          sync.Mutex
	phase       Phase
	result      any
	err         error
	submittedAt time.Time
	settled     time.Time
	done        chan struct{}
}

// ReceiptView is a point-in-time copy of a receipt.
type ReceiptView struct {
	ID          string
	Operation   string
	Owner       string
	Phase       Phase
	Result      any
	Err         error
	SubmittedAt time.Time
	SettledAt   *time.Time
}

func newReceipt(id, operation, owner string) *Receipt {
	return &Receipt{
		id:          id,
		operation:   operation,
		owner:       owner,
		phase:       PhaseSubmitted,
		submittedAt: time.Now().UTC(),
		done:        make(chan struct{}),
	}
}

func (r *Receipt) ID() string { return r.id }

// Owner is the identity that submitted the operation.
func (r *Receipt) Owner() string { return r.owner }

// Done is closed once the receipt reaches a terminal phase.
func (r *Receipt) Done() <-chan struct{} { return r.done }

// Wait blocks until the operation settles or ctx ends. An operation already
// accepted keeps running after Wait gives up.
func (r *Receipt) Wait(ctx context.Context) (any, error) {
	select {
	case <-r.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Receipt) View() ReceiptView {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := ReceiptView{
		ID:          r.id,
		Operation:   r.operation,
		Owner:       r.owner,
		Phase:       r.phase,
		Result:      r.result,
		Err:         r.err,
		SubmittedAt: r.submittedAt,
	}
	if r.phase.Terminal() {
		settled := r.settled
		v.SettledAt = &settled
	}
	return v
}

func (r *Receipt) accept() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phase = PhasePendingConfirmation
}

func (r *Receipt) finish(result any, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase.Terminal() {
		return
	}
	r.result, r.err = result, err
	r.phase = PhaseSettled
	if err != nil {
		r.phase = PhaseFailed
	}
	r.settled = time.Now().UTC()
	close(r.done)
}

func (r *Receipt) settledAt() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settled, r.phase.Terminal()
}
