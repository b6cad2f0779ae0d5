package domain

import "time"

// TxStatus represents the lifecycle state of a transaction.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxActive    TxStatus = "active"
	TxCompleted TxStatus = "completed"
	TxRejected  TxStatus = "rejected"
)

// MaxTextLength bounds descriptions and decision reasons.
const MaxTextLength = 500

// txTransitions defines the allowed state machine transitions. Status never
// moves backward and terminal states have no exits.
var txTransitions = map[TxStatus][]TxStatus{
	TxPending: {TxActive, TxRejected},
	TxActive:  {TxCompleted},
}

// CanTransitionTo reports whether a transition from current status to next is valid.
func (s TxStatus) CanTransitionTo(next TxStatus) bool {
	for _, allowed := range txTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s is Completed or Rejected.
func (s TxStatus) Terminal() bool {
	return s == TxCompleted || s == TxRejected
}

// Valid reports whether s is a known status.
func (s TxStatus) Valid() bool {
	switch s {
	case TxPending, TxActive, TxCompleted, TxRejected:
		return true
	}
	return false
}

// Transaction is a transfer request gated behind an approval.
// ID and Amount never change after creation.
type Transaction struct {
	ID          int64     `json:"id" bson:"_id"`
	From        string    `json:"from" bson:"from"`
	To          string    `json:"to" bson:"to"`
	Amount      Amount    `json:"amount" bson:"amount"`
	Description string    `json:"description" bson:"description"`
	Status      TxStatus  `json:"status" bson:"status"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	ApprovalID  *int64    `json:"approval_id,omitempty" bson:"approval_id,omitempty"`
}

// Involves reports whether identity is the sender or the recipient.
func (t *Transaction) Involves(identity string) bool {
	return SameIdentity(t.From, identity) || SameIdentity(t.To, identity)
}
