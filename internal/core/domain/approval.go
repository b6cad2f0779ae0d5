package domain

import "time"

// ApprovalKind names the entity an approval gates.
type ApprovalKind string

const (
	KindTransaction      ApprovalKind = "transaction"
	KindUserRegistration ApprovalKind = "user_registration"
	KindRoleUpdate       ApprovalKind = "role_update"
)

// Valid reports whether k is a known kind.
func (k ApprovalKind) Valid() bool {
	switch k {
	case KindTransaction, KindUserRegistration, KindRoleUpdate:
		return true
	}
	return false
}

// DeciderRole is the minimum role allowed to decide approvals of kind k.
// Registry-affecting kinds need Admin because their cascades are Admin operations.
func (k ApprovalKind) DeciderRole() Role {
	if k == KindTransaction {
		return RoleManager
	}
	return RoleAdmin
}

// ApprovalStatus represents the lifecycle of an approval. Approved and
// Rejected are terminal.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Terminal reports whether s is Approved or Rejected.
func (s ApprovalStatus) Terminal() bool {
	return s == ApprovalApproved || s == ApprovalRejected
}

// Approval is one decision cycle over a target entity.
//
// TransactionID holds the target transaction id for KindTransaction and the
// target user id for KindUserRegistration and KindRoleUpdate. Approver is
// empty while the approval is pending and set exactly once with the decision.
type Approval struct {
	ID            int64          `json:"id" bson:"_id"`
	TransactionID int64          `json:"transaction_id" bson:"transaction_id"`
	Requester     string         `json:"requester" bson:"requester"`
	Approver      string         `json:"approver,omitempty" bson:"approver,omitempty"`
	Kind          ApprovalKind   `json:"kind" bson:"kind"`
	Status        ApprovalStatus `json:"status" bson:"status"`
	Reason        string         `json:"reason" bson:"reason"`
	RequestedRole *Role          `json:"requested_role,omitempty" bson:"requested_role,omitempty"`
	CreatedAt     time.Time      `json:"created_at" bson:"created_at"`
	DecidedAt     *time.Time     `json:"decided_at,omitempty" bson:"decided_at,omitempty"`
}

// Decision is the single transition an approval makes out of Pending.
type Decision struct {
	Status    ApprovalStatus
	Approver  string
	Reason    string
	DecidedAt time.Time
}

// DecisionStatus maps an approve/reject flag to a terminal status.
func DecisionStatus(approved bool) ApprovalStatus {
	if approved {
		return ApprovalApproved
	}
	return ApprovalRejected
}

// SettlementMode selects whether approval leaves a transaction Active awaiting
// an explicit completion or completes it in the same cascade.
type SettlementMode string

const (
	SettlementTwoPhase     SettlementMode = "two_phase"
	SettlementAutoComplete SettlementMode = "auto_complete"
)
