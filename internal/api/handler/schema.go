package handler

import (
	"time"

	"github.com/99minutos/approval-system/internal/core/domain"
)

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// --- Registry ---

type registerUserRequest struct {
	Identity    string `json:"identity"     validate:"required,eth_addr"`
	DisplayName string `json:"display_name" validate:"required"`
	Contact     string `json:"contact"      validate:"required"`
	Role        string `json:"role"         validate:"required,oneof=user manager admin"`
}

type updateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user manager admin"`
}

type registrationRequest struct {
	DisplayName string `json:"display_name" validate:"required"`
	Contact     string `json:"contact"      validate:"required"`
	Reason      string `json:"reason"`
}

type roleChangeRequest struct {
	Role   string `json:"role"   validate:"required,oneof=user manager admin"`
	Reason string `json:"reason"`
}

type userListResponse struct {
	Items []*domain.User `json:"items"`
	Count int            `json:"count"`
}

// --- Transactions ---

type createTransactionRequest struct {
	To          string `json:"to"          validate:"required,eth_addr"`
	Amount      string `json:"amount"      validate:"required"`
	Description string `json:"description" validate:"required,max=500"`
}

type transactionLinks struct {
	Self     string `json:"self"`
	Approval string `json:"approval,omitempty"`
}

type transactionResponse struct {
	*domain.Transaction
	Links transactionLinks `json:"_links"`
}

type createTransactionResponse struct {
	transactionResponse
	AlreadyExisted bool `json:"already_existed"`
}

type transactionListResponse struct {
	Items []transactionResponse `json:"items"`
	Count int                   `json:"count"`
}

type requestApprovalRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// --- Approvals ---

type decisionRequest struct {
	Approved *bool `json:"approved" validate:"required"`
	// Reason must be present; an empty string records "no reason given".
	Reason *string `json:"reason"`
}

type decisionResponse struct {
	Approval    *domain.Approval    `json:"approval"`
	Transaction *domain.Transaction `json:"transaction,omitempty"`
	User        *domain.User        `json:"user,omitempty"`
}

type approvalListResponse struct {
	Items []*domain.Approval `json:"items"`
	Count int                `json:"count"`
}

// --- Operations ---

type operationResponse struct {
	ID          string     `json:"id"`
	Operation   string     `json:"operation"`
	Phase       string     `json:"phase"`
	Result      any        `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	Kind        string     `json:"kind,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	SettledAt   *time.Time `json:"settled_at,omitempty"`
	Links       struct {
		Self string `json:"self"`
	} `json:"_links"`
}

// --- Projections ---

type metricsResponse struct {
	TotalTransactions int                     `json:"total_transactions"`
	ByStatus          map[domain.TxStatus]int `json:"by_status"`
	PendingApprovals  int                     `json:"pending_approvals"`
	TotalUsers        int                     `json:"total_users"`
	ActiveDeals       int                     `json:"active_deals"`
	TotalVolume       domain.Amount           `json:"total_volume"`
	TotalVolumeEther  string                  `json:"total_volume_ether"`
}

type userStatsResponse struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Admins   int `json:"admins"`
	Managers int `json:"managers"`
	Users    int `json:"users"`
}
