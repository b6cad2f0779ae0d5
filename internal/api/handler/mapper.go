package handler

import (
	"strconv"

	"github.com/99minutos/approval-system/internal/core/domain"
	"github.com/99minutos/approval-system/internal/core/ports"
	"github.com/99minutos/approval-system/internal/infrastructure/queue"
)

// --- Request → Service input ---

func toCreateInput(req createTransactionRequest, idempotencyKey string) (ports.CreateTransactionInput, error) {
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		return ports.CreateTransactionInput{}, err
	}
	return ports.CreateTransactionInput{
		To:             req.To,
		Amount:         amount,
		Description:    req.Description,
		IdempotencyKey: idempotencyKey,
	}, nil
}

func toRegisterInput(req registerUserRequest) (ports.RegisterUserInput, error) {
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return ports.RegisterUserInput{}, err
	}
	return ports.RegisterUserInput{
		Identity:    req.Identity,
		DisplayName: req.DisplayName,
		Contact:     req.Contact,
		Role:        role,
	}, nil
}

// --- Service result → HTTP response ---

func toTransactionResponse(tx *domain.Transaction) transactionResponse {
	resp := transactionResponse{
		Transaction: tx,
		Links:       transactionLinks{Self: "/v1/transactions/" + strconv.FormatInt(tx.ID, 10)},
	}
	if tx.ApprovalID != nil {
		resp.Links.Approval = "/v1/approvals/" + strconv.FormatInt(*tx.ApprovalID, 10)
	}
	return resp
}

func toTransactionList(txs []*domain.Transaction) transactionListResponse {
	items := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		items = append(items, toTransactionResponse(tx))
	}
	return transactionListResponse{Items: items, Count: len(items)}
}

func toApprovalList(as []*domain.Approval) approvalListResponse {
	if as == nil {
		as = []*domain.Approval{}
	}
	return approvalListResponse{Items: as, Count: len(as)}
}

func toUserList(us []*domain.User) userListResponse {
	if us == nil {
		us = []*domain.User{}
	}
	return userListResponse{Items: us, Count: len(us)}
}

func toDecisionResponse(r *ports.DecisionResult) decisionResponse {
	return decisionResponse{Approval: r.Approval, Transaction: r.Transaction, User: r.User}
}

func toOperationResponse(v queue.ReceiptView) operationResponse {
	resp := operationResponse{
		ID:          v.ID,
		Operation:   v.Operation,
		Phase:       string(v.Phase),
		SubmittedAt: v.SubmittedAt,
		SettledAt:   v.SettledAt,
	}
	resp.Links.Self = operationPath(v.ID)
	if v.Err != nil {
		resp.Kind = string(domain.KindOf(v.Err))
		resp.Error = v.Err.Error()
		if domain.KindOf(v.Err) == domain.KindUnknown {
			resp.Error = "internal server error"
		}
	} else if v.Phase == queue.PhaseSettled {
		resp.Result = v.Result
	}
	return resp
}

func toMetricsResponse(m *ports.Metrics) metricsResponse {
	return metricsResponse{
		TotalTransactions: m.TotalTransactions,
		ByStatus:          m.ByStatus,
		PendingApprovals:  m.PendingApprovals,
		TotalUsers:        m.TotalUsers,
		ActiveDeals:       m.ActiveDeals,
		TotalVolume:       m.TotalVolume,
		TotalVolumeEther:  m.TotalVolumeEther,
	}
}

func toUserStatsResponse(s *ports.UserStats) userStatsResponse {
	return userStatsResponse{
		Total:    s.Total,
		Active:   s.Active,
		Admins:   s.Admins,
		Managers: s.Managers,
		Users:    s.Users,
	}
}
