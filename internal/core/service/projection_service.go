package service

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/99minutos/approval-system/internal/core/domain"
	"github.com/99minutos/approval-system/internal/core/ports"
)

// etherDecimals is the exponent between the smallest unit and one ether.
const etherDecimals = 18

// ProjectionService computes dashboard views by scanning the ledger. Results
// may lag behind concurrent writes.
type ProjectionService struct {
	ledger ports.Ledger
}

func NewProjectionService(ledger ports.Ledger) *ProjectionService {
	return &ProjectionService{ledger: ledger}
}

// Metrics counts transactions by status. Volume sums every transaction that
// was not rejected.
func (s *ProjectionService) Metrics(ctx context.Context) (*ports.Metrics, error) {
	txs, err := s.ledger.Transactions().List(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.ledger.Approvals().ListByStatus(ctx, domain.ApprovalPending)
	if err != nil {
		return nil, err
	}
	users, err := s.ledger.Users().List(ctx)
	if err != nil {
		return nil, err
	}

	m := &ports.Metrics{
		TotalTransactions: len(txs),
		ByStatus: map[domain.TxStatus]int{
			domain.TxPending:   0,
			domain.TxActive:    0,
			domain.TxCompleted: 0,
			domain.TxRejected:  0,
		},
		PendingApprovals: len(pending),
		TotalUsers:       len(users),
	}
	var volume domain.Amount
	for _, t := range txs {
		m.ByStatus[t.Status]++
		if t.Status != domain.TxRejected {
			volume = volume.Add(t.Amount)
		}
	}
	m.ActiveDeals = m.ByStatus[domain.TxActive]
	m.TotalVolume = volume
	m.TotalVolumeEther = FormatEther(volume)
	return m, nil
}

func (s *ProjectionService) UserStats(ctx context.Context) (*ports.UserStats, error) {
	users, err := s.ledger.Users().List(ctx)
	if err != nil {
		return nil, err
	}
	st := &ports.UserStats{Total: len(users)}
	for _, u := range users {
		if u.IsActive {
			st.Active++
		}
		switch u.Role {
		case domain.RoleAdmin:
			st.Admins++
		case domain.RoleManager:
			st.Managers++
		default:
			st.Users++
		}
	}
	return st, nil
}

// RecentTransactions returns at most limit transactions, newest first.
func (s *ProjectionService) RecentTransactions(ctx context.Context, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		return nil, domain.Invalid("limit", "must be positive")
	}
	txs, err := s.ledger.Transactions().List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
			return txs[i].CreatedAt.After(txs[j].CreatedAt)
		}
		return txs[i].ID > txs[j].ID
	})
	if len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

// FormatEther renders a smallest-unit amount in ether with trailing zeros
// trimmed, e.g. 1500000000000000000 -> "1.5".
func FormatEther(a domain.Amount) string {
	return decimal.NewFromBigInt(a.BigInt(), -etherDecimals).String()
}

var _ ports.ProjectionService = (*ProjectionService)(nil)
