package ports

import (
	"context"

	"github.com/99minutos/approval-system/internal/core/domain"
)

// Metrics is the aggregate dashboard view. Values may be slightly stale.
type Metrics struct {
	TotalTransactions int
	ByStatus          map[domain.TxStatus]int
	PendingApprovals  int
	TotalUsers        int
	ActiveDeals       int
	TotalVolume       domain.Amount
	TotalVolumeEther  string
}

// UserStats summarizes the registry.
type UserStats struct {
	Total    int
	Active   int
	Admins   int
	Managers int
	Users    int
}

// ProjectionService computes read-only views by scanning the ledger.
type ProjectionService interface {
	Metrics(ctx context.Context) (*Metrics, error)
	UserStats(ctx context.Context) (*UserStats, error)
	RecentTransactions(ctx context.Context, limit int) ([]*domain.Transaction, error)
}
