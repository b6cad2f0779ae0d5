package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/approval-system/internal/api/middleware"
	"github.com/99minutos/approval-system/internal/core/domain"
	"github.com/99minutos/approval-system/internal/core/ports"
	"github.com/99minutos/approval-system/internal/infrastructure/queue"
)

const (
	alice = "0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB"
	bob   = "0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb"
	carol = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
)

// --- stubs ---

type stubTransactionService struct {
	createFn   func(ctx context.Context, caller string, in ports.CreateTransactionInput) (*ports.CreateTransactionResult, error)
	completeFn func(ctx context.Context, caller string, id int64) (*domain.Transaction, error)
	getFn      func(ctx context.Context, id int64) (*domain.Transaction, error)
	listFn     func(ctx context.Context) ([]*domain.Transaction, error)
}

func (s *stubTransactionService) Create(ctx context.Context, caller string, in ports.CreateTransactionInput) (*ports.CreateTransactionResult, error) {
	return s.createFn(ctx, caller, in)
}

func (s *stubTransactionService) Complete(ctx context.Context, caller string, id int64) (*domain.Transaction, error) {
	return s.completeFn(ctx, caller, id)
}

func (s *stubTransactionService) Get(ctx context.Context, id int64) (*domain.Transaction, error) {
	return s.getFn(ctx, id)
}

func (s *stubTransactionService) ListByUser(ctx context.Context, identity string) ([]*domain.Transaction, error) {
	return s.listFn(ctx)
}

func (s *stubTransactionService) List(ctx context.Context) ([]*domain.Transaction, error) {
	return s.listFn(ctx)
}

type stubApprovalService struct {
	requestFn func(ctx context.Context, caller string, transactionID int64, reason string) (*domain.Approval, error)
	processFn func(ctx context.Context, caller string, in ports.ProcessApprovalInput) (*ports.DecisionResult, error)
	pendingFn func(ctx context.Context) ([]*domain.Approval, error)
}

func (s *stubApprovalService) RequestApproval(ctx context.Context, caller string, transactionID int64, reason string) (*domain.Approval, error) {
	return s.requestFn(ctx, caller, transactionID, reason)
}

func (s *stubApprovalService) RequestRoleUpdate(ctx context.Context, caller string, role domain.Role, reason string) (*domain.Approval, error) {
	return nil, errors.New("not implemented")
}

func (s *stubApprovalService) RequestRegistration(ctx context.Context, caller string, in ports.RegistrationRequestInput) (*domain.Approval, error) {
	return nil, errors.New("not implemented")
}

func (s *stubApprovalService) ProcessApproval(ctx context.Context, caller string, in ports.ProcessApprovalInput) (*ports.DecisionResult, error) {
	return s.processFn(ctx, caller, in)
}

func (s *stubApprovalService) Get(ctx context.Context, id int64) (*domain.Approval, error) {
	return nil, domain.ErrApprovalNotFound
}

func (s *stubApprovalService) ListPending(ctx context.Context) ([]*domain.Approval, error) {
	return s.pendingFn(ctx)
}

func (s *stubApprovalService) ListHistory(ctx context.Context) ([]*domain.Approval, error) {
	return nil, nil
}

type stubProjectionService struct {
	recentFn func(ctx context.Context, limit int) ([]*domain.Transaction, error)
}

func (s *stubProjectionService) Metrics(ctx context.Context) (*ports.Metrics, error) {
	return &ports.Metrics{
		TotalTransactions: 2,
		ByStatus:          map[domain.TxStatus]int{domain.TxPending: 1, domain.TxActive: 1},
		ActiveDeals:       1,
		TotalVolume:       domain.AmountFromUint64(1_500_000_000_000_000_000),
		TotalVolumeEther:  "1.5",
	}, nil
}

func (s *stubProjectionService) UserStats(ctx context.Context) (*ports.UserStats, error) {
	return &ports.UserStats{}, nil
}

func (s *stubProjectionService) RecentTransactions(ctx context.Context, limit int) ([]*domain.Transaction, error) {
	return s.recentFn(ctx, limit)
}

// --- helpers ---

func startDispatcher(t *testing.T) *queue.Dispatcher {
	t.Helper()
	d := queue.NewDispatcher(2, time.Minute, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	t.Cleanup(func() {
		cancel()
		waitCtx, done := context.WithTimeout(context.Background(), time.Second)
		defer done()
		_ = d.Wait(waitCtx)
	})
	return d
}

func newRequest(method, target, body, caller string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if caller != "" {
		c.Set(middleware.IdentityKey, caller)
	}
	return c, rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	return resp
}

func pendingTx(id int64, from string) *domain.Transaction {
	return &domain.Transaction{
		ID:          id,
		From:        from,
		To:          bob,
		Amount:      domain.AmountFromUint64(1_500_000_000_000_000_000),
		Description: "Invoice #42",
		Status:      domain.TxPending,
		CreatedAt:   time.Now().UTC(),
	}
}
