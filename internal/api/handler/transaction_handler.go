package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/approval-system/internal/api/metrics"
	"github.com/99minutos/approval-system/internal/core/domain"
	"github.com/99minutos/approval-system/internal/core/ports"
)

// TransactionHandler handles HTTP requests for the transaction ledger,
// including opening an approval over a transaction.
type TransactionHandler struct {
	transactions ports.TransactionService
	approvals    ports.ApprovalService
	dispatcher   Dispatcher
}

func NewTransactionHandler(transactions ports.TransactionService, approvals ports.ApprovalService, dispatcher Dispatcher) *TransactionHandler {
	return &TransactionHandler{transactions: transactions, approvals: approvals, dispatcher: dispatcher}
}

// Create handles POST /v1/transactions.
//
// @Summary      Create a pending transaction from the caller
// @Tags         transactions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        Idempotency-Key  header    string                    false  "Replays return the transaction created by the first request"
// @Param        Prefer           header    string                    false  "respond-async to get 202 and an operation receipt"
// @Param        body             body      createTransactionRequest  true   "Transfer details; amount is a base-10 integer string in smallest units"
// @Success      201              {object}  createTransactionResponse
// @Success      200              {object}  createTransactionResponse  "Idempotent replay"
// @Success      202              {object}  operationResponse
// @Failure      400              {object}  errorResponse
// @Failure      403              {object}  errorResponse
// @Failure      422              {object}  errorResponse
// @Failure      503              {object}  errorResponse
// @Router       /v1/transactions [post]
func (h *TransactionHandler) Create(c echo.Context) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}
	var req createTransactionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	in, err := toCreateInput(req, c.Request().Header.Get("Idempotency-Key"))
	if err != nil {
		return err
	}

	return dispatch(c, h.dispatcher, "create_transaction", identityKey(caller),
		func(ctx context.Context) (createTransactionResponse, error) {
			res, err := h.transactions.Create(ctx, caller, in)
			if err != nil {
				return createTransactionResponse{}, err
			}
			metrics.TransactionsCreatedTotal.WithLabelValues(strconv.FormatBool(res.AlreadyExisted)).Inc()
			return createTransactionResponse{
				transactionResponse: toTransactionResponse(res.Transaction),
				AlreadyExisted:      res.AlreadyExisted,
			}, nil
		},
		func(resp createTransactionResponse) error {
			if resp.AlreadyExisted {
				return c.JSON(http.StatusOK, resp)
			}
			return c.JSON(http.StatusCreated, resp)
		})
}

// RequestApproval handles POST /v1/transactions/:id/approvals.
//
// @Summary      Open an approval over a pending transaction
// @Description  Only the sender may ask, and only once while an approval is open.
// @Tags         transactions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id      path      int                     true   "Transaction id"
// @Param        Prefer  header    string                  false  "respond-async to get 202 and an operation receipt"
// @Param        body    body      requestApprovalRequest  false  "Reason for the request"
// @Success      201     {object}  domain.Approval
// @Success      202     {object}  operationResponse
// @Failure      403     {object}  errorResponse
// @Failure      404     {object}  errorResponse
// @Failure      409     {object}  errorResponse
// @Failure      422     {object}  errorResponse
// @Router       /v1/transactions/{id}/approvals [post]
func (h *TransactionHandler) RequestApproval(c echo.Context) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req requestApprovalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	return dispatch(c, h.dispatcher, "request_approval", transactionKey(id),
		func(ctx context.Context) (*domain.Approval, error) {
			a, err := h.approvals.RequestApproval(ctx, caller, id, req.Reason)
			if err != nil {
				return nil, err
			}
			metrics.ApprovalsRequestedTotal.WithLabelValues(string(a.Kind)).Inc()
			return a, nil
		},
		func(a *domain.Approval) error {
			return c.JSON(http.StatusCreated, a)
		})
}

// Complete handles POST /v1/transactions/:id/complete.
//
// @Summary      Settle an active transaction
// @Description  Callable by the sender or a manager once the linked approval is approved.
// @Tags         transactions
// @Produce      json
// @Security     BearerAuth
// @Param        id      path      int     true   "Transaction id"
// @Param        Prefer  header    string  false  "respond-async to get 202 and an operation receipt"
// @Success      200     {object}  transactionResponse
// @Success      202     {object}  operationResponse
// @Failure      403     {object}  errorResponse
// @Failure      404     {object}  errorResponse
// @Failure      409     {object}  errorResponse
// @Router       /v1/transactions/{id}/complete [post]
func (h *TransactionHandler) Complete(c echo.Context) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	return dispatch(c, h.dispatcher, "complete_transaction", transactionKey(id),
		func(ctx context.Context) (transactionResponse, error) {
			tx, err := h.transactions.Complete(ctx, caller, id)
			if err != nil {
				return transactionResponse{}, err
			}
			metrics.TransactionsCompletedTotal.Inc()
			return toTransactionResponse(tx), nil
		},
		func(resp transactionResponse) error {
			return c.JSON(http.StatusOK, resp)
		})
}

// Get handles GET /v1/transactions/:id.
//
// @Summary      Get a transaction by id
// @Tags         transactions
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Transaction id"
// @Success      200  {object}  transactionResponse
// @Failure      404  {object}  errorResponse
// @Failure      422  {object}  errorResponse
// @Router       /v1/transactions/{id} [get]
func (h *TransactionHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	tx, err := h.transactions.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toTransactionResponse(tx))
}

// List handles GET /v1/transactions.
//
// @Summary      List all transactions
// @Tags         transactions
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  transactionListResponse
// @Router       /v1/transactions [get]
func (h *TransactionHandler) List(c echo.Context) error {
	txs, err := h.transactions.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toTransactionList(txs))
}

// ListByUser handles GET /v1/users/:identity/transactions.
//
// @Summary      List transactions sent or received by a user, newest first
// @Tags         transactions
// @Produce      json
// @Security     BearerAuth
// @Param        identity  path      string  true  "User identity (0x address)"
// @Success      200       {object}  transactionListResponse
// @Failure      422       {object}  errorResponse
// @Router       /v1/users/{identity}/transactions [get]
func (h *TransactionHandler) ListByUser(c echo.Context) error {
	txs, err := h.transactions.ListByUser(c.Request().Context(), c.Param("identity"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toTransactionList(txs))
}
