package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/approval-system/internal/api/metrics"
	"github.com/99minutos/approval-system/internal/core/domain"
	"github.com/99minutos/approval-system/internal/core/ports"
)

// ApprovalHandler handles HTTP requests for approval cycles of every kind.
type ApprovalHandler struct {
	approvals  ports.ApprovalService
	dispatcher Dispatcher
}

func NewApprovalHandler(approvals ports.ApprovalService, dispatcher Dispatcher) *ApprovalHandler {
	return &ApprovalHandler{approvals: approvals, dispatcher: dispatcher}
}

// Decide handles POST /v1/approvals/:id/decision.
//
// @Summary      Approve or reject a pending approval
// @Description  Exactly one decision wins; later attempts fail with state_conflict.
// @Description  Transaction approvals need a manager, registry approvals an admin.
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id      path      int              true   "Approval id"
// @Param        Prefer  header    string           false  "respond-async to get 202 and an operation receipt"
// @Param        body    body      decisionRequest  true   "Decision"
// @Success      200     {object}  decisionResponse
// @Success      202     {object}  operationResponse
// @Failure      403     {object}  errorResponse
// @Failure      404     {object}  errorResponse
// @Failure      409     {object}  errorResponse
// @Failure      422     {object}  errorResponse
// @Failure      503     {object}  errorResponse
// @Router       /v1/approvals/{id}/decision [post]
func (h *ApprovalHandler) Decide(c echo.Context) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req decisionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	in := ports.ProcessApprovalInput{ApprovalID: id, Approved: *req.Approved, Reason: req.Reason}

	return dispatch(c, h.dispatcher, "process_approval", approvalKey(id),
		func(ctx context.Context) (decisionResponse, error) {
			res, err := h.approvals.ProcessApproval(ctx, caller, in)
			if err != nil {
				return decisionResponse{}, err
			}
			metrics.DecisionsTotal.WithLabelValues(string(res.Approval.Kind), string(res.Approval.Status)).Inc()
			return toDecisionResponse(res), nil
		},
		func(resp decisionResponse) error {
			return c.JSON(http.StatusOK, resp)
		})
}

// RequestRegistration handles POST /v1/registrations.
//
// @Summary      Ask to join the registry
// @Description  Creates an inactive user and an approval an admin must decide.
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        Prefer  header    string               false  "respond-async to get 202 and an operation receipt"
// @Param        body    body      registrationRequest  true   "Registration details"
// @Success      201     {object}  domain.Approval
// @Success      202     {object}  operationResponse
// @Failure      409     {object}  errorResponse
// @Failure      422     {object}  errorResponse
// @Router       /v1/registrations [post]
func (h *ApprovalHandler) RequestRegistration(c echo.Context) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}
	var req registrationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	in := ports.RegistrationRequestInput{DisplayName: req.DisplayName, Contact: req.Contact, Reason: req.Reason}

	return dispatch(c, h.dispatcher, "request_registration", identityKey(caller),
		func(ctx context.Context) (*domain.Approval, error) {
			return h.opened(h.approvals.RequestRegistration(ctx, caller, in))
		},
		func(a *domain.Approval) error {
			return c.JSON(http.StatusCreated, a)
		})
}

// RequestRoleUpdate handles POST /v1/role-requests.
//
// @Summary      Ask for a different role
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        Prefer  header    string             false  "respond-async to get 202 and an operation receipt"
// @Param        body    body      roleChangeRequest  true   "Requested role"
// @Success      201     {object}  domain.Approval
// @Success      202     {object}  operationResponse
// @Failure      403     {object}  errorResponse
// @Failure      409     {object}  errorResponse
// @Failure      422     {object}  errorResponse
// @Router       /v1/role-requests [post]
func (h *ApprovalHandler) RequestRoleUpdate(c echo.Context) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}
	var req roleChangeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return err
	}

	return dispatch(c, h.dispatcher, "request_role_update", identityKey(caller),
		func(ctx context.Context) (*domain.Approval, error) {
			return h.opened(h.approvals.RequestRoleUpdate(ctx, caller, role, req.Reason))
		},
		func(a *domain.Approval) error {
			return c.JSON(http.StatusCreated, a)
		})
}

// Get handles GET /v1/approvals/:id.
//
// @Summary      Get an approval by id
// @Tags         approvals
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Approval id"
// @Success      200  {object}  domain.Approval
// @Failure      404  {object}  errorResponse
// @Router       /v1/approvals/{id} [get]
func (h *ApprovalHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.approvals.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

// ListPending handles GET /v1/approvals/pending.
//
// @Summary      List pending approvals, oldest first
// @Tags         approvals
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  approvalListResponse
// @Router       /v1/approvals/pending [get]
func (h *ApprovalHandler) ListPending(c echo.Context) error {
	as, err := h.approvals.ListPending(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toApprovalList(as))
}

// ListHistory handles GET /v1/approvals/history.
//
// @Summary      List decided approvals, newest first
// @Tags         approvals
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  approvalListResponse
// @Router       /v1/approvals/history [get]
func (h *ApprovalHandler) ListHistory(c echo.Context) error {
	as, err := h.approvals.ListHistory(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toApprovalList(as))
}

func (h *ApprovalHandler) opened(a *domain.Approval, err error) (*domain.Approval, error) {
	if err != nil {
		return nil, err
	}
	metrics.ApprovalsRequestedTotal.WithLabelValues(string(a.Kind)).Inc()
	return a, nil
}
