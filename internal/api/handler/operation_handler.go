package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/approval-system/internal/api/middleware"
	"github.com/99minutos/approval-system/internal/core/domain"
)

// OperationHandler reports the phase of operations submitted asynchronously.
// A receipt is visible to the identity that submitted it and to managers.
type OperationHandler struct {
	dispatcher Dispatcher
	auth       middleware.Authorizer
}

func NewOperationHandler(dispatcher Dispatcher, auth middleware.Authorizer) *OperationHandler {
	return &OperationHandler{dispatcher: dispatcher, auth: auth}
}

// Get handles GET /v1/operations/:id.
//
// @Summary      Get an operation receipt
// @Description  Phases are submitted, pending_confirmation, settled and failed.
// @Description  Receipts are kept for a limited time after they settle. Only the
// @Description  submitter and managers can read a receipt.
// @Tags         operations
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Operation id"
// @Success      200  {object}  operationResponse
// @Failure      404  {object}  errorResponse
// @Router       /v1/operations/{id} [get]
func (h *OperationHandler) Get(c echo.Context) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}

	r, ok := h.dispatcher.Receipt(c.Param("id"))
	if !ok {
		return errOperationNotFound
	}
	if !domain.SameIdentity(r.Owner(), caller) {
		if _, err := h.auth.Authorize(c.Request().Context(), caller, domain.RoleManager); err != nil {
			if domain.KindOf(err) == domain.KindPermissionDenied {
				return errOperationNotFound
			}
			return err
		}
	}
	return c.JSON(http.StatusOK, toOperationResponse(r.View()))
}

var errOperationNotFound = echo.NewHTTPError(http.StatusNotFound, "operation not found")
