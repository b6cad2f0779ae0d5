package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/approval-system/internal/core/domain"
	"github.com/99minutos/approval-system/internal/core/ports"
)

const defaultRecentLimit = 3

// ProjectionHandler serves dashboard views. Values may lag recent writes.
type ProjectionHandler struct {
	projections ports.ProjectionService
}

func NewProjectionHandler(projections ports.ProjectionService) *ProjectionHandler {
	return &ProjectionHandler{projections: projections}
}

// Metrics handles GET /v1/projections/metrics.
//
// @Summary      Aggregate transaction and approval counters
// @Tags         projections
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  metricsResponse
// @Router       /v1/projections/metrics [get]
func (h *ProjectionHandler) Metrics(c echo.Context) error {
	m, err := h.projections.Metrics(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toMetricsResponse(m))
}

// UserStats handles GET /v1/projections/users.
//
// @Summary      Registry counters by role and activity
// @Tags         projections
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  userStatsResponse
// @Router       /v1/projections/users [get]
func (h *ProjectionHandler) UserStats(c echo.Context) error {
	s, err := h.projections.UserStats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserStatsResponse(s))
}

// RecentTransactions handles GET /v1/projections/recent-transactions.
//
// @Summary      Most recent transactions
// @Tags         projections
// @Produce      json
// @Security     BearerAuth
// @Param        limit  query     int  false  "Maximum number of transactions (default 3)"
// @Success      200    {object}  transactionListResponse
// @Failure      422    {object}  errorResponse
// @Router       /v1/projections/recent-transactions [get]
func (h *ProjectionHandler) RecentTransactions(c echo.Context) error {
	limit := defaultRecentLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return domain.Invalid("limit", "must be an integer")
		}
		limit = n
	}
	txs, err := h.projections.RecentTransactions(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toTransactionList(txs))
}
