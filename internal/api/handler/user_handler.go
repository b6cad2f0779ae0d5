package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/approval-system/internal/core/domain"
	"github.com/99minutos/approval-system/internal/core/ports"
)

// UserHandler handles HTTP requests for the role registry.
type UserHandler struct {
	registry   ports.RegistryService
	dispatcher Dispatcher
}

func NewUserHandler(registry ports.RegistryService, dispatcher Dispatcher) *UserHandler {
	return &UserHandler{registry: registry, dispatcher: dispatcher}
}

// Register handles POST /v1/users.
//
// @Summary      Register an identity with a role
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        Prefer  header    string               false  "respond-async to get 202 and an operation receipt"
// @Param        body    body      registerUserRequest  true   "User details"
// @Success      201     {object}  domain.User
// @Success      202     {object}  operationResponse
// @Failure      403     {object}  errorResponse
// @Failure      409     {object}  errorResponse
// @Failure      422     {object}  errorResponse
// @Failure      503     {object}  errorResponse
// @Router       /v1/users [post]
func (h *UserHandler) Register(c echo.Context) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}
	var req registerUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	in, err := toRegisterInput(req)
	if err != nil {
		return err
	}

	return dispatch(c, h.dispatcher, "register_user", identityKey(req.Identity),
		func(ctx context.Context) (*domain.User, error) {
			return h.registry.Register(ctx, caller, in)
		},
		func(u *domain.User) error {
			return c.JSON(http.StatusCreated, u)
		})
}

// UpdateRole handles PUT /v1/users/:identity/role.
//
// @Summary      Change a user's role
// @Description  Setting the current role again succeeds without changes.
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        identity  path      string             true   "User identity (0x address)"
// @Param        Prefer    header    string             false  "respond-async to get 202 and an operation receipt"
// @Param        body      body      updateRoleRequest  true   "New role"
// @Success      200       {object}  domain.User
// @Success      202       {object}  operationResponse
// @Failure      403       {object}  errorResponse
// @Failure      404       {object}  errorResponse
// @Failure      409       {object}  errorResponse
// @Failure      422       {object}  errorResponse
// @Router       /v1/users/{identity}/role [put]
func (h *UserHandler) UpdateRole(c echo.Context) error {
	caller, err := ctxCaller(c)
	if err != nil {
		return err
	}
	var req updateRoleRequest
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
	identity := c.Param("identity")

	return dispatch(c, h.dispatcher, "update_role", identityKey(identity),
		func(ctx context.Context) (*domain.User, error) {
			return h.registry.UpdateRole(ctx, caller, identity, role)
		},
		func(u *domain.User) error {
			return c.JSON(http.StatusOK, u)
		})
}

// Get handles GET /v1/users/:identity.
//
// @Summary      Get a user by identity
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        identity  path      string  true  "User identity (0x address)"
// @Success      200       {object}  domain.User
// @Failure      404       {object}  errorResponse
// @Failure      422       {object}  errorResponse
// @Router       /v1/users/{identity} [get]
func (h *UserHandler) Get(c echo.Context) error {
	u, err := h.registry.Get(c.Request().Context(), c.Param("identity"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

// List handles GET /v1/users.
//
// @Summary      List registered users
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  userListResponse
// @Router       /v1/users [get]
func (h *UserHandler) List(c echo.Context) error {
	users, err := h.registry.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserList(users))
}
