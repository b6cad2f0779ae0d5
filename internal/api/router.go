package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/99minutos/approval-system/internal/api/handler"
	"github.com/99minutos/approval-system/internal/api/middleware"
	"github.com/99minutos/approval-system/internal/core/domain"
	"github.com/99minutos/approval-system/internal/core/ports"
	"github.com/99minutos/approval-system/internal/infrastructure/http/handlers"
)

// Dependencies are the services and infrastructure the router wires into handlers.
type Dependencies struct {
	Registry     ports.RegistryService
	Transactions ports.TransactionService
	Approvals    ports.ApprovalService
	Projections  ports.ProjectionService
	Dispatcher   handler.Dispatcher
	// Ready lists the dependencies probed by /health/ready.
	Ready     map[string]handlers.Pinger
	JWTSecret string
	Logger    zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Logger)
	e.Validator = handler.NewValidator()

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.CORS())
	e.Use(echoprometheus.NewMiddleware("approval"))

	// --- Health probes and tooling (no auth required) ---
	healthHandler := handlers.NewHealthHandler()
	healthDepsHandler := handlers.NewHealthDependenciesHandler(deps.Ready)

	e.GET("/health", healthHandler.Liveness)            // liveness: is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness: are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// --- Handlers ---
	users := handler.NewUserHandler(deps.Registry, deps.Dispatcher)
	transactions := handler.NewTransactionHandler(deps.Transactions, deps.Approvals, deps.Dispatcher)
	approvals := handler.NewApprovalHandler(deps.Approvals, deps.Dispatcher)
	projections := handler.NewProjectionHandler(deps.Projections)
	operations := handler.NewOperationHandler(deps.Dispatcher, deps.Registry)

	// Roles are re-read from the registry on every request; services check
	// them again inside each operation.
	member := middleware.RequireRole(deps.Registry, domain.RoleUser)
	manager := middleware.RequireRole(deps.Registry, domain.RoleManager)
	admin := middleware.RequireRole(deps.Registry, domain.RoleAdmin)

	v1 := e.Group("/v1", middleware.Auth(deps.JWTSecret))

	v1.POST("/users", users.Register, admin)
	v1.GET("/users", users.List)
	v1.GET("/users/:identity", users.Get)
	v1.PUT("/users/:identity/role", users.UpdateRole, admin)
	v1.GET("/users/:identity/transactions", transactions.ListByUser)

	v1.POST("/registrations", approvals.RequestRegistration)
	v1.POST("/role-requests", approvals.RequestRoleUpdate, member)

	v1.POST("/transactions", transactions.Create, member)
	v1.GET("/transactions", transactions.List)
	v1.GET("/transactions/:id", transactions.Get)
	v1.POST("/transactions/:id/approvals", transactions.RequestApproval, member)
	v1.POST("/transactions/:id/complete", transactions.Complete, member)

	v1.GET("/approvals/pending", approvals.ListPending)
	v1.GET("/approvals/history", approvals.ListHistory)
	v1.GET("/approvals/:id", approvals.Get)
	v1.POST("/approvals/:id/decision", approvals.Decide, manager)

	v1.GET("/operations/:id", operations.Get)

	v1.GET("/projections/metrics", projections.Metrics)
	v1.GET("/projections/users", projections.UserStats)
	v1.GET("/projections/recent-transactions", projections.RecentTransactions)

	return e
}
