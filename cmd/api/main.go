// @title                       Approval System API
// @version                     1.0
// @description                 Role registry, transaction ledger and approval workflow.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 HS256 token whose sub claim is the caller identity.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	_ "github.com/99minutos/approval-system/docs"
	"github.com/99minutos/approval-system/internal/api"
	"github.com/99minutos/approval-system/internal/core/service"
	"github.com/99minutos/approval-system/internal/infrastructure/config"
	"github.com/99minutos/approval-system/internal/infrastructure/queue"
	"github.com/99minutos/approval-system/internal/infrastructure/seed"
	"github.com/99minutos/approval-system/pkg/logger"
	"github.com/99minutos/approval-system/pkg/tracing"
)

const (
	serviceName    = "approval-system"
	serviceVersion = "1.0.0"
)

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		panic(err)
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.Development(),
		Service: serviceName,
	})

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Init(serviceName, serviceVersion, cfg.Tracing.Output)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Warn().Err(err).Msg("tracing shutdown")
			}
		}()
	}

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	registry := service.NewRegistryService(b.ledger, logger.Component("registry"))
	transactions := service.NewTransactionService(b.ledger, b.keys, logger.Component("transactions"))
	approvals := service.NewApprovalService(b.ledger, b.locker, service.Policy{
		Settlement:            cfg.Settlement(),
		RequireDecisionReason: cfg.Workflow.RequireDecisionReason,
		AllowSelfApproval:     cfg.Workflow.AllowSelfApproval,
	}, logger.Component("approvals"))
	projections := service.NewProjectionService(b.ledger)

	if cfg.BootstrapFile != "" {
		users, err := seed.LoadFile(cfg.BootstrapFile)
		if err != nil {
			return err
		}
		created, err := registry.Bootstrap(ctx, users)
		if err != nil {
			return err
		}
		log.Info().Int("created", created).Int("listed", len(users)).Msg("bootstrap users loaded")
	}

	// The dispatcher outlives the signal context so in-flight operations can
	// settle while the HTTP server drains.
	dispatchCtx, stopDispatch := context.WithCancel(context.WithoutCancel(ctx))
	defer stopDispatch()
	dispatcher := queue.NewDispatcher(cfg.Workers, cfg.OperationRetention, logger.Component("dispatcher"))
	dispatcher.Start(dispatchCtx)

	e := api.NewRouter(api.Dependencies{
		Registry:     registry,
		Transactions: transactions,
		Approvals:    approvals,
		Projections:  projections,
		Dispatcher:   dispatcher,
		Ready:        b.pingers,
		JWTSecret:    cfg.JWTSecret,
		Logger:       log,
	})

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("ledger", cfg.LedgerBackend).
			Str("locks", cfg.LockBackend).
			Str("settlement", cfg.Workflow.SettlementMode).
			Msg("starting server")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	stopDispatch()
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("operations still running at shutdown")
	}
	log.Info().Msg("server stopped")
	return nil
}
