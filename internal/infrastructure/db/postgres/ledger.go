// Package postgres implements the ledger on PostgreSQL through pgx.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/99minutos/approval-system/internal/core/domain"
	"github.com/99minutos/approval-system/internal/core/ports"
)

//go:embed schema.sql
var schema string

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ledger implements ports.Ledger. The root Ledger runs statements on the pool;
// the one handed to Atomically callbacks runs them on the open transaction.
type Ledger struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return pool, nil
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool, q: pool}
}

// Migrate applies the embedded schema. Statements are idempotent.
func (l *Ledger) Migrate(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (l *Ledger) Users() ports.UserRepository               { return &userRepo{q: l.q} }
func (l *Ledger) Transactions() ports.TransactionRepository { return &txRepo{q: l.q} }
func (l *Ledger) Approvals() ports.ApprovalRepository       { return &approvalRepo{q: l.q} }

func (l *Ledger) Ping(ctx context.Context) error {
	if err := l.pool.Ping(ctx); err != nil {
		return domain.Transport("postgres ping", err)
	}
	return nil
}

// Atomically runs fn in a REPEATABLE READ transaction. A concurrent writer
// that commits first makes this one fail with a serialization error, which is
// reported as a state conflict and never retried here.
func (l *Ledger) Atomically(ctx context.Context, fn func(ctx context.Context, tx ports.Ledger) error) error {
	if l.inTx {
		return fn(ctx, l)
	}
	err := pgx.BeginTxFunc(ctx, l.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		return fn(ctx, &Ledger{pool: l.pool, q: tx, inTx: true})
	})
	if err != nil && domain.KindOf(err) == domain.KindUnknown {
		return translate("transaction", err, nil, nil)
	}
	return err
}

// translate maps pgx errors onto domain kinds. duplicate is returned for
// unique violations and conflict for serialization failures when non-nil.
func translate(op string, err error, duplicate, conflict error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			if duplicate != nil {
				return duplicate
			}
		case "40001", "40P01":
			if conflict != nil {
				return conflict
			}
			return fmt.Errorf("%s: %w: concurrent update", op, domain.ErrStateConflict)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.Transport(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ ports.Ledger = (*Ledger)(nil)
