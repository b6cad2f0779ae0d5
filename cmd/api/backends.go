package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/99minutos/approval-system/internal/core/ports"
	"github.com/99minutos/approval-system/internal/infrastructure/config"
	"github.com/99minutos/approval-system/internal/infrastructure/db/memory"
	mongoledger "github.com/99minutos/approval-system/internal/infrastructure/db/mongo"
	"github.com/99minutos/approval-system/internal/infrastructure/db/postgres"
	redisstore "github.com/99minutos/approval-system/internal/infrastructure/db/redis"
	"github.com/99minutos/approval-system/internal/infrastructure/http/handlers"
)

// backends bundles the collaborators selected by configuration.
type backends struct {
	ledger  ports.Ledger
	locker  ports.Locker
	keys    ports.IdempotencyStore
	pingers map[string]handlers.Pinger
	closers []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*backends, error) {
	b := &backends{pingers: make(map[string]handlers.Pinger)}

	switch cfg.LedgerBackend {
	case config.BackendMongo:
		client, db, err := mongoledger.Connect(ctx, mongoledger.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = client.Disconnect(context.Background()) })
		ledger := mongoledger.NewLedger(client, db)
		if err := ledger.EnsureIndexes(ctx); err != nil {
			b.close()
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		b.ledger = ledger
	case config.BackendPostgres:
		pool, err := postgres.Connect(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, pool.Close)
		ledger := postgres.NewLedger(pool)
		if err := ledger.Migrate(ctx); err != nil {
			b.close()
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
		b.ledger = ledger
	default:
		log.Warn().Msg("using the in-memory ledger; state is lost on restart")
		b.ledger = memory.NewLedger()
	}
	b.pingers["ledger"] = b.ledger

	switch cfg.LockBackend {
	case config.BackendRedis:
		client, err := redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			b.close()
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = client.Close() })
		b.locker = redisstore.NewLocker(client, cfg.Redis.LockTTL, 0)
		b.keys = redisstore.NewIdempotencyStore(client)
		b.pingers["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	default:
		b.locker = memory.NewLocker()
		b.keys = memory.NewIdempotencyStore()
	}

	return b, nil
}
