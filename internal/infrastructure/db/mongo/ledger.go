package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver"

	"github.com/99minutos/approval-system/internal/core/domain"
	"github.com/99minutos/approval-system/internal/core/ports"
)

const (
	collectionUsers        = "users"
	collectionTransactions = "transactions"
	collectionApprovals    = "approvals"
	collectionCounters     = "counters"
)

// Ledger implements ports.Ledger on MongoDB. Atomically needs a replica set
// or sharded cluster because it runs inside a multi-document transaction.
type Ledger struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewLedger(client *mongo.Client, db *mongo.Database) *Ledger {
	return &Ledger{client: client, db: db}
}

func (l *Ledger) Users() ports.UserRepository {
	return &UserRepository{col: l.db.Collection(collectionUsers), seq: l.sequence(collectionUsers)}
}

func (l *Ledger) Transactions() ports.TransactionRepository {
	return &TransactionRepository{col: l.db.Collection(collectionTransactions), seq: l.sequence(collectionTransactions)}
}

func (l *Ledger) Approvals() ports.ApprovalRepository {
	return &ApprovalRepository{col: l.db.Collection(collectionApprovals), seq: l.sequence(collectionApprovals)}
}

func (l *Ledger) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := l.client.Ping(ctx, readpref.Primary()); err != nil {
		return domain.Transport("mongo ping", err)
	}
	return nil
}

// Atomically runs fn in a session transaction. Repositories pick the session
// up from the context, so the Ledger handed to fn is l itself. A call made
// while a transaction is already open joins it.
//
// The driver re-runs fn on transient transaction errors such as write
// conflicts; every run starts from the committed state, so the conditional
// writes inside fn see the winner's result and fail with a state conflict.
func (l *Ledger) Atomically(ctx context.Context, fn func(ctx context.Context, tx ports.Ledger) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx, l)
	}

	session, err := l.client.StartSession()
	if err != nil {
		return domain.Transport("mongo start session", err)
	}
	defer session.EndSession(context.WithoutCancel(ctx))

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, l)
	})
	var se mongo.ServerError
	if errors.As(err, &se) && se.HasErrorLabel(driver.TransientTransactionError) {
		// Retries ran out; nothing was committed.
		return domain.Transport("mongo transaction", err)
	}
	return err
}

func (l *Ledger) sequence(name string) func(ctx context.Context) (int64, error) {
	counters := l.db.Collection(collectionCounters)
	return func(ctx context.Context) (int64, error) {
		var doc struct {
			Seq int64 `bson:"seq"`
		}
		err := counters.FindOneAndUpdate(ctx,
			bson.M{"_id": name},
			bson.M{"$inc": bson.M{"seq": int64(1)}},
			options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
		).Decode(&doc)
		if err != nil {
			return 0, translate("next id "+name, err, nil)
		}
		return doc.Seq, nil
	}
}

// EnsureIndexes creates the indexes the ledger relies on. The partial unique
// index on approvals allows a single pending approval per (kind, target).
func (l *Ledger) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := l.db.Collection(collectionUsers).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "identity", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}

	if _, err := l.db.Collection(collectionTransactions).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "from", Value: 1}}},
		{Keys: bson.D{{Key: "to", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	}); err != nil {
		return err
	}

	_, err := l.db.Collection(collectionApprovals).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "kind", Value: 1}, {Key: "transaction_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("one_pending_per_target").
				SetPartialFilterExpression(bson.M{"status": string(domain.ApprovalPending)}),
		},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	return err
}

// translate maps driver errors onto domain kinds once, at the boundary.
// duplicate is returned for unique index violations when non-nil.
func translate(op string, err error, duplicate error) error {
	switch {
	case err == nil:
		return nil
	case duplicate != nil && mongo.IsDuplicateKeyError(err):
		return duplicate
	case mongo.IsNetworkError(err), mongo.IsTimeout(err),
		errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return domain.Transport(op, err)
	}
	// Anything else stays raw so WithTransaction can recognise and retry
	// transient transaction errors.
	return err
}

func canonical(identity string) string {
	if id, err := domain.NormalizeIdentity(identity); err == nil {
		return id
	}
	return identity
}

var _ ports.Ledger = (*Ledger)(nil)
