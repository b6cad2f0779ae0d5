package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/99minutos/approval-system/internal/core/domain"
)

type nextID func(ctx context.Context) (int64, error)

var ascendingID = options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

// ── users ─────────────────────────────────────────────────────────────────────

type UserRepository struct {
	col *mongo.Collection
	seq nextID
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	id, err := r.seq(ctx)
	if err != nil {
		return err
	}
	doc := *u
	doc.ID = id
	doc.Identity = canonical(u.Identity)
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return translate("insert user", err, domain.ErrUserExists)
	}
	u.ID = id
	return nil
}

func (r *UserRepository) FindByIdentity(ctx context.Context, identity string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"identity": canonical(identity)})
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var u domain.User
	err := r.col.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, translate("find user", err, nil)
	}
	return &u, nil
}

func (r *UserRepository) UpdateRole(ctx context.Context, identity string, from, to domain.Role) error {
	return r.swap(ctx, identity, bson.M{"role": from}, bson.M{"role": to}, domain.ErrRoleChanged)
}

func (r *UserRepository) SetActive(ctx context.Context, identity string, from, to bool) error {
	return r.swap(ctx, identity, bson.M{"is_active": from}, bson.M{"is_active": to}, domain.ErrInvalidTransition)
}

func (r *UserRepository) swap(ctx context.Context, identity string, expect, set bson.M, stale error) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"identity": canonical(identity)}
	for k, v := range expect {
		filter[k] = v
	}
	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return translate("update user", err, nil)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	if _, err := r.findOne(ctx, bson.M{"identity": canonical(identity)}); err != nil {
		return err
	}
	return stale
}

func (r *UserRepository) List(ctx context.Context) ([]*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, bson.M{}, ascendingID)
	if err != nil {
		return nil, translate("list users", err, nil)
	}
	var out []*domain.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, translate("list users", err, nil)
	}
	return out, nil
}

// ── transactions ──────────────────────────────────────────────────────────────

type TransactionRepository struct {
	col *mongo.Collection
	seq nextID
}

func (r *TransactionRepository) Create(ctx context.Context, t *domain.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	id, err := r.seq(ctx)
	if err != nil {
		return err
	}
	doc := *t
	doc.ID = id
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return translate("insert transaction", err, nil)
	}
	t.ID = id
	return nil
}

func (r *TransactionRepository) FindByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var t domain.Transaction
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrTransactionNotFound
	}
	if err != nil {
		return nil, translate("find transaction", err, nil)
	}
	return &t, nil
}

func (r *TransactionRepository) UpdateStatus(ctx context.Context, id int64, from, to domain.TxStatus) error {
	return r.swap(ctx, id, from, bson.M{"status": to})
}

func (r *TransactionRepository) AttachApproval(ctx context.Context, id int64, status domain.TxStatus, approvalID int64) error {
	return r.swap(ctx, id, status, bson.M{"approval_id": approvalID})
}

func (r *TransactionRepository) swap(ctx context.Context, id int64, from domain.TxStatus, set bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id, "status": from}, bson.M{"$set": set})
	if err != nil {
		return translate("update transaction", err, nil)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return domain.ErrInvalidTransition
}

func (r *TransactionRepository) ListByParty(ctx context.Context, identity string) ([]*domain.Transaction, error) {
	id := canonical(identity)
	return r.find(ctx, bson.M{"$or": bson.A{bson.M{"from": id}, bson.M{"to": id}}})
}

func (r *TransactionRepository) List(ctx context.Context) ([]*domain.Transaction, error) {
	return r.find(ctx, bson.M{})
}

func (r *TransactionRepository) find(ctx context.Context, filter bson.M) ([]*domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, filter, ascendingID)
	if err != nil {
		return nil, translate("list transactions", err, nil)
	}
	var out []*domain.Transaction
	if err := cur.All(ctx, &out); err != nil {
		return nil, translate("list transactions", err, nil)
	}
	return out, nil
}

// ── approvals ─────────────────────────────────────────────────────────────────

type ApprovalRepository struct {
	col *mongo.Collection
	seq nextID
}

// Create relies on the one_pending_per_target index for the open-approval check.
func (r *ApprovalRepository) Create(ctx context.Context, a *domain.Approval) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	id, err := r.seq(ctx)
	if err != nil {
		return err
	}
	doc := *a
	doc.ID = id
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return translate("insert approval", err, domain.ErrApprovalOpen)
	}
	a.ID = id
	return nil
}

func (r *ApprovalRepository) FindByID(ctx context.Context, id int64) (*domain.Approval, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *ApprovalRepository) FindOpen(ctx context.Context, kind domain.ApprovalKind, targetID int64) (*domain.Approval, error) {
	return r.findOne(ctx, bson.M{"kind": kind, "transaction_id": targetID, "status": domain.ApprovalPending})
}

func (r *ApprovalRepository) findOne(ctx context.Context, filter bson.M) (*domain.Approval, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var a domain.Approval
	err := r.col.FindOne(ctx, filter).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrApprovalNotFound
	}
	if err != nil {
		return nil, translate("find approval", err, nil)
	}
	return &a, nil
}

func (r *ApprovalRepository) Decide(ctx context.Context, id int64, d domain.Decision) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "status": domain.ApprovalPending},
		bson.M{"$set": bson.M{
			"status":     d.Status,
			"approver":   d.Approver,
			"reason":     d.Reason,
			"decided_at": d.DecidedAt,
		}},
	)
	if err != nil {
		return translate("decide approval", err, nil)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return domain.ErrApprovalDecided
}

func (r *ApprovalRepository) ListByStatus(ctx context.Context, statuses ...domain.ApprovalStatus) ([]*domain.Approval, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, bson.M{"status": bson.M{"$in": statuses}}, ascendingID)
	if err != nil {
		return nil, translate("list approvals", err, nil)
	}
	var out []*domain.Approval
	if err := cur.All(ctx, &out); err != nil {
		return nil, translate("list approvals", err, nil)
	}
	return out, nil
}
