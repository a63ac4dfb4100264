package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/herderhub/herderhub-api/internal/models"
	"github.com/herderhub/herderhub-api/internal/repository"
)

type transactionsRepo struct{ col *mongo.Collection }

func NewTransactions(db *mongo.Database) repository.Transactions {
	return &transactionsRepo{col: db.Collection(colTransactions)}
}

func (r *transactionsRepo) Create(ctx context.Context, tx models.Transaction) (models.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return models.Transaction{}, err
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	tx.Status = models.TxnPending
	tx.MerchantRequestID, tx.CheckoutRequestID = nil, nil
	tx.CreatedAt, tx.UpdatedAt = now, now

	if _, err := r.col.InsertOne(ctx, toTxDoc(tx)); err != nil {
		return models.Transaction{}, mapErr(err)
	}
	return tx, nil
}

func (r *transactionsRepo) GetByID(ctx context.Context, id string) (models.Transaction, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *transactionsRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	filter := bson.M{"$or": bson.A{bson.M{"buyer_id": userID}, bson.M{"seller_id": userID}}}
	return r.find(ctx, filter, pageOpts(limit, offset))
}

func (r *transactionsRepo) List(ctx context.Context, limit, offset int) ([]models.Transaction, error) {
	return r.find(ctx, bson.M{}, pageOpts(limit, offset))
}

func (r *transactionsRepo) FindByMerchantRequestID(ctx context.Context, id string) (models.Transaction, error) {
	return r.findOne(ctx, bson.M{"merchant_request_id": id})
}

func (r *transactionsRepo) FindByCheckoutRequestID(ctx context.Context, id string) (models.Transaction, error) {
	return r.findOne(ctx, bson.M{"checkout_request_id": id})
}

func (r *transactionsRepo) FindByPhoneAmountPending(ctx context.Context, phone string, amount int64, since time.Time) (models.Transaction, error) {
	found, err := r.find(ctx, bson.M{
		"status":              string(models.TxnPending),
		"phone_number":        phone,
		"amount":              amount,
		"merchant_request_id": bson.M{"$exists": false},
		"checkout_request_id": bson.M{"$exists": false},
		"created_at":          bson.M{"$gte": since},
	}, options.Find().SetLimit(2))
	if err != nil {
		return models.Transaction{}, err
	}
	switch len(found) {
	case 0:
		return models.Transaction{}, repository.ErrNotFound
	case 1:
		return found[0], nil
	}
	return models.Transaction{}, repository.ErrAmbiguous
}

// UpdateStatus uses findAndModify filtered on status so only one writer can
// leave pending.
func (r *transactionsRepo) UpdateStatus(ctx context.Context, id string, status models.TransactionStatus, s models.Settlement) (models.Transaction, error) {
	if !models.CanTransition(models.TxnPending, status) {
		return models.Transaction{}, repository.ErrInvalidTransition
	}
	set := bson.M{"status": string(status), "updated_at": time.Now().UTC()}
	if s.ResultCode != nil {
		set["result_code"] = *s.ResultCode
	}
	if s.ResultDesc != nil {
		set["result_desc"] = *s.ResultDesc
	}
	if s.MpesaReceiptNumber != nil {
		set["mpesa_receipt_number"] = *s.MpesaReceiptNumber
	}
	if s.MpesaTransactionDate != nil {
		set["mpesa_transaction_date"] = *s.MpesaTransactionDate
	}
	if s.FailureReason != nil {
		set["failure_reason"] = string(*s.FailureReason)
	}

	out, err := r.findOneAndUpdate(ctx, bson.M{"_id": id, "status": string(models.TxnPending)}, bson.M{"$set": set})
	if !errors.Is(err, repository.ErrNotFound) {
		return out, err
	}
	cur, err := r.GetByID(ctx, id)
	if err != nil {
		return models.Transaction{}, err
	}
	return cur, repository.ErrConflict
}

func (r *transactionsRepo) AttachGatewayIDs(ctx context.Context, id, merchantID, checkoutID string) (models.Transaction, error) {
	if merchantID == "" || checkoutID == "" {
		return models.Transaction{}, repository.ErrConflict
	}
	out, err := r.findOneAndUpdate(ctx,
		bson.M{
			"_id":                 id,
			"merchant_request_id": bson.M{"$exists": false},
			"checkout_request_id": bson.M{"$exists": false},
		},
		bson.M{"$set": bson.M{
			"merchant_request_id": merchantID,
			"checkout_request_id": checkoutID,
			"updated_at":          time.Now().UTC(),
		}},
	)
	if !errors.Is(err, repository.ErrNotFound) {
		return out, err
	}
	cur, err := r.GetByID(ctx, id)
	if err != nil {
		return models.Transaction{}, err
	}
	if cur.MerchantRequestID != nil && *cur.MerchantRequestID == merchantID &&
		cur.CheckoutRequestID != nil && *cur.CheckoutRequestID == checkoutID {
		return cur, nil
	}
	return cur, repository.ErrConflict
}

func (r *transactionsRepo) findOne(ctx context.Context, filter bson.M) (models.Transaction, error) {
	var d txDoc
	if err := r.col.FindOne(ctx, filter).Decode(&d); err != nil {
		return models.Transaction{}, mapErr(err)
	}
	return d.model(), nil
}

func (r *transactionsRepo) findOneAndUpdate(ctx context.Context, filter, update bson.M) (models.Transaction, error) {
	var d txDoc
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&d); err != nil {
		return models.Transaction{}, mapErr(err)
	}
	return d.model(), nil
}

func (r *transactionsRepo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Transaction, error) {
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Transaction
	for cur.Next(ctx) {
		var d txDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, d.model())
	}
	return out, cur.Err()
}

func pageOpts(limit, offset int) *options.FindOptions {
	o := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetSkip(int64(offset))
	if limit > 0 {
		o.SetLimit(int64(limit))
	}
	return o
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return repository.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return repository.ErrDuplicate
	}
	return err
}
