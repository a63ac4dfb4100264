package mongodb

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/herderhub/herderhub-api/internal/models"
	"github.com/herderhub/herderhub-api/internal/repository"
)

type listingsRepo struct{ col *mongo.Collection }

func (r *listingsRepo) GetByID(ctx context.Context, id string) (models.Listing, error) {
	var d listingDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		return models.Listing{}, mapErr(err)
	}
	return models.Listing{
		ID:         d.ID,
		SellerID:   d.SellerID,
		AnimalType: d.AnimalType,
		Breed:      d.Breed,
		Price:      d.Price,
		Status:     models.ListingStatus(d.Status),
		UpdatedAt:  d.UpdatedAt,
	}, nil
}

func (r *listingsRepo) MarkSold(ctx context.Context, id string) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"status":     string(models.ListingSold),
		"updated_at": time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type usersRepo struct{ col *mongo.Collection }

func (r *usersRepo) Create(ctx context.Context, u models.User) (models.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(u.Email)
	u.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	u.UpdatedAt = u.CreatedAt
	_, err := r.col.InsertOne(ctx, userDoc{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PhoneNumber:  u.PhoneNumber,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	})
	if err != nil {
		return models.User{}, mapErr(err)
	}
	return u, nil
}

func (r *usersRepo) GetByID(ctx context.Context, id string) (models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *usersRepo) GetByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, bson.M{"email": strings.ToLower(email)})
}

func (r *usersRepo) findOne(ctx context.Context, filter bson.M) (models.User, error) {
	var d userDoc
	if err := r.col.FindOne(ctx, filter).Decode(&d); err != nil {
		return models.User{}, mapErr(err)
	}
	return models.User{
		ID:           d.ID,
		Username:     d.Username,
		Email:        d.Email,
		PhoneNumber:  d.PhoneNumber,
		PasswordHash: d.PasswordHash,
		Role:         d.Role,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}, nil
}

type auditLogsRepo struct{ col *mongo.Collection }

func (r *auditLogsRepo) Create(ctx context.Context, l models.AuditLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, auditDoc{
		ID:         l.ID,
		EntityType: l.EntityType,
		EntityID:   l.EntityID,
		Action:     l.Action,
		Details:    l.Details,
		CreatedAt:  l.CreatedAt,
	})
	return err
}

// EnsureIndexes creates the unique and lookup indexes the store relies on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	sparseUnique := options.Index().SetUnique(true).SetSparse(true)
	_, err := db.Collection(colTransactions).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "merchant_request_id", Value: 1}}, Options: sparseUnique},
		{Keys: bson.D{{Key: "checkout_request_id", Value: 1}}, Options: sparseUnique},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "phone_number", Value: 1}, {Key: "amount", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "buyer_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "seller_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return err
	}
	_, err = db.Collection(colUsers).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func NewRepositories(client *mongo.Client, dbName string) repository.Repositories {
	db := client.Database(dbName)
	return repository.Repositories{
		Users:        &usersRepo{col: db.Collection(colUsers)},
		Listings:     &listingsRepo{col: db.Collection(colListings)},
		Transactions: NewTransactions(db),
		AuditLogs:    &auditLogsRepo{col: db.Collection(colAuditLogs)},
		Close: func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		},
	}
}
