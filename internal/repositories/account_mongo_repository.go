package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"authportal/internal/models"
)

const collectionAccounts = "accounts"

type mongoAccountRepository struct {
	coll    *mongo.Collection
	timeout time.Duration
}

// ConnectMongo opens a client and verifies the server is reachable.
func ConnectMongo(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect error: %w", err)
	}

	pctx, pcancel := context.WithTimeout(ctx, timeout)
	defer pcancel()
	if err := client.Ping(pctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping error: %w", err)
	}
	return client, nil
}

func NewMongoAccountRepository(db *mongo.Database, timeout time.Duration) AccountRepository {
	return &mongoAccountRepository{coll: db.Collection(collectionAccounts), timeout: timeout}
}

// EnsureMongoIndexes creates the unique identity index the store relies on for conflicts.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(collectionAccounts).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "identityKey", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *mongoAccountRepository) getContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *mongoAccountRepository) Create(ctx context.Context, a *models.Account) error {
	ctx, cancel := r.getContext(ctx)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, a); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *mongoAccountRepository) FindByIdentity(ctx context.Context, email string) (*models.Account, error) {
	return r.findOne(ctx, bson.M{"identityKey": models.NormalizeIdentity(email)})
}

func (r *mongoAccountRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *mongoAccountRepository) findOne(ctx context.Context, filter bson.M) (*models.Account, error) {
	ctx, cancel := r.getContext(ctx)
	defer cancel()

	var a models.Account
	if err := r.coll.FindOne(ctx, filter).Decode(&a); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &a, nil
}

func (r *mongoAccountRepository) SetVerification(ctx context.Context, id string, v *models.VerificationArtifact) error {
	return r.updateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"verification": v, "updatedAt": v.IssuedAt},
	})
}

func (r *mongoAccountRepository) ClearVerification(ctx context.Context, id string, purpose models.Purpose, code string, at time.Time) error {
	ctx, cancel := r.getContext(ctx)
	defer cancel()

	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id, "verification.purpose": purpose, "verification.code": code}, bson.M{
		"$set":   bson.M{"updatedAt": at},
		"$unset": bson.M{"verification": ""},
	})
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *mongoAccountRepository) ConsumeVerification(ctx context.Context, id string, purpose models.Purpose, code string, now time.Time) (bool, error) {
	return r.redeem(ctx, id, purpose, code, now, bson.M{"updatedAt": now})
}

func (r *mongoAccountRepository) ConsumeAndMarkVerified(ctx context.Context, id, code string, now time.Time) (bool, error) {
	return r.redeem(ctx, id, models.PurposeEmailVerification, code, now, bson.M{
		"emailVerifiedAt": now,
		"updatedAt":       now,
	})
}

func (r *mongoAccountRepository) ResetCredential(ctx context.Context, id, code, passwordHash string, now time.Time) (bool, error) {
	return r.redeem(ctx, id, models.PurposePasswordReset, code, now, bson.M{
		"passwordHash": passwordHash,
		"updatedAt":    now,
	})
}

// redeem applies set and drops the artifact in one UpdateOne, only while the artifact is live.
func (r *mongoAccountRepository) redeem(ctx context.Context, id string, purpose models.Purpose, code string, now time.Time, set bson.M) (bool, error) {
	ctx, cancel := r.getContext(ctx)
	defer cancel()

	filter := bson.M{
		"_id":                    id,
		"verification.purpose":   purpose,
		"verification.code":      code,
		"verification.expiresAt": bson.M{"$gt": now},
	}
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{
		"$set":   set,
		"$unset": bson.M{"verification": ""},
	})
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return res.MatchedCount == 1, nil
}

func (r *mongoAccountRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.getContext(ctx)
	defer cancel()

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoAccountRepository) Count(ctx context.Context) (int, error) {
	ctx, cancel := r.getContext(ctx)
	defer cancel()

	n, err := r.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return int(n), nil
}

func (r *mongoAccountRepository) updateOne(ctx context.Context, filter, update bson.M) error {
	ctx, cancel := r.getContext(ctx)
	defer cancel()

	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
