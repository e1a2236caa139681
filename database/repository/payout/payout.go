package payoutRepo

import (
	"context"
	"sync"
	"time"

	"gigbook/apperror"
	"gigbook/database"
	"gigbook/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PayoutAccountRepository resolves a provider's connected payout account.
type PayoutAccountRepository interface {
	GetByProvider(ctx context.Context, providerID string) (*models.PayoutAccount, error)
	Upsert(ctx context.Context, account *models.PayoutAccount) error
}

type MongoPayoutAccountRepo struct {
	coll *mongo.Collection
}

func NewMongoPayoutAccountRepo(db *mongo.Database) (*MongoPayoutAccountRepo, error) {
	repo := &MongoPayoutAccountRepo{coll: db.Collection("payout_accounts")}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := repo.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "providerId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, database.Classify(err, "failed to create payout indexes", "payout account", "")
	}
	return repo, nil
}

func (r *MongoPayoutAccountRepo) GetByProvider(ctx context.Context, providerID string) (*models.PayoutAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var acct models.PayoutAccount
	err := r.coll.FindOne(ctx, bson.M{"providerId": providerID}).Decode(&acct)
	if err != nil {
		return nil, database.Classify(err, "error fetching payout account", "payout account for provider", providerID)
	}
	return &acct, nil
}

func (r *MongoPayoutAccountRepo) Upsert(ctx context.Context, account *models.PayoutAccount) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.coll.UpdateOne(ctx,
		bson.M{"providerId": account.ProviderID},
		bson.M{
			"$set":         bson.M{"connectedAccountId": account.ConnectedAccountID},
			"$setOnInsert": bson.M{"createdAt": time.Now().UTC()},
		},
		options.Update().SetUpsert(true),
	)
	return database.Classify(err, "error saving payout account", "payout account", account.ProviderID)
}

// MemoryPayoutAccountRepo keeps accounts in process.
type MemoryPayoutAccountRepo struct {
	mu       sync.RWMutex
	accounts map[string]models.PayoutAccount
}

func NewMemoryPayoutAccountRepo() *MemoryPayoutAccountRepo {
	return &MemoryPayoutAccountRepo{accounts: make(map[string]models.PayoutAccount)}
}

func (r *MemoryPayoutAccountRepo) GetByProvider(ctx context.Context, providerID string) (*models.PayoutAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.accounts[providerID]
	if !ok {
		return nil, apperror.NotFound("payout account for provider", providerID)
	}
	return &acct, nil
}

func (r *MemoryPayoutAccountRepo) Upsert(ctx context.Context, account *models.PayoutAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *account
	if existing, ok := r.accounts[account.ProviderID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	r.accounts[account.ProviderID] = stored
	return nil
}
