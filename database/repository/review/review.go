package reviewRepo

import (
	"context"
	"sync"
	"time"

	"gigbook/database"
	"gigbook/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ReviewRepository reads reviews recorded by the external reviews service.
type ReviewRepository interface {
	ListForTransaction(ctx context.Context, serviceID, transactionID string) ([]models.Review, error)
}

type MongoReviewRepo struct {
	coll *mongo.Collection
}

func NewMongoReviewRepo(db *mongo.Database) *MongoReviewRepo {
	return &MongoReviewRepo{coll: db.Collection("reviews")}
}

func (r *MongoReviewRepo) ListForTransaction(ctx context.Context, serviceID, transactionID string) ([]models.Review, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cursor, err := r.coll.Find(ctx, bson.M{"serviceId": serviceID, "transactionId": transactionID})
	if err != nil {
		return nil, database.Classify(err, "error listing reviews", "review", transactionID)
	}
	defer cursor.Close(ctx)

	reviews := []models.Review{}
	if err := cursor.All(ctx, &reviews); err != nil {
		return nil, database.Classify(err, "error decoding reviews", "review", transactionID)
	}
	return reviews, nil
}

// MemoryReviewRepo holds reviews in process. Add stands in for the external writer.
type MemoryReviewRepo struct {
	mu      sync.RWMutex
	reviews []models.Review
}

func NewMemoryReviewRepo() *MemoryReviewRepo {
	return &MemoryReviewRepo{}
}

func (r *MemoryReviewRepo) Add(review models.Review) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reviews = append(r.reviews, review)
}

func (r *MemoryReviewRepo) ListForTransaction(ctx context.Context, serviceID, transactionID string) ([]models.Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []models.Review{}
	for _, rv := range r.reviews {
		if rv.ServiceID == serviceID && rv.TransactionID == transactionID {
			out = append(out, rv)
		}
	}
	return out, nil
}
