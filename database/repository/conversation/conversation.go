package conversationRepo

import (
	"context"
	"sync"
	"time"

	"gigbook/database"
	"gigbook/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PairKey orders two user ids so (a, b) and (b, a) map to the same thread.
func PairKey(userA, userB string) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return userA + ":" + userB
}

// ConversationRepository stores one conversation per participant pair.
type ConversationRepository interface {
	// FindOrInsert returns the conversation for the pair, inserting candidate
	// when none exists. The bool is true when candidate was inserted.
	FindOrInsert(ctx context.Context, candidate *models.Conversation) (*models.Conversation, bool, error)
}

type MongoConversationRepo struct {
	coll *mongo.Collection
}

func NewMongoConversationRepo(db *mongo.Database) (*MongoConversationRepo, error) {
	repo := &MongoConversationRepo{coll: db.Collection("conversations")}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := repo.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "pairKey", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, database.Classify(err, "failed to create conversation indexes", "conversation", "")
	}
	return repo, nil
}

func (r *MongoConversationRepo) FindOrInsert(ctx context.Context, candidate *models.Conversation) (*models.Conversation, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if candidate.ID == "" {
		candidate.ID = uuid.New().String()
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	update := bson.M{"$setOnInsert": candidate}

	var conv models.Conversation
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"pairKey": candidate.PairKey}, update, opts).Decode(&conv)
	if mongo.IsDuplicateKeyError(err) {
		// Lost an upsert race on the unique index; the winner's document exists now.
		err = r.coll.FindOne(ctx, bson.M{"pairKey": candidate.PairKey}).Decode(&conv)
	}
	if err != nil {
		return nil, false, database.Classify(err, "error resolving conversation", "conversation", candidate.PairKey)
	}
	return &conv, conv.ID == candidate.ID, nil
}

type MemoryConversationRepo struct {
	mu     sync.Mutex
	byPair map[string]models.Conversation
}

func NewMemoryConversationRepo() *MemoryConversationRepo {
	return &MemoryConversationRepo{byPair: make(map[string]models.Conversation)}
}

func (r *MemoryConversationRepo) FindOrInsert(ctx context.Context, candidate *models.Conversation) (*models.Conversation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byPair[candidate.PairKey]; ok {
		return &existing, false, nil
	}
	if candidate.ID == "" {
		candidate.ID = uuid.New().String()
	}
	stored := *candidate
	r.byPair[candidate.PairKey] = stored
	return &stored, true, nil
}
