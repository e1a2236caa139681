package bookingRepo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gigbook/apperror"
	"gigbook/database"
	"gigbook/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const collectionName = "bookings"

// MongoBookingRepo implements BookingRepository using MongoDB.
type MongoBookingRepo struct {
	coll   *mongo.Collection
	logger *zap.Logger
	now    func() time.Time

	// resume is the token of the last change delivered by Watch.
	resumeMu sync.Mutex
	resume   bson.Raw
}

// NewMongoBookingRepo creates the repository and ensures its indexes.
func NewMongoBookingRepo(db *mongo.Database, logger *zap.Logger) *MongoBookingRepo {
	repo := &MongoBookingRepo{
		coll:   db.Collection(collectionName),
		logger: logger,
		now:    time.Now,
	}
	if err := repo.ensureIndexes(); err != nil {
		logger.Warn("failed to create booking indexes", zap.Error(err))
	}
	return repo
}

func (r *MongoBookingRepo) Create(ctx context.Context, booking *models.Booking) error {
	if err := validateNew(booking); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, booking); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Validation("booking %s already exists", booking.ID)
		}
		return database.Classify(err, "error creating booking", "booking", booking.ID)
	}
	return nil
}

func (r *MongoBookingRepo) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	return r.findOne(ctx, bson.M{"id": id}, id)
}

func (r *MongoBookingRepo) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Booking, error) {
	if paymentIntentID == "" {
		return nil, apperror.NotFound("payment intent", paymentIntentID)
	}
	b, err := r.findOne(ctx, bson.M{"paymentIntentId": paymentIntentID}, paymentIntentID)
	if apperror.KindOf(err) == apperror.KindNotFound {
		return nil, apperror.NotFound("payment intent", paymentIntentID)
	}
	return b, err
}

func (r *MongoBookingRepo) findOne(ctx context.Context, filter bson.M, id string) (*models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var booking models.Booking
	if err := r.coll.FindOne(ctx, filter).Decode(&booking); err != nil {
		return nil, database.Classify(err, "error fetching booking", "booking", id)
	}
	return &booking, nil
}

func (r *MongoBookingRepo) ListByClient(ctx context.Context, clientID string) ([]models.Booking, error) {
	return r.list(ctx, bson.M{"clientId": clientID})
}

func (r *MongoBookingRepo) ListByProvider(ctx context.Context, providerID string) ([]models.Booking, error) {
	return r.list(ctx, bson.M{"serviceProviderId": providerID})
}

func (r *MongoBookingRepo) list(ctx context.Context, filter bson.M) ([]models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, database.Classify(err, "error listing bookings", "booking", "")
	}
	defer cursor.Close(ctx)

	bookings := []models.Booking{}
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("error decoding bookings: %w", err)
	}
	return bookings, nil
}

func (r *MongoBookingRepo) Update(ctx context.Context, id string, expectedVersion int64, patch models.BookingPatch) (*models.Booking, error) {
	if err := validatePatch(id, patch); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	update := buildUpdate(patch, r.now().UTC())
	filter := bson.M{"id": id, "version": expectedVersion}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Booking
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if err == nil {
		return &updated, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, database.Classify(err, "error updating booking", "booking", id)
	}

	// No match: either the booking is gone or someone else wrote first.
	n, cerr := r.coll.CountDocuments(ctx, bson.M{"id": id})
	if cerr != nil {
		return nil, database.Classify(cerr, "error checking booking", "booking", id)
	}
	if n == 0 {
		return nil, apperror.NotFound("booking", id)
	}
	return nil, apperror.StaleState("booking changed since version %d", expectedVersion).WithBooking(id, "")
}

// buildUpdate translates a patch into $set/$unset/$inc. Identity fields are
// never written because the patch cannot carry them.
func buildUpdate(p models.BookingPatch, now time.Time) bson.M {
	set := bson.M{"updatedAt": now}
	unset := bson.M{}
	if p.Status != nil {
		set["status"] = *p.Status
	}
	if p.ProposedHours != nil {
		set["proposedHours"] = *p.ProposedHours
	}
	if p.ProposedDueDate != nil {
		set["proposedDueDate"] = *p.ProposedDueDate
	}
	if p.ProposedTotal != nil {
		set["proposedTotal"] = *p.ProposedTotal
	}
	if p.ProviderNotes != nil {
		set["providerNotes"] = *p.ProviderNotes
	}
	if p.PaymentIntentID != nil {
		set["paymentIntentId"] = *p.PaymentIntentID
	}
	if p.ConversationID != nil {
		set["conversationId"] = *p.ConversationID
	}
	if p.Claim != nil {
		set["pendingTransition"] = *p.Claim
		set["claimedAt"] = now
	} else if p.ReleaseClaim {
		unset["pendingTransition"] = ""
		unset["claimedAt"] = ""
	}

	update := bson.M{
		"$set": set,
		"$inc": bson.M{"version": 1},
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}
