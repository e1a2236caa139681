package bookingRepo

import (
	"context"
	"errors"

	"gigbook/database"
	"gigbook/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// changeStreamHistoryLost is returned when a resume token has fallen off the oplog.
const changeStreamHistoryLost = 286

type changeDoc struct {
	OperationType            string          `bson:"operationType"`
	FullDocument             *models.Booking `bson:"fullDocument"`
	FullDocumentBeforeChange *models.Booking `bson:"fullDocumentBeforeChange"`
}

// Watch opens a change stream on the bookings collection. Deletes are only
// reported when the collection has pre-images enabled. A stream opened after
// an earlier one ended resumes after the last change that one delivered.
func (r *MongoBookingRepo) Watch(ctx context.Context) (<-chan models.BookingEvent, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"operationType": bson.M{"$in": bson.A{"insert", "update", "replace", "delete"}},
		}}},
	}
	opts := options.ChangeStream().
		SetFullDocument(options.UpdateLookup).
		SetFullDocumentBeforeChange(options.WhenAvailable)
	if token := r.resumeToken(); token != nil {
		opts.SetResumeAfter(token)
	}

	stream, err := r.coll.Watch(ctx, pipeline, opts)
	if err != nil {
		if historyLost(err) {
			r.logger.Warn("booking resume token expired, next watch starts from now", zap.Error(err))
			r.setResumeToken(nil)
		}
		return nil, database.Classify(err, "error opening booking change stream", "booking", "")
	}

	out := make(chan models.BookingEvent, 64)
	go func() {
		defer close(out)
		defer stream.Close(context.Background())

		for stream.Next(ctx) {
			var doc changeDoc
			if err := stream.Decode(&doc); err != nil {
				r.logger.Warn("undecodable booking change", zap.Error(err))
				r.setResumeToken(stream.ResumeToken())
				continue
			}
			ev, ok := toEvent(doc)
			if ok {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
			r.setResumeToken(stream.ResumeToken())
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			if historyLost(err) {
				r.setResumeToken(nil)
			}
			r.logger.Error("booking change stream stopped", zap.Error(err))
		}
	}()
	return out, nil
}

func (r *MongoBookingRepo) resumeToken() bson.Raw {
	r.resumeMu.Lock()
	defer r.resumeMu.Unlock()
	return r.resume
}

func (r *MongoBookingRepo) setResumeToken(token bson.Raw) {
	r.resumeMu.Lock()
	defer r.resumeMu.Unlock()
	if token == nil {
		r.resume = nil
		return
	}
	r.resume = append(bson.Raw(nil), token...)
}

func historyLost(err error) bool {
	var srvErr mongo.ServerError
	if errors.As(err, &srvErr) {
		return srvErr.HasErrorCode(changeStreamHistoryLost)
	}
	return false
}

func toEvent(doc changeDoc) (models.BookingEvent, bool) {
	switch doc.OperationType {
	case "insert":
		if doc.FullDocument == nil {
			return models.BookingEvent{}, false
		}
		return models.BookingEvent{Type: models.ChangeCreated, Entity: *doc.FullDocument}, true
	case "update", "replace":
		if doc.FullDocument == nil {
			return models.BookingEvent{}, false
		}
		return models.BookingEvent{Type: models.ChangeUpdated, Entity: *doc.FullDocument}, true
	case "delete":
		if doc.FullDocumentBeforeChange == nil {
			return models.BookingEvent{}, false
		}
		return models.BookingEvent{Type: models.ChangeDeleted, Entity: *doc.FullDocumentBeforeChange}, true
	}
	return models.BookingEvent{}, false
}
