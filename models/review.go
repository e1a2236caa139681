package models

import "time"

// Review is written by the external reviews service; the booking core only reads it.
type Review struct {
	ID            string    `bson:"id" json:"id"`
	ServiceID     string    `bson:"serviceId" json:"serviceId"`
	TransactionID string    `bson:"transactionId" json:"transactionId"` // booking id
	ReviewerID    string    `bson:"reviewerId" json:"reviewerId"`
	Rating        int       `bson:"rating" json:"rating"`
	Comment       string    `bson:"comment,omitempty" json:"comment,omitempty"`
	CreatedAt     time.Time `bson:"createdAt" json:"createdAt"`
}
