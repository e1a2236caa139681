package models

import "time"

// Conversation is a chat thread between two users, optionally about a service.
type Conversation struct {
	ID             string     `bson:"id" json:"id"`
	PairKey        string     `bson:"pairKey" json:"-"`
	Participant1ID string     `bson:"participant1Id" json:"participant1Id"`
	Participant2ID string     `bson:"participant2Id" json:"participant2Id"`
	ServiceID      string     `bson:"serviceId,omitempty" json:"serviceId,omitempty"`
	ServiceTitle   string     `bson:"serviceTitle,omitempty" json:"serviceTitle,omitempty"`
	LastMessageAt  *time.Time `bson:"lastMessageAt,omitempty" json:"lastMessageAt,omitempty"`
	CreatedAt      time.Time  `bson:"createdAt" json:"createdAt"`
}

// ConversationHandle is what the booking core keeps of a conversation.
type ConversationHandle struct {
	ID  string `json:"id"`
	New bool   `json:"new"`
}
