package models

import "time"

type BookingStatus string

const (
	StatusPending        BookingStatus = "pending"
	StatusPendingBuyer   BookingStatus = "pending-buyer"
	StatusConfirmed      BookingStatus = "confirmed"
	StatusInProgress     BookingStatus = "in-progress"
	StatusAwaitingReview BookingStatus = "awaiting-review"
	StatusCompleted      BookingStatus = "completed"
	StatusDeclined       BookingStatus = "declined"
	StatusCancelled      BookingStatus = "cancelled"
	StatusDisputed       BookingStatus = "disputed"
	StatusRefunded       BookingStatus = "refunded"
)

var AllStatuses = []BookingStatus{
	StatusPending, StatusPendingBuyer, StatusConfirmed, StatusInProgress, StatusAwaitingReview,
	StatusCompleted, StatusDeclined, StatusCancelled, StatusDisputed, StatusRefunded,
}

// IsTerminal reports whether no transition leaves s.
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusDeclined, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

func (s BookingStatus) Valid() bool {
	for _, st := range AllStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// Booking is a client's request for a provider's service and everything the
// negotiation and payment flow attaches to it.
type Booking struct {
	ID                string `bson:"id" json:"id"`
	ServiceID         string `bson:"serviceId" json:"serviceId"`
	ServiceTitle      string `bson:"serviceTitle" json:"serviceTitle"`
	ServiceProviderID string `bson:"serviceProviderId" json:"serviceProviderId"`
	ClientID          string `bson:"clientId" json:"clientId"`
	ClientEmail       string `bson:"clientEmail,omitempty" json:"clientEmail,omitempty"`

	// Amounts are in major currency units.
	HourlyRate         float64    `bson:"hourlyRate" json:"hourlyRate"`
	EstimatedHours     float64    `bson:"estimatedHours" json:"estimatedHours"`
	TotalEstimate      float64    `bson:"totalEstimate" json:"totalEstimate"`
	ProposedHours      float64    `bson:"proposedHours,omitempty" json:"proposedHours,omitempty"`
	ProposedDueDate    *time.Time `bson:"proposedDueDate,omitempty" json:"proposedDueDate,omitempty"`
	ProposedTotal      float64    `bson:"proposedTotal,omitempty" json:"proposedTotal,omitempty"`
	ProviderNotes      string     `bson:"providerNotes,omitempty" json:"providerNotes,omitempty"`
	Notes              string     `bson:"notes,omitempty" json:"notes,omitempty"`
	PreferredStartDate *time.Time `bson:"preferredStartDate,omitempty" json:"preferredStartDate,omitempty"`
	Currency           string     `bson:"currency" json:"currency"`

	Status          BookingStatus `bson:"status" json:"status"`
	PaymentIntentID string        `bson:"paymentIntentId,omitempty" json:"paymentIntentId,omitempty"`
	ConversationID  string        `bson:"conversationId,omitempty" json:"conversationId,omitempty"`

	// Version increases by one on every write and guards conditional updates.
	Version int64 `bson:"version" json:"version"`
	// PendingTransition names the in-flight financial transition holding the booking.
	PendingTransition string     `bson:"pendingTransition,omitempty" json:"pendingTransition,omitempty"`
	ClaimedAt         *time.Time `bson:"claimedAt,omitempty" json:"claimedAt,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// HasProposal reports whether the provider has submitted counter-terms.
func (b *Booking) HasProposal() bool {
	return b.ProposedTotal > 0
}

// AuthoritativeTotal is the amount payment is taken for: the proposed total
// once a proposal exists, the creation estimate otherwise.
func (b *Booking) AuthoritativeTotal() float64 {
	if b.HasProposal() {
		return b.ProposedTotal
	}
	return b.TotalEstimate
}

// IsParty reports whether userID is the client or the provider of b.
func (b *Booking) IsParty(userID string) bool {
	return userID != "" && (userID == b.ClientID || userID == b.ServiceProviderID)
}

// Claimed reports whether an unexpired transition claim holds the booking.
func (b *Booking) Claimed(now time.Time, ttl time.Duration) bool {
	if b.PendingTransition == "" || b.ClaimedAt == nil {
		return false
	}
	return now.Sub(*b.ClaimedAt) < ttl
}

// BookingPatch lists the fields a transition may change. Identity fields
// (clientId, serviceProviderId, serviceId) have no entry and can never be patched.
type BookingPatch struct {
	Status          *BookingStatus
	ProposedHours   *float64
	ProposedDueDate *time.Time
	ProposedTotal   *float64
	ProviderNotes   *string
	PaymentIntentID *string
	ConversationID  *string

	// Claim sets PendingTransition and ClaimedAt; ReleaseClaim clears both.
	Claim        *string
	ReleaseClaim bool
}

func (p BookingPatch) IsEmpty() bool {
	return p.Status == nil && p.ProposedHours == nil && p.ProposedDueDate == nil &&
		p.ProposedTotal == nil && p.ProviderNotes == nil && p.PaymentIntentID == nil &&
		p.ConversationID == nil && p.Claim == nil && !p.ReleaseClaim
}

// Apply mutates b in place. It does not touch Version or UpdatedAt.
func (p BookingPatch) Apply(b *Booking, now time.Time) {
	if p.Status != nil {
		b.Status = *p.Status
	}
	if p.ProposedHours != nil {
		b.ProposedHours = *p.ProposedHours
	}
	if p.ProposedDueDate != nil {
		d := *p.ProposedDueDate
		b.ProposedDueDate = &d
	}
	if p.ProposedTotal != nil {
		b.ProposedTotal = *p.ProposedTotal
	}
	if p.ProviderNotes != nil {
		b.ProviderNotes = *p.ProviderNotes
	}
	if p.PaymentIntentID != nil {
		b.PaymentIntentID = *p.PaymentIntentID
	}
	if p.ConversationID != nil {
		b.ConversationID = *p.ConversationID
	}
	if p.ReleaseClaim {
		b.PendingTransition = ""
		b.ClaimedAt = nil
	}
	if p.Claim != nil {
		b.PendingTransition = *p.Claim
		t := now
		b.ClaimedAt = &t
	}
}

// BookingStats summarises a client's bookings.
type BookingStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Confirmed int `json:"confirmed"`
	Completed int `json:"completed"`
}
