package booking

import (
	"context"
	"time"

	"gigbook/models"
	"gigbook/services/ledger"
)

// BookingService is the only way a booking changes status.
type BookingService interface {
	Create(ctx context.Context, clientID, clientEmail string, input CreateBookingInput) (*models.Booking, error)
	Get(ctx context.Context, viewerID, bookingID string) (*models.Booking, error)
	ListForClient(ctx context.Context, clientID string) ([]models.Booking, error)
	ListForProvider(ctx context.Context, providerID string) ([]models.Booking, error)
	FindByPaymentIntent(ctx context.Context, actorID, paymentIntentID string) (*models.Booking, error)
	Stats(ctx context.Context, clientID string) (*models.BookingStats, error)
	Reviewable(ctx context.Context, viewerID, bookingID string) (bool, error)
	Conversation(ctx context.Context, viewerID, bookingID string) (*models.ConversationHandle, error)

	Transition(ctx context.Context, req TransitionRequest) (*TransitionResult, error)

	AuthorizePayment(ctx context.Context, actorID string, input AuthorizePaymentInput) (*ledger.AuthorizeResult, error)
	CapturePayment(ctx context.Context, actorID, paymentIntentID string) (*ledger.CaptureResult, error)
	RefundPayment(ctx context.Context, actorID, paymentIntentID, reason string) (*ledger.RefundResult, error)

	Reconcile(ctx context.Context, payload ReconcileInput) error
}

// CreateBookingInput is the client's booking request.
type CreateBookingInput struct {
	ServiceID          string     `json:"serviceId" validate:"required"`
	ServiceTitle       string     `json:"serviceTitle"`
	ServiceProviderID  string     `json:"serviceProviderId" validate:"required"`
	HourlyRate         float64    `json:"hourlyRate" validate:"gte=0"`
	EstimatedHours     float64    `json:"estimatedHours" validate:"gte=0"`
	PreferredStartDate *time.Time `json:"preferredStartDate"`
	Notes              string     `json:"notes" validate:"max=2000"`
	Currency           string     `json:"currency" validate:"omitempty,len=3"`
}

// ProposalInput carries the provider's counter-terms. A zero ProposedTotal is
// derived from the hourly rate.
type ProposalInput struct {
	ProposedHours   float64    `json:"proposedHours" validate:"gt=0"`
	ProposedDueDate *time.Time `json:"proposedDueDate" validate:"required"`
	ProposedTotal   float64    `json:"proposedTotal" validate:"gte=0"`
	ProviderNotes   string     `json:"providerNotes" validate:"max=2000"`
}

type TransitionRequest struct {
	BookingID string
	ActorID   string
	Target    models.BookingStatus
	Proposal  *ProposalInput
	Reason    string
}

type TransitionResult struct {
	Booking *models.Booking `json:"booking"`
	Payment *ledger.Result  `json:"payment,omitempty"`
	// ReviewPrompt is set when the booking just became reviewable.
	ReviewPrompt bool `json:"reviewPrompt"`
	// Duplicate marks an identical resubmission answered without changes.
	Duplicate bool `json:"duplicate,omitempty"`
}

type AuthorizePaymentInput struct {
	BookingID            string   `json:"bookingId" validate:"required"`
	TotalAmount          float64  `json:"totalAmount" validate:"gt=0"`
	Currency             string   `json:"currency"`
	ServiceProviderID    string   `json:"serviceProviderId" validate:"required"`
	ApplicationFeeAmount *float64 `json:"applicationFeeAmount"`
}

type ReconcileInput struct {
	BookingID       string
	PaymentIntentID string
	Target          models.BookingStatus
}
