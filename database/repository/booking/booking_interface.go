package bookingRepo

import (
	"context"

	"gigbook/apperror"
	"gigbook/models"
)

// BookingRepository persists bookings. Update is atomic per record and
// conditioned on the version the caller last read.
type BookingRepository interface {
	Create(ctx context.Context, booking *models.Booking) error
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Booking, error)
	ListByClient(ctx context.Context, clientID string) ([]models.Booking, error)
	ListByProvider(ctx context.Context, providerID string) ([]models.Booking, error)
	// Update applies patch when the stored version equals expectedVersion and
	// returns the new record. Unknown ids fail with NotFound, version
	// mismatches with StaleState.
	Update(ctx context.Context, id string, expectedVersion int64, patch models.BookingPatch) (*models.Booking, error)
	// Watch streams every change until ctx is done.
	Watch(ctx context.Context) (<-chan models.BookingEvent, error)
}

func validateNew(b *models.Booking) error {
	switch {
	case b.ID == "":
		return apperror.Validation("booking id is required")
	case b.ClientID == "" || b.ServiceProviderID == "" || b.ServiceID == "":
		return apperror.Validation("clientId, serviceProviderId and serviceId are required").WithBooking(b.ID, "")
	case b.TotalEstimate < 0 || b.ProposedTotal < 0:
		return apperror.Validation("totals must be non-negative").WithBooking(b.ID, "")
	}
	return nil
}

func validatePatch(id string, p models.BookingPatch) error {
	if p.IsEmpty() {
		return apperror.Validation("empty patch").WithBooking(id, "")
	}
	if p.ProposedTotal != nil && *p.ProposedTotal < 0 {
		return apperror.Validation("proposedTotal must be non-negative").WithBooking(id, "")
	}
	if p.ProposedHours != nil && *p.ProposedHours < 0 {
		return apperror.Validation("proposedHours must be non-negative").WithBooking(id, "")
	}
	if p.Status != nil && !p.Status.Valid() {
		return apperror.Validation("unknown status %q", *p.Status).WithBooking(id, "")
	}
	return nil
}
