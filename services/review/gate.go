package review

import (
	"context"

	reviewRepo "gigbook/database/repository/review"
	"gigbook/models"
)

// IsReviewable reports whether booking may still receive a review: it has
// reached awaiting-review or completed and none of reviews is for it.
func IsReviewable(booking *models.Booking, reviews []models.Review) bool {
	if booking == nil {
		return false
	}
	if booking.Status != models.StatusAwaitingReview && booking.Status != models.StatusCompleted {
		return false
	}
	for _, r := range reviews {
		if r.ServiceID == booking.ServiceID && r.TransactionID == booking.ID {
			return false
		}
	}
	return true
}

// Gate evaluates IsReviewable against the stored reviews.
type Gate struct {
	reviews reviewRepo.ReviewRepository
}

func NewGate(reviews reviewRepo.ReviewRepository) *Gate {
	return &Gate{reviews: reviews}
}

func (g *Gate) CheckBooking(ctx context.Context, booking *models.Booking) (bool, error) {
	if booking.Status != models.StatusAwaitingReview && booking.Status != models.StatusCompleted {
		return false, nil
	}
	existing, err := g.reviews.ListForTransaction(ctx, booking.ServiceID, booking.ID)
	if err != nil {
		return false, err
	}
	return IsReviewable(booking, existing), nil
}
