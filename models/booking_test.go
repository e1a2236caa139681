package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBooking_AuthoritativeTotal(t *testing.T) {
	b := &Booking{TotalEstimate: 100}
	assert.Equal(t, 100.0, b.AuthoritativeTotal())

	b.ProposedTotal = 150
	assert.Equal(t, 150.0, b.AuthoritativeTotal())
}

func TestBookingStatus_IsTerminal(t *testing.T) {
	terminal := map[BookingStatus]bool{
		StatusCompleted: true,
		StatusDeclined:  true,
		StatusCancelled: true,
		StatusRefunded:  true,
	}
	for _, s := range AllStatuses {
		assert.Equal(t, terminal[s], s.IsTerminal(), string(s))
		assert.True(t, s.Valid())
	}
	assert.False(t, BookingStatus("payment-authorized").Valid())
}

func TestBooking_Claimed(t *testing.T) {
	now := time.Now()
	old := now.Add(-5 * time.Minute)

	b := &Booking{}
	assert.False(t, b.Claimed(now, time.Minute))

	b.PendingTransition = "confirmed"
	b.ClaimedAt = &now
	assert.True(t, b.Claimed(now, time.Minute))

	b.ClaimedAt = &old
	assert.False(t, b.Claimed(now, time.Minute))
}

func TestBookingPatch_Apply(t *testing.T) {
	now := time.Now()
	status := StatusConfirmed
	pi := "pi_1"
	claim := "confirmed"

	b := &Booking{ID: "b1", ClientID: "c1", Status: StatusPendingBuyer}

	BookingPatch{Claim: &claim}.Apply(b, now)
	assert.Equal(t, "confirmed", b.PendingTransition)
	assert.NotNil(t, b.ClaimedAt)

	BookingPatch{Status: &status, PaymentIntentID: &pi, ReleaseClaim: true}.Apply(b, now)
	assert.Equal(t, StatusConfirmed, b.Status)
	assert.Equal(t, "pi_1", b.PaymentIntentID)
	assert.Empty(t, b.PendingTransition)
	assert.Nil(t, b.ClaimedAt)
	assert.Equal(t, "c1", b.ClientID)
}

func TestBookingPatch_IsEmpty(t *testing.T) {
	assert.True(t, BookingPatch{}.IsEmpty())
	assert.False(t, BookingPatch{ReleaseClaim: true}.IsEmpty())
}
