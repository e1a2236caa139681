package booking

import (
	"context"
	"testing"

	"gigbook/apperror"
	"gigbook/models"
	"gigbook/services/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.proposed(t)
	fee := 8.0
	valid := AuthorizePaymentInput{
		BookingID:            b.ID,
		TotalAmount:          150,
		Currency:             "SGD",
		ServiceProviderID:    providerID,
		ApplicationFeeAmount: &fee,
	}

	t.Run("rejects mismatched figures", func(t *testing.T) {
		wrongFee := 1.0
		cases := map[string]func(in *AuthorizePaymentInput){
			"amount":   func(in *AuthorizePaymentInput) { in.TotalAmount = 100 },
			"provider": func(in *AuthorizePaymentInput) { in.ServiceProviderID = strangerID },
			"currency": func(in *AuthorizePaymentInput) { in.Currency = "usd" },
			"fee":      func(in *AuthorizePaymentInput) { in.ApplicationFeeAmount = &wrongFee },
		}
		for name, mutate := range cases {
			t.Run(name, func(t *testing.T) {
				in := valid
				mutate(&in)
				_, err := f.svc.AuthorizePayment(ctx, clientID, in)
				assert.ErrorIs(t, err, apperror.ErrValidation)
			})
		}
		assert.Equal(t, 0, f.gw.Calls(ledger.OpAuthorize))
	})

	t.Run("requires the client", func(t *testing.T) {
		_, err := f.svc.AuthorizePayment(ctx, providerID, valid)
		assert.ErrorIs(t, err, apperror.ErrAccessDenied)
		_, err = f.svc.AuthorizePayment(ctx, "", valid)
		assert.ErrorIs(t, err, apperror.ErrAuthRequired)
	})

	res, err := f.svc.AuthorizePayment(ctx, clientID, valid)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), res.Amount)
	assert.Equal(t, models.PaymentRequiresCapture, res.Status)
	assert.NotEmpty(t, res.ClientSecret)
	assert.Equal(t, models.StatusConfirmed, f.stored(t, b.ID).Status)

	again, err := f.svc.AuthorizePayment(ctx, clientID, valid)
	require.NoError(t, err)
	assert.Equal(t, res.PaymentIntentID, again.PaymentIntentID)
	assert.Equal(t, 1, f.gw.Calls(ledger.OpAuthorize))
}

func TestCaptureAndRefundPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.awaitingReview(t)

	_, err := f.svc.CapturePayment(ctx, providerID, b.PaymentIntentID)
	assert.ErrorIs(t, err, apperror.ErrAccessDenied)

	_, err = f.svc.CapturePayment(ctx, clientID, "pi_unknown")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	captured, err := f.svc.CapturePayment(ctx, clientID, b.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSucceeded, captured.Status)
	assert.Equal(t, int64(15000), captured.AmountReceived)

	_, err = f.svc.RefundPayment(ctx, clientID, b.PaymentIntentID, "")
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition, "completed bookings are terminal")
}

func TestRefundPaymentReleasesHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.confirmed(t)

	res, err := f.svc.RefundPayment(ctx, clientID, b.PaymentIntentID, "duplicate")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCanceled, res.Status)
	assert.False(t, res.Captured)
	assert.Equal(t, models.StatusRefunded, f.stored(t, b.ID).Status)
}
