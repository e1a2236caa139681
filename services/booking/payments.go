package booking

import (
	"context"

	"gigbook/apperror"
	"gigbook/models"
	"gigbook/services/ledger"
	"gigbook/utils"
)

// AuthorizePayment is the payment-endpoint form of confirm. The figures the
// client submits must agree with the booking; the booking's own figures are
// what gets authorized.
func (s *DefaultBookingService) AuthorizePayment(ctx context.Context, actorID string, input AuthorizePaymentInput) (*ledger.AuthorizeResult, error) {
	if actorID == "" {
		return nil, apperror.AuthRequired("sign in to pay for a booking")
	}
	if err := s.validate(input); err != nil {
		return nil, err
	}
	b, err := s.load(ctx, input.BookingID)
	if err != nil {
		return nil, annotate(err, input.BookingID, "")
	}
	if b.ClientID != actorID {
		return nil, apperror.AccessDenied("only the booking's client can authorize payment").WithBooking(b.ID, "")
	}
	if input.ServiceProviderID != b.ServiceProviderID {
		return nil, apperror.Validation("serviceProviderId does not match the booking").WithBooking(b.ID, "")
	}
	total := b.AuthoritativeTotal()
	if ledger.ToMinorUnits(input.TotalAmount) != ledger.ToMinorUnits(total) {
		return nil, apperror.Validation("totalAmount %.2f does not match the booking total %.2f", input.TotalAmount, total).WithBooking(b.ID, "")
	}
	currency := ledger.NormalizeCurrency(b.Currency, s.currency())
	if ledger.NormalizeCurrency(input.Currency, currency) != currency {
		return nil, apperror.Validation("currency %s does not match the booking currency %s", input.Currency, currency).WithBooking(b.ID, "")
	}
	if input.ApplicationFeeAmount != nil && ledger.ToMinorUnits(*input.ApplicationFeeAmount) != ledger.PlatformFee(total, s.feeRate()) {
		return nil, apperror.Validation("applicationFeeAmount does not match the platform fee").WithBooking(b.ID, "")
	}

	res, err := s.Transition(ctx, TransitionRequest{BookingID: b.ID, ActorID: actorID, Target: models.StatusConfirmed})
	if err != nil {
		return nil, err
	}
	if res.Payment != nil && res.Payment.Authorize != nil {
		return res.Payment.Authorize, nil
	}
	intent, err := s.retrieve(ctx, res.Booking)
	if err != nil {
		return nil, err
	}
	return &ledger.AuthorizeResult{
		PaymentIntentID: intent.PaymentIntentID,
		Status:          intent.Status,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
	}, nil
}

// CapturePayment is the payment-endpoint form of complete.
func (s *DefaultBookingService) CapturePayment(ctx context.Context, actorID, paymentIntentID string) (*ledger.CaptureResult, error) {
	b, err := s.FindByPaymentIntent(ctx, actorID, paymentIntentID)
	if err != nil {
		return nil, err
	}
	res, err := s.Transition(ctx, TransitionRequest{BookingID: b.ID, ActorID: actorID, Target: models.StatusCompleted})
	if err != nil {
		return nil, err
	}
	if res.Payment != nil && res.Payment.Capture != nil {
		return res.Payment.Capture, nil
	}
	intent, err := s.retrieve(ctx, res.Booking)
	if err != nil {
		return nil, err
	}
	return &ledger.CaptureResult{PaymentIntentID: intent.PaymentIntentID, Status: intent.Status, AmountReceived: intent.AmountReceived}, nil
}

// RefundPayment is the payment-endpoint form of refunded.
func (s *DefaultBookingService) RefundPayment(ctx context.Context, actorID, paymentIntentID, reason string) (*ledger.RefundResult, error) {
	b, err := s.FindByPaymentIntent(ctx, actorID, paymentIntentID)
	if err != nil {
		return nil, err
	}
	res, err := s.Transition(ctx, TransitionRequest{BookingID: b.ID, ActorID: actorID, Target: models.StatusRefunded, Reason: reason})
	if err != nil {
		return nil, err
	}
	if res.Payment != nil && res.Payment.Refund != nil {
		return res.Payment.Refund, nil
	}
	intent, err := s.retrieve(ctx, res.Booking)
	if err != nil {
		return nil, err
	}
	return &ledger.RefundResult{
		PaymentIntentID: intent.PaymentIntentID,
		Status:          intent.Status,
		RefundedAmount:  intent.AmountRefunded,
		Captured:        intent.AmountReceived > 0,
	}, nil
}

func (s *DefaultBookingService) retrieve(ctx context.Context, b *models.Booking) (*models.PaymentAuthorization, error) {
	intent, err := utils.WithAuthRetry(ctx, s.LedgerRefresher, func(ctx context.Context) (*models.PaymentAuthorization, error) {
		return s.Ledger.Retrieve(ctx, b.PaymentIntentID)
	})
	if err != nil {
		return nil, ledgerError(err, b.ID, "")
	}
	return intent, nil
}
