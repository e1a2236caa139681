package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"gigbook/apperror"
	"gigbook/models"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

// stripeBackend is the slice of the Stripe API the gateway uses.
type stripeBackend interface {
	NewIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	GetIntent(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	CaptureIntent(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
	CancelIntent(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
	NewRefund(params *stripe.RefundParams) (*stripe.Refund, error)
}

type apiBackend struct {
	api *client.API
}

func (b apiBackend) NewIntent(p *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return b.api.PaymentIntents.New(p)
}

func (b apiBackend) GetIntent(id string, p *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return b.api.PaymentIntents.Get(id, p)
}

func (b apiBackend) CaptureIntent(id string, p *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error) {
	return b.api.PaymentIntents.Capture(id, p)
}

func (b apiBackend) CancelIntent(id string, p *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	return b.api.PaymentIntents.Cancel(id, p)
}

func (b apiBackend) NewRefund(p *stripe.RefundParams) (*stripe.Refund, error) {
	return b.api.Refunds.New(p)
}

func newAPIBackend(key string) stripeBackend {
	return apiBackend{api: client.New(key, nil)}
}

// KeySource returns the current Stripe secret key.
type KeySource func() (string, error)

// StripeGateway implements Gateway on Stripe Connect destination charges.
type StripeGateway struct {
	keys   KeySource
	logger *zap.Logger

	mu      sync.RWMutex
	key     string
	backend stripeBackend
	connect func(key string) stripeBackend
}

func NewStripeGateway(keys KeySource, logger *zap.Logger) (*StripeGateway, error) {
	g := &StripeGateway{keys: keys, logger: logger, connect: newAPIBackend}
	if err := g.Refresh(context.Background()); err != nil {
		return nil, err
	}
	return g, nil
}

// Refresh re-reads the secret key and rebuilds the client when it changed.
func (g *StripeGateway) Refresh(ctx context.Context) error {
	key, err := g.keys()
	if err != nil {
		return fmt.Errorf("stripe: reading secret key: %w", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if key == g.key && g.backend != nil {
		return nil
	}
	g.key = key
	g.backend = g.connect(key)
	g.logger.Info("stripe client initialised")
	return nil
}

func (g *StripeGateway) api() stripeBackend {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.backend
}

func (g *StripeGateway) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	if req.Amount <= 0 {
		return nil, apperror.Validation("authorization amount must be positive").WithBooking(req.BookingID, "")
	}
	if req.DestinationAccountID == "" {
		return nil, apperror.PaymentGateway(errors.New("provider payout account missing")).WithBooking(req.BookingID, "")
	}

	params := &stripe.PaymentIntentParams{
		Amount:               stripe.Int64(req.Amount),
		Currency:             stripe.String(req.Currency),
		CaptureMethod:        stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		ApplicationFeeAmount: stripe.Int64(req.FeeAmount),
		TransferData: &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(req.DestinationAccountID),
		},
		Description: stripe.String("Payment for booking " + req.BookingID),
	}
	params.Context = ctx
	for k, v := range bookingMetadata(req.BookingID, req.ClientID, req.ProviderID) {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := g.api().NewIntent(params)
	if err != nil {
		return nil, classifyStripe(err, req.BookingID)
	}
	g.logger.Info("payment authorized",
		zap.String("bookingId", req.BookingID),
		zap.String("paymentIntentId", pi.ID),
		zap.Int64("amount", pi.Amount))

	return &AuthorizeResult{
		PaymentIntentID: pi.ID,
		ClientSecret:    pi.ClientSecret,
		Status:          models.PaymentStatus(pi.Status),
		Amount:          pi.Amount,
		Currency:        string(pi.Currency),
	}, nil
}

func (g *StripeGateway) Retrieve(ctx context.Context, paymentIntentID string) (*models.PaymentAuthorization, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")
	pi, err := g.api().GetIntent(paymentIntentID, params)
	if err != nil {
		return nil, classifyStripe(err, "")
	}
	return toAuthorization(pi), nil
}

func (g *StripeGateway) Capture(ctx context.Context, paymentIntentID, idempotencyKey string) (*CaptureResult, error) {
	current, err := g.Retrieve(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}
	if current.Status != models.PaymentRequiresCapture {
		return nil, apperror.InvalidPaymentState("payment intent %s is %s, not capturable", paymentIntentID, current.Status).
			WithBooking(current.BookingID, "")
	}

	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	pi, err := g.api().CaptureIntent(paymentIntentID, params)
	if err != nil {
		return nil, classifyStripe(err, current.BookingID)
	}
	g.logger.Info("payment captured",
		zap.String("bookingId", current.BookingID),
		zap.String("paymentIntentId", pi.ID),
		zap.Int64("amountReceived", pi.AmountReceived))

	return &CaptureResult{
		PaymentIntentID: pi.ID,
		Status:          models.PaymentStatus(pi.Status),
		AmountReceived:  pi.AmountReceived,
	}, nil
}

func (g *StripeGateway) CancelOrRefund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	current, err := g.Retrieve(ctx, req.PaymentIntentID)
	if err != nil {
		return nil, err
	}
	bookingID := req.BookingID
	if bookingID == "" {
		bookingID = current.BookingID
	}

	switch {
	case current.Status == models.PaymentCanceled:
		g.logger.Info("payment hold already released", zap.String("bookingId", bookingID), zap.String("paymentIntentId", current.PaymentIntentID))
		return &RefundResult{PaymentIntentID: current.PaymentIntentID, Status: current.Status}, nil

	case current.Status.Voidable():
		params := &stripe.PaymentIntentCancelParams{
			CancellationReason: stripe.String(cancellationReason(req.Reason)),
		}
		params.Context = ctx
		if req.IdempotencyKey != "" {
			params.SetIdempotencyKey(req.IdempotencyKey)
		}
		pi, err := g.api().CancelIntent(req.PaymentIntentID, params)
		if err != nil {
			return nil, classifyStripe(err, bookingID)
		}
		g.logger.Info("payment hold released", zap.String("bookingId", bookingID), zap.String("paymentIntentId", pi.ID))
		return &RefundResult{PaymentIntentID: pi.ID, Status: models.PaymentStatus(pi.Status)}, nil

	case current.Status == models.PaymentSucceeded:
		params := &stripe.RefundParams{
			PaymentIntent: stripe.String(req.PaymentIntentID),
			Reason:        stripe.String(refundReason(req.Reason)),
		}
		params.Context = ctx
		params.AddMetadata("booking_id", bookingID)
		if req.RequestedBy != "" {
			params.AddMetadata("refund_requested_by", req.RequestedBy)
		}
		if req.Reason != "" && req.Reason != refundReason(req.Reason) {
			params.AddMetadata("refund_note", req.Reason)
		}
		if req.IdempotencyKey != "" {
			params.SetIdempotencyKey(req.IdempotencyKey)
		}
		refund, err := g.api().NewRefund(params)
		if err != nil {
			return nil, classifyStripe(err, bookingID)
		}
		g.logger.Info("payment refunded",
			zap.String("bookingId", bookingID),
			zap.String("refundId", refund.ID),
			zap.Int64("amount", refund.Amount))
		return &RefundResult{
			PaymentIntentID: req.PaymentIntentID,
			Status:          current.Status,
			RefundID:        refund.ID,
			RefundedAmount:  refund.Amount,
			Captured:        true,
		}, nil
	}
	return nil, apperror.InvalidPaymentState("payment intent %s cannot be refunded in status %s", req.PaymentIntentID, current.Status).
		WithBooking(bookingID, "")
}

func toAuthorization(pi *stripe.PaymentIntent) *models.PaymentAuthorization {
	auth := &models.PaymentAuthorization{
		PaymentIntentID:      pi.ID,
		Amount:               pi.Amount,
		AmountReceived:       pi.AmountReceived,
		Currency:             string(pi.Currency),
		Status:               models.PaymentStatus(pi.Status),
		ApplicationFeeAmount: pi.ApplicationFeeAmount,
		BookingID:            pi.Metadata["booking_id"],
	}
	if pi.TransferData != nil && pi.TransferData.Destination != nil {
		auth.DestinationAccountID = pi.TransferData.Destination.ID
	}
	if pi.LatestCharge != nil {
		auth.AmountRefunded = pi.LatestCharge.AmountRefunded
	}
	return auth
}

var (
	refundReasons = map[string]bool{"duplicate": true, "fraudulent": true, "requested_by_customer": true}
	cancelReasons = map[string]bool{"duplicate": true, "fraudulent": true, "requested_by_customer": true, "abandoned": true}
)

func refundReason(reason string) string {
	if refundReasons[reason] {
		return reason
	}
	return DefaultRefundReason
}

func cancellationReason(reason string) string {
	if cancelReasons[reason] {
		return reason
	}
	return DefaultRefundReason
}

// classifyStripe maps Stripe API errors onto the apperror taxonomy.
func classifyStripe(err error, bookingID string) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return apperror.PaymentGateway(err).WithBooking(bookingID, "")
	}
	switch {
	case se.HTTPStatusCode == http.StatusUnauthorized:
		return apperror.AuthExpired(err).WithBooking(bookingID, "")
	case se.Code == stripe.ErrorCodeResourceMissing || se.HTTPStatusCode == http.StatusNotFound:
		return apperror.NotFound("payment intent", "").WithBooking(bookingID, "")
	case se.Code == stripe.ErrorCodePaymentIntentUnexpectedState:
		return apperror.InvalidPaymentState("%s", se.Msg).WithBooking(bookingID, "")
	}
	return apperror.PaymentGateway(err).WithBooking(bookingID, "")
}
