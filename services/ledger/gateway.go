// Package ledger moves escrowed money through the payment processor. It
// never writes booking state; the booking service decides what a result means.
package ledger

import (
	"context"
	"strings"

	"gigbook/models"

	"github.com/shopspring/decimal"
)

const DefaultRefundReason = "requested_by_customer"

// Gateway holds, captures and releases funds for a booking.
type Gateway interface {
	// Authorize places a manual-capture hold routed to the provider's account.
	Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error)
	// Capture settles a hold. It fails with InvalidPaymentState unless the
	// intent is requires_capture.
	Capture(ctx context.Context, paymentIntentID, idempotencyKey string) (*CaptureResult, error)
	// CancelOrRefund releases a hold before capture and refunds after it.
	CancelOrRefund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	Retrieve(ctx context.Context, paymentIntentID string) (*models.PaymentAuthorization, error)
}

type AuthorizeRequest struct {
	BookingID            string
	ClientID             string
	ProviderID           string
	Amount               int64 // minor units
	Currency             string
	DestinationAccountID string
	FeeAmount            int64 // minor units
	IdempotencyKey       string
}

type AuthorizeResult struct {
	PaymentIntentID string               `json:"paymentIntentId"`
	ClientSecret    string               `json:"clientSecret"`
	Status          models.PaymentStatus `json:"status"`
	Amount          int64                `json:"amount"`
	Currency        string               `json:"currency"`
}

type CaptureResult struct {
	PaymentIntentID string               `json:"paymentIntentId"`
	Status          models.PaymentStatus `json:"status"`
	AmountReceived  int64                `json:"amountReceived"`
}

type RefundRequest struct {
	PaymentIntentID string
	BookingID       string
	RequestedBy     string
	Reason          string
	IdempotencyKey  string
}

type RefundResult struct {
	PaymentIntentID string               `json:"paymentIntentId"`
	Status          models.PaymentStatus `json:"status"`
	RefundID        string               `json:"refundId,omitempty"`
	RefundedAmount  int64                `json:"refundedAmount"`
	// Captured is false when only a hold was released.
	Captured bool `json:"captured"`
}

// Result is the ledger outcome attached to a booking transition.
type Result struct {
	Authorize *AuthorizeResult `json:"authorize,omitempty"`
	Capture   *CaptureResult   `json:"capture,omitempty"`
	Refund    *RefundResult    `json:"refund,omitempty"`
}

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts a major-unit amount to minor units, rounding half away from zero.
func ToMinorUnits(major float64) int64 {
	return decimal.NewFromFloat(major).Mul(hundred).Round(0).IntPart()
}

// ToMajorUnits converts minor units back to a major-unit amount.
func ToMajorUnits(minor int64) float64 {
	f, _ := decimal.NewFromInt(minor).Div(hundred).Float64()
	return f
}

// PlatformFee is the application fee in minor units: the total times rate,
// rounded to a whole major unit.
func PlatformFee(totalMajor, rate float64) int64 {
	whole := decimal.NewFromFloat(totalMajor).Mul(decimal.NewFromFloat(rate)).Round(0)
	return whole.Mul(hundred).IntPart()
}

// NormalizeCurrency lower-cases code and falls back to def when empty.
func NormalizeCurrency(code, def string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return strings.ToLower(def)
	}
	return code
}

// metadata recorded on every mutating call so ledger and store can be reconciled.
func bookingMetadata(bookingID, clientID, providerID string) map[string]string {
	md := map[string]string{"booking_id": bookingID}
	if clientID != "" {
		md["client_id"] = clientID
	}
	if providerID != "" {
		md["service_provider_id"] = providerID
	}
	return md
}
