package models

import "time"

type PaymentStatus string

const (
	PaymentRequiresPaymentMethod PaymentStatus = "requires_payment_method"
	PaymentRequiresConfirmation  PaymentStatus = "requires_confirmation"
	PaymentRequiresAction        PaymentStatus = "requires_action"
	PaymentRequiresCapture       PaymentStatus = "requires_capture"
	PaymentSucceeded             PaymentStatus = "succeeded"
	PaymentCanceled              PaymentStatus = "canceled"
)

// Voidable reports whether an intent in this status can still be cancelled
// without moving funds.
func (s PaymentStatus) Voidable() bool {
	switch s {
	case PaymentRequiresPaymentMethod, PaymentRequiresConfirmation, PaymentRequiresAction, PaymentRequiresCapture:
		return true
	}
	return false
}

// PaymentAuthorization mirrors a payment intent held by the ledger. The booking
// store keeps only PaymentIntentID.
type PaymentAuthorization struct {
	PaymentIntentID      string        `json:"paymentIntentId"`
	Amount               int64         `json:"amount"`
	AmountReceived       int64         `json:"amountReceived"`
	AmountRefunded       int64         `json:"amountRefunded"`
	Currency             string        `json:"currency"`
	Status               PaymentStatus `json:"status"`
	DestinationAccountID string        `json:"destinationAccountId"`
	ApplicationFeeAmount int64         `json:"applicationFeeAmount"`
	BookingID            string        `json:"bookingId"`
}

// PayoutAccount links a provider to the connected account that receives payouts.
type PayoutAccount struct {
	ProviderID         string    `bson:"providerId" json:"providerId"`
	ConnectedAccountID string    `bson:"connectedAccountId" json:"connectedAccountId"`
	CreatedAt          time.Time `bson:"createdAt" json:"createdAt"`
}
