package client

import (
	"context"

	"gigbook/services/booking"
	"gigbook/services/ledger"
)

type PaymentClient struct {
	httpClient *HttpClient
}

func NewPaymentClient(httpClient *HttpClient) *PaymentClient {
	return &PaymentClient{httpClient: httpClient}
}

// Authorize places the escrow hold and confirms the booking.
func (c *PaymentClient) Authorize(ctx context.Context, input booking.AuthorizePaymentInput) (*ledger.AuthorizeResult, error) {
	var out ledger.AuthorizeResult
	if err := c.httpClient.POST(ctx, "/api/payments/authorize", input, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Capture releases held funds to the provider and completes the booking.
func (c *PaymentClient) Capture(ctx context.Context, paymentIntentID string) (*ledger.CaptureResult, error) {
	var out ledger.CaptureResult
	body := map[string]string{"paymentIntentId": paymentIntentID}
	if err := c.httpClient.POST(ctx, "/api/payments/capture", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *PaymentClient) Refund(ctx context.Context, paymentIntentID, reason string) (*ledger.RefundResult, error) {
	var out ledger.RefundResult
	body := map[string]string{"paymentIntentId": paymentIntentID, "reason": reason}
	if err := c.httpClient.POST(ctx, "/api/payments/refund", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
