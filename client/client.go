// Package client is a Go SDK for the gigbook HTTP API.
package client

import "go.uber.org/zap"

type Client struct {
	HTTP     *HttpClient
	Bookings *BookingClient
	Payments *PaymentClient
}

func NewClient(baseURL string, creds Credentials) *Client {
	h := NewHttpClient(baseURL, creds)
	return &Client{
		HTTP:     h,
		Bookings: NewBookingClient(h),
		Payments: NewPaymentClient(h),
	}
}

// Feed returns a booking feed sharing this client's credentials.
func (c *Client) Feed(logger *zap.Logger) *Feed {
	return NewFeed(c.HTTP, logger)
}
