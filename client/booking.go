package client

import (
	"context"
	"net/url"

	"gigbook/models"
	"gigbook/services/booking"
	"gigbook/services/ledger"
)

// BookingView is a booking as the API returns it, with the statuses the
// caller may move it to.
type BookingView struct {
	models.Booking
	AllowedTargets []models.BookingStatus `json:"allowedTargets"`
}

type TransitionBody struct {
	TargetStatus models.BookingStatus   `json:"targetStatus"`
	Proposal     *booking.ProposalInput `json:"proposal,omitempty"`
	Reason       string                 `json:"reason,omitempty"`
}

type TransitionResponse struct {
	Booking      BookingView    `json:"booking"`
	Payment      *ledger.Result `json:"payment,omitempty"`
	ReviewPrompt bool           `json:"reviewPrompt"`
	Duplicate    bool           `json:"duplicate"`
}

type BookingClient struct {
	httpClient *HttpClient
}

func NewBookingClient(httpClient *HttpClient) *BookingClient {
	return &BookingClient{httpClient: httpClient}
}

func bookingPath(id string) string {
	return "/api/bookings/" + url.PathEscape(id)
}

func (c *BookingClient) Create(ctx context.Context, input booking.CreateBookingInput) (*BookingView, error) {
	var out BookingView
	if err := c.httpClient.POST(ctx, "/api/bookings", input, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns the caller's bookings as client or provider.
func (c *BookingClient) List(ctx context.Context, role string) ([]BookingView, error) {
	q := url.Values{}
	q.Set("role", role)
	var out struct {
		Bookings []BookingView `json:"bookings"`
	}
	if err := c.httpClient.GET(ctx, "/api/bookings?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Bookings, nil
}

func (c *BookingClient) Get(ctx context.Context, id string) (*BookingView, error) {
	var out BookingView
	if err := c.httpClient.GET(ctx, bookingPath(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *BookingClient) Stats(ctx context.Context) (*models.BookingStats, error) {
	var out models.BookingStats
	if err := c.httpClient.GET(ctx, "/api/bookings/stats", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *BookingClient) Transition(ctx context.Context, id string, body TransitionBody) (*TransitionResponse, error) {
	var out TransitionResponse
	if err := c.httpClient.POST(ctx, bookingPath(id)+"/transitions", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *BookingClient) to(ctx context.Context, id string, target models.BookingStatus, reason string) (*TransitionResponse, error) {
	return c.Transition(ctx, id, TransitionBody{TargetStatus: target, Reason: reason})
}

func (c *BookingClient) Propose(ctx context.Context, id string, proposal booking.ProposalInput) (*TransitionResponse, error) {
	return c.Transition(ctx, id, TransitionBody{TargetStatus: models.StatusPendingBuyer, Proposal: &proposal})
}

func (c *BookingClient) Decline(ctx context.Context, id string) (*TransitionResponse, error) {
	return c.to(ctx, id, models.StatusDeclined, "")
}

func (c *BookingClient) StartWork(ctx context.Context, id string) (*TransitionResponse, error) {
	return c.to(ctx, id, models.StatusInProgress, "")
}

func (c *BookingClient) MarkAwaitingReview(ctx context.Context, id string) (*TransitionResponse, error) {
	return c.to(ctx, id, models.StatusAwaitingReview, "")
}

func (c *BookingClient) Complete(ctx context.Context, id string) (*TransitionResponse, error) {
	return c.to(ctx, id, models.StatusCompleted, "")
}

func (c *BookingClient) Dispute(ctx context.Context, id, reason string) (*TransitionResponse, error) {
	return c.to(ctx, id, models.StatusDisputed, reason)
}

func (c *BookingClient) Cancel(ctx context.Context, id, reason string) (*TransitionResponse, error) {
	return c.to(ctx, id, models.StatusCancelled, reason)
}

func (c *BookingClient) Refund(ctx context.Context, id, reason string) (*TransitionResponse, error) {
	return c.to(ctx, id, models.StatusRefunded, reason)
}

func (c *BookingClient) Reviewable(ctx context.Context, id string) (bool, error) {
	var out struct {
		Reviewable bool `json:"reviewable"`
	}
	if err := c.httpClient.GET(ctx, bookingPath(id)+"/reviewable", &out); err != nil {
		return false, err
	}
	return out.Reviewable, nil
}

func (c *BookingClient) Conversation(ctx context.Context, id string) (*models.ConversationHandle, error) {
	var out models.ConversationHandle
	if err := c.httpClient.GET(ctx, bookingPath(id)+"/conversation", &out); err != nil {
		return nil, err
	}
	return &out, nil
}
