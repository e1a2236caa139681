package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gigbook/apperror"
	bookingRepo "gigbook/database/repository/booking"
	conversationRepo "gigbook/database/repository/conversation"
	payoutRepo "gigbook/database/repository/payout"
	reviewRepo "gigbook/database/repository/review"
	"gigbook/handlers"
	"gigbook/models"
	"gigbook/routes"
	"gigbook/services/booking"
	"gigbook/services/conversation"
	"gigbook/services/ledger"
	"gigbook/services/realtime"
	"gigbook/services/review"
	"gigbook/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const secret = "sdk-test-secret"

type stack struct {
	url    string
	tokens *utils.TokenManager
	gw     *ledger.MemoryGateway
}

func newStack(t *testing.T) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	ctx, cancel := context.WithCancel(context.Background())

	store := bookingRepo.NewMemoryBookingRepo()
	payouts := payoutRepo.NewMemoryPayoutAccountRepo()
	require.NoError(t, payouts.Upsert(ctx, &models.PayoutAccount{ProviderID: "provider-1", ConnectedAccountID: "acct_1"}))
	gw := ledger.NewMemoryGateway()
	svc := &booking.DefaultBookingService{
		Store:         store,
		Ledger:        gw,
		Payouts:       payouts,
		Conversations: conversation.NewBridge(conversationRepo.NewMemoryConversationRepo(), logger),
		Reviews:       review.NewGate(reviewRepo.NewMemoryReviewRepo()),
		Deduper:       booking.NewMemoryDeduper(),
		Logger:        logger,
	}

	hub := realtime.NewBookingHub(logger)
	go hub.Follow(ctx, store.Watch, 10*time.Millisecond, 100*time.Millisecond)

	tokens := utils.NewTokenManager(secret, time.Hour, 24*time.Hour)
	hb := handlers.NewHandlerBundle(
		handlers.NewBookingHandler(svc, hub),
		handlers.NewPaymentHandler(svc),
		handlers.NewAuthHandler(tokens, utils.NewMemoryTokenRevoker()),
		utils.NewHealthMonitor(nil),
	)
	r := gin.New()
	r.Use(utils.ErrorHandler())
	routes.RegisterRoutes(r, hb)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &stack{url: srv.URL, tokens: tokens, gw: gw}
}

func (s *stack) client(t *testing.T, userID string) *Client {
	t.Helper()
	pair, err := s.tokens.GeneratePair(userID)
	require.NoError(t, err)
	return NewClient(s.url, Credentials{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func TestLifecycle(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	buyer := s.client(t, "client-1")
	seller := s.client(t, "provider-1")

	created, err := buyer.Bookings.Create(ctx, booking.CreateBookingInput{
		ServiceID: "svc-1", ServiceTitle: "Logo design", ServiceProviderID: "provider-1", HourlyRate: 40, EstimatedHours: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, created.Status)
	assert.Equal(t, []models.BookingStatus{models.StatusCancelled}, created.AllowedTargets)

	due := time.Now().Add(72 * time.Hour)
	proposed, err := seller.Bookings.Propose(ctx, created.ID, booking.ProposalInput{ProposedHours: 3, ProposedDueDate: &due})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingBuyer, proposed.Booking.Status)
	assert.Equal(t, 120.0, proposed.Booking.ProposedTotal)

	auth, err := buyer.Payments.Authorize(ctx, booking.AuthorizePaymentInput{
		BookingID: created.ID, TotalAmount: 120, Currency: "sgd", ServiceProviderID: "provider-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12000), auth.Amount)

	_, err = seller.Bookings.StartWork(ctx, created.ID)
	require.NoError(t, err)
	_, err = seller.Bookings.MarkAwaitingReview(ctx, created.ID)
	require.NoError(t, err)

	captured, err := buyer.Payments.Capture(ctx, auth.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSucceeded, captured.Status)
	assert.Equal(t, 1, s.gw.Calls(ledger.OpCapture))

	got, err := seller.Bookings.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Empty(t, got.AllowedTargets)

	ok, err := buyer.Bookings.Reviewable(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	thread, err := buyer.Bookings.Conversation(ctx, created.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, thread.ID)

	stats, err := buyer.Bookings.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Completed)

	list, err := seller.Bookings.List(ctx, "provider")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestTypedErrors(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	buyer := s.client(t, "client-1")

	_, err := buyer.Bookings.Get(ctx, "missing")
	assert.True(t, errors.Is(err, apperror.ErrNotFound), err)

	created, err := buyer.Bookings.Create(ctx, booking.CreateBookingInput{ServiceID: "svc-1", ServiceProviderID: "provider-1", HourlyRate: 10})
	require.NoError(t, err)

	_, err = buyer.Bookings.Complete(ctx, created.ID)
	require.Error(t, err)
	appErr := apperror.As(err)
	assert.Equal(t, apperror.KindInvalidTransition, appErr.Kind)
	assert.Equal(t, created.ID, appErr.BookingID)
	assert.Equal(t, "pending->completed", appErr.Transition)

	_, err = buyer.Bookings.Decline(ctx, created.ID)
	assert.True(t, errors.Is(err, apperror.ErrAccessDenied), err)
}

func TestRefreshOnExpiredToken(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	expiredIssuer := utils.NewTokenManager(secret, -time.Minute, time.Hour)
	expired, _, err := expiredIssuer.GenerateToken("client-1", utils.TokenTypeAccess)
	require.NoError(t, err)
	refresh, _, err := s.tokens.GenerateToken("client-1", utils.TokenTypeRefresh)
	require.NoError(t, err)

	c := NewClient(s.url, Credentials{AccessToken: expired, RefreshToken: refresh})
	var rotated []utils.TokenPair
	c.HTTP.OnRefresh = func(p utils.TokenPair) { rotated = append(rotated, p) }

	list, err := c.Bookings.List(ctx, "client")
	require.NoError(t, err)
	assert.Empty(t, list)
	require.Len(t, rotated, 1)
	assert.Equal(t, rotated[0].AccessToken, c.HTTP.Credentials().AccessToken)
	assert.NotEqual(t, refresh, c.HTTP.Credentials().RefreshToken)
}

func TestRefreshFailureSurfacesOriginalError(t *testing.T) {
	s := newStack(t)
	c := NewClient(s.url, Credentials{AccessToken: "garbage"})

	_, err := c.Bookings.List(context.Background(), "client")
	assert.True(t, apperror.IsAuth(err), err)
}

func TestFeedFollowsChanges(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	buyer := s.client(t, "client-1")

	first, err := buyer.Bookings.Create(ctx, booking.CreateBookingInput{ServiceID: "svc-1", ServiceProviderID: "provider-1", HourlyRate: 10})
	require.NoError(t, err)

	feed := s.client(t, "provider-1").Feed(zap.NewNop())
	feedCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- feed.Run(feedCtx) }()

	require.Eventually(t, func() bool {
		_, ok := feed.Index().Get(first.ID)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	_, err = buyer.Bookings.Cancel(ctx, first.ID, "changed my mind")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		b, _ := feed.Index().Get(first.ID)
		return b.Status == models.StatusCancelled
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop")
	}
}

func TestReadEvents(t *testing.T) {
	stream := strings.Join([]string{
		"event:ping",
		"data:1700000000",
		"",
		"event:booking",
		`data:{"eventType":"updated","booking":{"id":"b1","status":"confirmed"}}`,
		"",
		"",
	}, "\n")
	out := make(chan models.BookingEvent, 4)
	err := readEvents(context.Background(), strings.NewReader(stream), out)
	assert.EqualError(t, err, "booking stream closed by server")
	close(out)

	var got []models.BookingEvent
	for ev := range out {
		got = append(got, ev)
	}
	require.Len(t, got, 1)
	assert.Equal(t, models.ChangeUpdated, got[0].Type)
	assert.Equal(t, "b1", got[0].Entity.ID)
	assert.Equal(t, models.StatusConfirmed, got[0].Entity.Status)
}
