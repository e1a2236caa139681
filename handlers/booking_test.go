package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	bookingRepo "gigbook/database/repository/booking"
	"gigbook/models"
	"gigbook/services/booking"
	"gigbook/services/realtime"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// streamRecorder is a ResponseRecorder safe to read while a handler streams
// into it, and a CloseNotifier as gin's Stream requires.
type streamRecorder struct {
	*httptest.ResponseRecorder
	mu     sync.Mutex
	closed chan bool
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
}

func (r *streamRecorder) Write(b []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Write(b)
}

func (r *streamRecorder) WriteString(s string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.WriteString(s)
}

func (r *streamRecorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ResponseRecorder.Flush()
}

func (r *streamRecorder) CloseNotify() <-chan bool { return r.closed }

func (r *streamRecorder) body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Body.String()
}

func TestStreamBookings(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	store := bookingRepo.NewMemoryBookingRepo()
	svc := &booking.DefaultBookingService{Store: store, Logger: zap.NewNop()}
	hub := realtime.NewBookingHub(zap.NewNop())
	h := NewBookingHandler(svc, hub)

	existing, err := svc.Create(ctx, "client-1", "", booking.CreateBookingInput{ServiceID: "s1", ServiceProviderID: "provider-1", HourlyRate: 10})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/stream", func(c *gin.Context) { c.Set("userID", "provider-1") }, h.StreamBookings)

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/stream", nil).WithContext(reqCtx)
	rec := newStreamRecorder()
	done := make(chan struct{})
	go func() {
		r.ServeHTTP(rec, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return hub.Subscribers("provider-1") == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return strings.Contains(rec.body(), existing.ID) }, time.Second, 5*time.Millisecond)

	unrelated := models.Booking{ID: "other", ClientID: "client-2", ServiceProviderID: "provider-2"}
	hub.Publish(models.BookingEvent{Type: models.ChangeUpdated, Entity: unrelated})
	live := models.Booking{ID: "live-1", ClientID: "client-9", ServiceProviderID: "provider-1", Status: models.StatusPending}
	hub.Publish(models.BookingEvent{Type: models.ChangeUpdated, Entity: live})

	require.Eventually(t, func() bool { return strings.Contains(rec.body(), "live-1") }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not stop after the client went away")
	}

	body := rec.body()
	assert.Contains(t, body, "event:booking")
	assert.Contains(t, body, `"eventType":"updated"`)
	assert.NotContains(t, body, `"id":"other"`)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, 0, hub.Subscribers("provider-1"))
}

func TestStreamBookings_EndsWhenHubDisconnects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &booking.DefaultBookingService{Store: bookingRepo.NewMemoryBookingRepo(), Logger: zap.NewNop()}
	hub := realtime.NewBookingHub(zap.NewNop())
	h := NewBookingHandler(svc, hub)

	r := gin.New()
	r.GET("/stream", func(c *gin.Context) { c.Set("userID", "client-1") }, h.StreamBookings)

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	rec := newStreamRecorder()
	done := make(chan struct{})
	go func() {
		r.ServeHTTP(rec, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return hub.Subscribers("client-1") == 1 }, time.Second, 5*time.Millisecond)
	hub.Disconnect()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream stayed open after its subscription closed")
	}
}
