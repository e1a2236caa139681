package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"gigbook/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func booking(id, client, provider string, status models.BookingStatus) models.Booking {
	return models.Booking{ID: id, ClientID: client, ServiceProviderID: provider, Status: status}
}

func TestIndex_ApplyReconcilesById(t *testing.T) {
	ix := NewBookingIndex()
	ix.Load([]models.Booking{booking("b1", "c1", "p1", models.StatusPending)})

	ix.Apply(models.BookingEvent{Type: models.ChangeCreated, Entity: booking("b2", "c1", "p1", models.StatusPending)})
	ix.Apply(models.BookingEvent{Type: models.ChangeUpdated, Entity: booking("b1", "c1", "p1", models.StatusDeclined)})
	assert.Equal(t, 2, ix.Len())

	got, ok := ix.Get("b1")
	require.True(t, ok)
	assert.Equal(t, models.StatusDeclined, got.Status)

	ix.Apply(models.BookingEvent{Type: models.ChangeDeleted, Entity: booking("b2", "", "", "")})
	_, ok = ix.Get("b2")
	assert.False(t, ok)
	assert.Len(t, ix.Items(), 1)
}

func TestIndex_UpdateForUnknownIdUpserts(t *testing.T) {
	ix := NewBookingIndex()
	ix.Apply(models.BookingEvent{Type: models.ChangeUpdated, Entity: booking("b9", "c1", "p1", models.StatusConfirmed)})
	_, ok := ix.Get("b9")
	assert.True(t, ok)
}

func TestIndex_Follow(t *testing.T) {
	ix := NewBookingIndex()
	events := make(chan models.BookingEvent, 2)
	events <- models.BookingEvent{Type: models.ChangeCreated, Entity: booking("b1", "c1", "p1", models.StatusPending)}
	events <- models.BookingEvent{Type: models.ChangeUpdated, Entity: booking("b1", "c1", "p1", models.StatusPendingBuyer)}
	close(events)

	seen := 0
	ix.Follow(context.Background(), events, func(models.BookingEvent) { seen++ })
	assert.Equal(t, 2, seen)
	got, _ := ix.Get("b1")
	assert.Equal(t, models.StatusPendingBuyer, got.Status)
}

func TestHub_ScopesEventsToParties(t *testing.T) {
	hub := NewBookingHub(zap.NewNop())
	clientCh, cancelClient := hub.Subscribe("c1")
	defer cancelClient()
	providerCh, cancelProvider := hub.Subscribe("p1")
	defer cancelProvider()
	strangerCh, cancelStranger := hub.Subscribe("x1")
	defer cancelStranger()

	ev := models.BookingEvent{Type: models.ChangeUpdated, Entity: booking("b1", "c1", "p1", models.StatusConfirmed)}
	hub.Publish(ev)

	assert.Equal(t, ev, <-clientCh)
	assert.Equal(t, ev, <-providerCh)
	select {
	case got := <-strangerCh:
		t.Fatalf("stranger received %v", got)
	default:
	}
}

func TestHub_RunAndUnsubscribe(t *testing.T) {
	hub := NewBookingHub(zap.NewNop())
	ch, cancel := hub.Subscribe("c1")
	assert.Equal(t, 1, hub.Subscribers("c1"))

	src := make(chan models.BookingEvent, 1)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go hub.Run(ctx, src)

	src <- models.BookingEvent{Type: models.ChangeCreated, Entity: booking("b1", "c1", "p1", models.StatusPending)}
	select {
	case ev := <-ch:
		assert.Equal(t, "b1", ev.Entity.ID)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	cancel()
	assert.Equal(t, 0, hub.Subscribers("c1"))
	_, open := <-ch
	assert.False(t, open)
}

func TestHub_LaggingSubscriberIsDisconnected(t *testing.T) {
	hub := NewHub(BookingViewers, 1, zap.NewNop())
	slow, cancelSlow := hub.Subscribe("c1")
	defer cancelSlow()
	fast, cancelFast := hub.Subscribe("p1")
	defer cancelFast()

	first := models.BookingEvent{Type: models.ChangeCreated, Entity: booking("b1", "c1", "p1", models.StatusPending)}
	second := models.BookingEvent{Type: models.ChangeUpdated, Entity: booking("b1", "c1", "p1", models.StatusDeclined)}
	hub.Publish(first)
	assert.Equal(t, first, <-fast)
	hub.Publish(second)

	assert.Equal(t, first, <-slow)
	_, open := <-slow
	assert.False(t, open, "lagging subscription should be closed")
	assert.Equal(t, 0, hub.Subscribers("c1"))

	assert.Equal(t, second, <-fast)
	assert.Equal(t, 1, hub.Subscribers("p1"))
}

func TestHub_FollowReopensClosedSource(t *testing.T) {
	hub := NewBookingHub(zap.NewNop())
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	sources := make(chan chan models.BookingEvent, 3)
	opened := 0
	open := func(ctx context.Context) (<-chan models.BookingEvent, error) {
		opened++
		if opened == 2 {
			return nil, errors.New("not primary")
		}
		select {
		case src := <-sources:
			return src, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	before, _ := hub.Subscribe("c1")
	first := make(chan models.BookingEvent, 1)
	sources <- first
	go hub.Follow(ctx, open, time.Millisecond, 5*time.Millisecond)

	first <- models.BookingEvent{Type: models.ChangeCreated, Entity: booking("b1", "c1", "p1", models.StatusPending)}
	ev := <-before
	assert.Equal(t, "b1", ev.Entity.ID)

	close(first)
	select {
	case _, open := <-before:
		assert.False(t, open, "subscribers are disconnected when the source ends")
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after source ended")
	}

	after, cancel := hub.Subscribe("c1")
	defer cancel()
	second := make(chan models.BookingEvent, 1)
	sources <- second
	second <- models.BookingEvent{Type: models.ChangeUpdated, Entity: booking("b1", "c1", "p1", models.StatusDeclined)}
	select {
	case ev := <-after:
		assert.Equal(t, models.StatusDeclined, ev.Entity.Status)
	case <-time.After(time.Second):
		t.Fatal("event from reopened source not delivered")
	}
}
