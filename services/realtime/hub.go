package realtime

import (
	"context"
	"sync"
	"time"

	"gigbook/models"

	"go.uber.org/zap"
)

// Hub fans one change stream out to subscribers, each seeing only the
// entities it is a viewer of.
type Hub[T any] struct {
	viewers func(T) []string
	buffer  int
	logger  *zap.Logger

	mu   sync.RWMutex
	subs map[string]map[int]*subscription[T]
	next int
}

type subscription[T any] struct {
	ch     chan models.ChangeEvent[T]
	cancel func()
}

// Source opens a change stream. The stream ends by closing its channel.
type Source[T any] func(ctx context.Context) (<-chan models.ChangeEvent[T], error)

func NewHub[T any](viewers func(T) []string, buffer int, logger *zap.Logger) *Hub[T] {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub[T]{
		viewers: viewers,
		buffer:  buffer,
		logger:  logger,
		subs:    make(map[string]map[int]*subscription[T]),
	}
}

// BookingViewers scopes a booking to its client and provider.
func BookingViewers(b models.Booking) []string {
	if b.ClientID == b.ServiceProviderID {
		return []string{b.ClientID}
	}
	return []string{b.ClientID, b.ServiceProviderID}
}

func NewBookingHub(logger *zap.Logger) *Hub[models.Booking] {
	return NewHub(BookingViewers, 32, logger)
}

// Subscribe registers viewerID. The returned cancel func unsubscribes and
// closes the channel. The hub also closes it when the subscriber falls a full
// buffer behind or the source ends, after which the caller must resync.
func (h *Hub[T]) Subscribe(viewerID string) (<-chan models.ChangeEvent[T], func()) {
	sub := &subscription[T]{ch: make(chan models.ChangeEvent[T], h.buffer)}

	h.mu.Lock()
	id := h.next
	h.next++
	if h.subs[viewerID] == nil {
		h.subs[viewerID] = make(map[int]*subscription[T])
	}
	h.subs[viewerID][id] = sub
	h.mu.Unlock()

	var once sync.Once
	sub.cancel = func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[viewerID], id)
			if len(h.subs[viewerID]) == 0 {
				delete(h.subs, viewerID)
			}
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, sub.cancel
}

// Subscribers counts live subscriptions for viewerID.
func (h *Hub[T]) Subscribers(viewerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[viewerID])
}

// Publish delivers ev to every subscriber viewing its entity. A subscriber
// whose buffer is full is disconnected rather than left with a gap.
func (h *Hub[T]) Publish(ev models.ChangeEvent[T]) {
	var lagging []*subscription[T]
	h.mu.RLock()
	for _, viewer := range h.viewers(ev.Entity) {
		for _, sub := range h.subs[viewer] {
			select {
			case sub.ch <- ev:
			default:
				h.logger.Warn("realtime subscriber lagging, disconnecting", zap.String("viewer", viewer))
				lagging = append(lagging, sub)
			}
		}
	}
	h.mu.RUnlock()
	for _, sub := range lagging {
		sub.cancel()
	}
}

// Disconnect closes every subscription.
func (h *Hub[T]) Disconnect() {
	h.mu.RLock()
	var all []*subscription[T]
	for _, byID := range h.subs {
		for _, sub := range byID {
			all = append(all, sub)
		}
	}
	h.mu.RUnlock()
	for _, sub := range all {
		sub.cancel()
	}
}

// Run publishes events until ctx is done or events closes.
func (h *Hub[T]) Run(ctx context.Context, events <-chan models.ChangeEvent[T]) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				h.logger.Warn("realtime source closed")
				return
			}
			h.Publish(ev)
		}
	}
}

// Follow keeps the hub fed from open until ctx is done, reopening the source
// with exponential backoff capped at maxBackoff. Subscribers are disconnected
// each time the source ends since changes may have been missed.
func (h *Hub[T]) Follow(ctx context.Context, open Source[T], minBackoff, maxBackoff time.Duration) {
	wait := minBackoff
	for {
		events, err := open(ctx)
		if err == nil {
			wait = minBackoff
			h.Run(ctx, events)
			if ctx.Err() != nil {
				return
			}
			h.Disconnect()
		} else {
			h.logger.Warn("realtime source unavailable", zap.Error(err), zap.Duration("backoff", wait))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		if wait *= 2; wait > maxBackoff {
			wait = maxBackoff
		}
	}
}
