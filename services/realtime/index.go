// Package realtime turns store change streams into per-viewer feeds and
// local, id-indexed views of them.
package realtime

import (
	"context"
	"sync"

	"gigbook/models"
)

// Index is an id-keyed view of entities kept current by applying change events.
type Index[T any] struct {
	key func(T) string

	mu    sync.RWMutex
	items map[string]T
}

func NewIndex[T any](key func(T) string) *Index[T] {
	return &Index[T]{key: key, items: make(map[string]T)}
}

// Load replaces the contents with items, e.g. from an initial list call.
func (ix *Index[T]) Load(items []T) {
	next := make(map[string]T, len(items))
	for _, it := range items {
		next[ix.key(it)] = it
	}
	ix.mu.Lock()
	ix.items = next
	ix.mu.Unlock()
}

// Apply upserts on created/updated and removes on deleted.
func (ix *Index[T]) Apply(ev models.ChangeEvent[T]) {
	id := ix.key(ev.Entity)
	ix.mu.Lock()
	defer ix.mu.Unlock()
	switch ev.Type {
	case models.ChangeCreated, models.ChangeUpdated:
		ix.items[id] = ev.Entity
	case models.ChangeDeleted:
		delete(ix.items, id)
	}
}

func (ix *Index[T]) Get(id string) (T, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	it, ok := ix.items[id]
	return it, ok
}

func (ix *Index[T]) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.items)
}

// Items returns a snapshot in no particular order.
func (ix *Index[T]) Items() []T {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]T, 0, len(ix.items))
	for _, it := range ix.items {
		out = append(out, it)
	}
	return out
}

// Follow applies events until ctx is done or events closes. onChange, when
// set, runs after each applied event.
func (ix *Index[T]) Follow(ctx context.Context, events <-chan models.ChangeEvent[T], onChange func(models.ChangeEvent[T])) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			ix.Apply(ev)
			if onChange != nil {
				onChange(ev)
			}
		}
	}
}

// BookingKey is the Index key for bookings.
func BookingKey(b models.Booking) string { return b.ID }

func NewBookingIndex() *Index[models.Booking] {
	return NewIndex(BookingKey)
}
