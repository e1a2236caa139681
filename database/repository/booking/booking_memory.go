package bookingRepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"gigbook/apperror"
	"gigbook/models"
)

// MemoryBookingRepo is an in-process BookingRepository with the same
// conditional-update semantics as the Mongo implementation.
type MemoryBookingRepo struct {
	mu       sync.Mutex
	bookings map[string]models.Booking
	subs     map[int]*memorySub
	nextSub  int
	now      func() time.Time
}

type memorySub struct {
	ctx context.Context
	ch  chan models.BookingEvent
}

func NewMemoryBookingRepo() *MemoryBookingRepo {
	return &MemoryBookingRepo{
		bookings: make(map[string]models.Booking),
		subs:     make(map[int]*memorySub),
		now:      time.Now,
	}
}

func (r *MemoryBookingRepo) Create(ctx context.Context, booking *models.Booking) error {
	if err := validateNew(booking); err != nil {
		return err
	}
	r.mu.Lock()
	if _, exists := r.bookings[booking.ID]; exists {
		r.mu.Unlock()
		return apperror.Validation("booking %s already exists", booking.ID)
	}
	stored := *booking
	r.bookings[booking.ID] = stored
	subs := r.snapshotSubs()
	r.mu.Unlock()

	r.publish(subs, models.BookingEvent{Type: models.ChangeCreated, Entity: stored})
	return nil
}

func (r *MemoryBookingRepo) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, apperror.NotFound("booking", id)
	}
	return &b, nil
}

func (r *MemoryBookingRepo) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if paymentIntentID != "" {
		for _, b := range r.bookings {
			if b.PaymentIntentID == paymentIntentID {
				return &b, nil
			}
		}
	}
	return nil, apperror.NotFound("payment intent", paymentIntentID)
}

func (r *MemoryBookingRepo) ListByClient(ctx context.Context, clientID string) ([]models.Booking, error) {
	return r.list(func(b models.Booking) bool { return b.ClientID == clientID }), nil
}

func (r *MemoryBookingRepo) ListByProvider(ctx context.Context, providerID string) ([]models.Booking, error) {
	return r.list(func(b models.Booking) bool { return b.ServiceProviderID == providerID }), nil
}

func (r *MemoryBookingRepo) list(match func(models.Booking) bool) []models.Booking {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Booking{}
	for _, b := range r.bookings {
		if match(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *MemoryBookingRepo) Update(ctx context.Context, id string, expectedVersion int64, patch models.BookingPatch) (*models.Booking, error) {
	if err := validatePatch(id, patch); err != nil {
		return nil, err
	}
	r.mu.Lock()
	b, ok := r.bookings[id]
	if !ok {
		r.mu.Unlock()
		return nil, apperror.NotFound("booking", id)
	}
	if b.Version != expectedVersion {
		r.mu.Unlock()
		return nil, apperror.StaleState("booking changed since version %d", expectedVersion).WithBooking(id, "")
	}
	now := r.now().UTC()
	patch.Apply(&b, now)
	b.Version++
	b.UpdatedAt = now
	r.bookings[id] = b
	subs := r.snapshotSubs()
	r.mu.Unlock()

	r.publish(subs, models.BookingEvent{Type: models.ChangeUpdated, Entity: b})
	return &b, nil
}

func (r *MemoryBookingRepo) Watch(ctx context.Context) (<-chan models.BookingEvent, error) {
	sub := &memorySub{ctx: ctx, ch: make(chan models.BookingEvent, 64)}

	r.mu.Lock()
	key := r.nextSub
	r.nextSub++
	r.subs[key] = sub
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		delete(r.subs, key)
		r.mu.Unlock()
	}()
	return sub.ch, nil
}

// snapshotSubs must be called with mu held.
func (r *MemoryBookingRepo) snapshotSubs() []*memorySub {
	subs := make([]*memorySub, 0, len(r.subs))
	for _, s := range r.subs {
		subs = append(subs, s)
	}
	return subs
}

func (r *MemoryBookingRepo) publish(subs []*memorySub, ev models.BookingEvent) {
	for _, s := range subs {
		select {
		case s.ch <- ev:
		case <-s.ctx.Done():
		}
	}
}
