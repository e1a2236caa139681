package bookingRepo

import (
	"context"
	"sync"
	"testing"
	"time"

	"gigbook/apperror"
	"gigbook/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func newBooking(id string) *models.Booking {
	now := time.Now().UTC()
	return &models.Booking{
		ID:                id,
		ServiceID:         "svc-1",
		ServiceProviderID: "prov-1",
		ClientID:          "client-1",
		HourlyRate:        50,
		EstimatedHours:    2,
		TotalEstimate:     100,
		Status:            models.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func statusPtr(s models.BookingStatus) *models.BookingStatus { return &s }

func TestMemoryBookingRepo_CreateAndGet(t *testing.T) {
	repo := NewMemoryBookingRepo()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newBooking("b1")))

	got, err := repo.GetByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "client-1", got.ClientID)

	err = repo.Create(ctx, newBooking("b1"))
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestMemoryBookingRepo_CreateRejectsMissingParties(t *testing.T) {
	repo := NewMemoryBookingRepo()
	b := newBooking("b1")
	b.ClientID = ""
	assert.ErrorIs(t, repo.Create(context.Background(), b), apperror.ErrValidation)
}

func TestMemoryBookingRepo_UpdateIsConditional(t *testing.T) {
	repo := NewMemoryBookingRepo()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newBooking("b1")))

	updated, err := repo.Update(ctx, "b1", 0, models.BookingPatch{Status: statusPtr(models.StatusPendingBuyer)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.Version)
	assert.Equal(t, models.StatusPendingBuyer, updated.Status)

	_, err = repo.Update(ctx, "b1", 0, models.BookingPatch{Status: statusPtr(models.StatusDeclined)})
	assert.ErrorIs(t, err, apperror.ErrStaleState)

	got, err := repo.GetByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingBuyer, got.Status)

	_, err = repo.Update(ctx, "nope", 0, models.BookingPatch{Status: statusPtr(models.StatusDeclined)})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestMemoryBookingRepo_UpdateRejectsBadPatch(t *testing.T) {
	repo := NewMemoryBookingRepo()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newBooking("b1")))

	neg := -1.0
	_, err := repo.Update(ctx, "b1", 0, models.BookingPatch{ProposedTotal: &neg})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = repo.Update(ctx, "b1", 0, models.BookingPatch{})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestMemoryBookingRepo_ConcurrentUpdateSingleWinner(t *testing.T) {
	repo := NewMemoryBookingRepo()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newBooking("b1")))

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Update(ctx, "b1", 0, models.BookingPatch{Status: statusPtr(models.StatusDeclined)})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, stale int
	for err := range errs {
		if err == nil {
			ok++
		} else if assert.ErrorIs(t, err, apperror.ErrStaleState) {
			stale++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, stale)
}

func TestMemoryBookingRepo_ListAndPaymentIntentLookup(t *testing.T) {
	repo := NewMemoryBookingRepo()
	ctx := context.Background()

	first := newBooking("b1")
	second := newBooking("b2")
	second.CreatedAt = first.CreatedAt.Add(time.Minute)
	other := newBooking("b3")
	other.ClientID = "client-2"
	other.ServiceProviderID = "prov-2"
	for _, b := range []*models.Booking{first, second, other} {
		require.NoError(t, repo.Create(ctx, b))
	}

	byClient, err := repo.ListByClient(ctx, "client-1")
	require.NoError(t, err)
	require.Len(t, byClient, 2)
	assert.Equal(t, "b2", byClient[0].ID)

	byProvider, err := repo.ListByProvider(ctx, "prov-2")
	require.NoError(t, err)
	require.Len(t, byProvider, 1)

	pi := "pi_123"
	_, err = repo.Update(ctx, "b3", 0, models.BookingPatch{PaymentIntentID: &pi})
	require.NoError(t, err)

	found, err := repo.GetByPaymentIntentID(ctx, "pi_123")
	require.NoError(t, err)
	assert.Equal(t, "b3", found.ID)

	_, err = repo.GetByPaymentIntentID(ctx, "pi_missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestMemoryBookingRepo_Watch(t *testing.T) {
	repo := NewMemoryBookingRepo()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := repo.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.Create(ctx, newBooking("b1")))
	_, err = repo.Update(ctx, "b1", 0, models.BookingPatch{Status: statusPtr(models.StatusDeclined)})
	require.NoError(t, err)

	ev := <-events
	assert.Equal(t, models.ChangeCreated, ev.Type)
	assert.Equal(t, "b1", ev.Entity.ID)

	ev = <-events
	assert.Equal(t, models.ChangeUpdated, ev.Type)
	assert.Equal(t, models.StatusDeclined, ev.Entity.Status)
}

func TestBuildUpdate(t *testing.T) {
	now := time.Now()
	claim := "confirmed"

	u := buildUpdate(models.BookingPatch{Claim: &claim}, now)
	set := u["$set"].(bson.M)
	assert.Equal(t, "confirmed", set["pendingTransition"])
	assert.Equal(t, now, set["claimedAt"])
	assert.NotContains(t, u, "$unset")
	assert.NotContains(t, set, "clientId")

	u = buildUpdate(models.BookingPatch{ReleaseClaim: true, Status: statusPtr(models.StatusConfirmed)}, now)
	assert.Contains(t, u, "$unset")
	assert.Equal(t, bson.M{"version": 1}, u["$inc"])
}
