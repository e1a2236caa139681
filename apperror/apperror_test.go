package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByKind(t *testing.T) {
	err := StaleState("version %d superseded", 3).WithBooking("b1", "confirmed")

	assert.True(t, errors.Is(err, ErrStaleState))
	assert.False(t, errors.Is(err, ErrInvalidTransition))

	wrapped := fmt.Errorf("confirm: %w", err)
	assert.True(t, errors.Is(wrapped, ErrStaleState))
	assert.Equal(t, KindStaleState, KindOf(wrapped))
}

func TestError_MessageCarriesContext(t *testing.T) {
	err := PaymentGateway(errors.New("card declined")).WithBooking("b42", "pending-buyer->confirmed")

	msg := err.Error()
	assert.Contains(t, msg, "PAYMENT_GATEWAY_ERROR")
	assert.Contains(t, msg, "booking unchanged")
	assert.Contains(t, msg, "b42")
	assert.Contains(t, msg, "pending-buyer->confirmed")
	assert.Contains(t, msg, "card declined")
}

func TestError_WithBookingKeepsExisting(t *testing.T) {
	err := NotFound("booking", "x").WithBooking("first", "t1").WithBooking("second", "t2")
	assert.Equal(t, "first", err.BookingID)
	assert.Equal(t, "t1", err.Transition)
}

func TestKindOf_ForeignError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindInternal, As(errors.New("boom")).Kind)
}

func TestIsAuth(t *testing.T) {
	assert.True(t, IsAuth(AuthExpired(nil)))
	assert.True(t, IsAuth(AuthRequired("no token")))
	assert.False(t, IsAuth(Validation("bad")))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindInvalidTransition, http.StatusConflict},
		{KindStaleState, http.StatusConflict},
		{KindInvalidPaymentState, http.StatusConflict},
		{KindNotFound, http.StatusNotFound},
		{KindValidation, http.StatusUnprocessableEntity},
		{KindAuthRequired, http.StatusUnauthorized},
		{KindAuthExpired, http.StatusUnauthorized},
		{KindAccessDenied, http.StatusForbidden},
		{KindPaymentGateway, http.StatusBadGateway},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.kind))
		})
	}
}
