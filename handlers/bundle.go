package handlers

import (
	"gigbook/utils"

	"github.com/gin-gonic/gin"
)

// HandlerBundle groups all endpoint handlers into one struct.
type HandlerBundle struct {
	Tokens  *utils.TokenManager
	Revoker utils.TokenRevoker

	// Booking endpoints
	CreateBooking     gin.HandlerFunc
	ListBookings      gin.HandlerFunc
	BookingStats      gin.HandlerFunc
	GetBooking        gin.HandlerFunc
	TransitionBooking gin.HandlerFunc
	BookingReviewable gin.HandlerFunc
	BookingThread     gin.HandlerFunc
	StreamBookings    gin.HandlerFunc

	// Payment endpoints
	AuthorizePayment gin.HandlerFunc
	CapturePayment   gin.HandlerFunc
	RefundPayment    gin.HandlerFunc

	// Auth endpoints
	RefreshToken gin.HandlerFunc

	Health gin.HandlerFunc
}

// NewHandlerBundle wires the handler structs into a bundle.
func NewHandlerBundle(bookings *BookingHandler, payments *PaymentHandler, auth *AuthHandler, monitor *utils.HealthMonitor) *HandlerBundle {
	return &HandlerBundle{
		Tokens:  auth.Tokens,
		Revoker: auth.Revoker,

		CreateBooking:     bookings.CreateBooking,
		ListBookings:      bookings.ListBookings,
		BookingStats:      bookings.GetStats,
		GetBooking:        bookings.GetBooking,
		TransitionBooking: bookings.TransitionBooking,
		BookingReviewable: bookings.GetReviewable,
		BookingThread:     bookings.GetConversation,
		StreamBookings:    bookings.StreamBookings,

		AuthorizePayment: payments.AuthorizePayment,
		CapturePayment:   payments.CapturePayment,
		RefundPayment:    payments.RefundPayment,

		RefreshToken: auth.RefreshToken,

		Health: HealthHandler(monitor),
	}
}
