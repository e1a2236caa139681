package routes

import (
	"time"

	"gigbook/handlers"
	"gigbook/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterAuthRoutes registers credential refresh.
func RegisterAuthRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/auth")
	{
		api.POST("/refresh", hb.RefreshToken)
	}
}

// RegisterHealthRoute registers a health-check endpoint.
func RegisterHealthRoute(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.GET("/health", hb.Health)
}

// RegisterBookingRoutes sets up the booking negotiation endpoints.
func RegisterBookingRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	bookingGroup := r.Group("/api/bookings")
	{
		bookingGroup.Use(middleware.JWTAuthMiddleware(hb.Tokens, hb.Revoker))
		bookingGroup.POST("", hb.CreateBooking)
		bookingGroup.GET("", hb.ListBookings)
		bookingGroup.GET("/stats", hb.BookingStats)
		bookingGroup.GET("/stream", hb.StreamBookings)
		bookingGroup.GET("/:id", hb.GetBooking)
		bookingGroup.POST("/:id/transitions", hb.TransitionBooking)
		bookingGroup.GET("/:id/reviewable", hb.BookingReviewable)
		bookingGroup.GET("/:id/conversation", hb.BookingThread)
	}
}

// RegisterPaymentRoutes sets up the escrow payment endpoints.
func RegisterPaymentRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	paymentGroup := r.Group("/api/payments")
	{
		paymentGroup.Use(middleware.JWTAuthMiddleware(hb.Tokens, hb.Revoker))
		paymentGroup.POST("/authorize", hb.AuthorizePayment)
		paymentGroup.POST("/capture", hb.CapturePayment)
		paymentGroup.POST("/refund", hb.RefundPayment)
	}
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type", "Last-Event-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	RegisterHealthRoute(r, hb)
	RegisterAuthRoutes(r, hb)
	RegisterBookingRoutes(r, hb)
	RegisterPaymentRoutes(r, hb)
}
