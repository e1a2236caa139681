package handlers

import (
	"net/http"

	"gigbook/apperror"
	"gigbook/middleware"
	"gigbook/services/booking"
	"gigbook/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PaymentHandler exposes the ledger steps of the booking flow. Each call is
// routed through the booking service so status and money move together.
type PaymentHandler struct {
	Service booking.BookingService
}

func NewPaymentHandler(svc booking.BookingService) *PaymentHandler {
	return &PaymentHandler{Service: svc}
}

type paymentIntentRequest struct {
	PaymentIntentID string `json:"paymentIntentId" binding:"required"`
	Reason          string `json:"reason"`
}

// AuthorizePayment handles POST /api/payments/authorize.
func (h *PaymentHandler) AuthorizePayment(c *gin.Context) {
	var req booking.AuthorizePaymentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, apperror.Validation("invalid request body: %v", err))
		return
	}
	res, err := h.Service.AuthorizePayment(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	getLogger(c).Info("payment authorized", zap.String("bookingId", req.BookingID), zap.String("paymentIntentId", res.PaymentIntentID))
	c.JSON(http.StatusOK, res)
}

// CapturePayment handles POST /api/payments/capture.
func (h *PaymentHandler) CapturePayment(c *gin.Context) {
	var req paymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, apperror.Validation("invalid request body: %v", err))
		return
	}
	res, err := h.Service.CapturePayment(c.Request.Context(), middleware.UserID(c), req.PaymentIntentID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// RefundPayment handles POST /api/payments/refund.
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	var req paymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, apperror.Validation("invalid request body: %v", err))
		return
	}
	res, err := h.Service.RefundPayment(c.Request.Context(), middleware.UserID(c), req.PaymentIntentID, req.Reason)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
