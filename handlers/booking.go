package handlers

import (
	"io"
	"net/http"
	"time"

	"gigbook/apperror"
	"gigbook/middleware"
	"gigbook/models"
	"gigbook/services/booking"
	"gigbook/services/realtime"
	"gigbook/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const streamHeartbeat = 25 * time.Second

type BookingHandler struct {
	Service booking.BookingService
	Hub     *realtime.Hub[models.Booking]
}

func NewBookingHandler(svc booking.BookingService, hub *realtime.Hub[models.Booking]) *BookingHandler {
	return &BookingHandler{Service: svc, Hub: hub}
}

type createBookingRequest struct {
	booking.CreateBookingInput
	ClientEmail string `json:"clientEmail"`
}

type transitionRequest struct {
	TargetStatus models.BookingStatus   `json:"targetStatus" binding:"required"`
	Proposal     *booking.ProposalInput `json:"proposal"`
	Reason       string                 `json:"reason"`
}

// bookingView is a booking plus the statuses the caller may move it to.
type bookingView struct {
	*models.Booking
	AllowedTargets []models.BookingStatus `json:"allowedTargets"`
}

func viewFor(b *models.Booking, viewerID string) bookingView {
	targets := booking.AllowedTargetsFor(b, viewerID)
	if targets == nil {
		targets = []models.BookingStatus{}
	}
	return bookingView{Booking: b, AllowedTargets: targets}
}

// streamEvent is the SSE payload.
type streamEvent struct {
	EventType models.ChangeType `json:"eventType"`
	Booking   models.Booking    `json:"booking"`
}

// CreateBooking handles POST /api/bookings.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, apperror.Validation("invalid request body: %v", err))
		return
	}
	userID := middleware.UserID(c)
	b, err := h.Service.Create(c.Request.Context(), userID, req.ClientEmail, req.CreateBookingInput)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewFor(b, userID))
}

// ListBookings handles GET /api/bookings?role=client|provider.
func (h *BookingHandler) ListBookings(c *gin.Context) {
	userID := middleware.UserID(c)
	var (
		list []models.Booking
		err  error
	)
	switch role := c.DefaultQuery("role", "client"); role {
	case "client":
		list, err = h.Service.ListForClient(c.Request.Context(), userID)
	case "provider":
		list, err = h.Service.ListForProvider(c.Request.Context(), userID)
	default:
		utils.RespondError(c, apperror.Validation("role must be client or provider, got %q", role))
		return
	}
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	views := make([]bookingView, 0, len(list))
	for i := range list {
		views = append(views, viewFor(&list[i], userID))
	}
	c.JSON(http.StatusOK, gin.H{"bookings": views})
}

// GetStats handles GET /api/bookings/stats.
func (h *BookingHandler) GetStats(c *gin.Context) {
	stats, err := h.Service.Stats(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetBooking handles GET /api/bookings/:id.
func (h *BookingHandler) GetBooking(c *gin.Context) {
	userID := middleware.UserID(c)
	b, err := h.Service.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewFor(b, userID))
}

// TransitionBooking handles POST /api/bookings/:id/transitions.
func (h *BookingHandler) TransitionBooking(c *gin.Context) {
	logger := getLogger(c)
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, apperror.Validation("invalid request body: %v", err))
		return
	}
	userID := middleware.UserID(c)
	res, err := h.Service.Transition(c.Request.Context(), booking.TransitionRequest{
		BookingID: c.Param("id"),
		ActorID:   userID,
		Target:    req.TargetStatus,
		Proposal:  req.Proposal,
		Reason:    req.Reason,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if res.Duplicate {
		logger.Info("duplicate transition answered from current state",
			zap.String("bookingId", res.Booking.ID), zap.String("status", string(res.Booking.Status)))
	}
	c.JSON(http.StatusOK, gin.H{
		"booking":      viewFor(res.Booking, userID),
		"payment":      res.Payment,
		"reviewPrompt": res.ReviewPrompt,
		"duplicate":    res.Duplicate,
	})
}

// GetReviewable handles GET /api/bookings/:id/reviewable.
func (h *BookingHandler) GetReviewable(c *gin.Context) {
	ok, err := h.Service.Reviewable(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviewable": ok})
}

// GetConversation handles GET /api/bookings/:id/conversation.
func (h *BookingHandler) GetConversation(c *gin.Context) {
	handle, err := h.Service.Conversation(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handle)
}

// StreamBookings handles GET /api/bookings/stream. It replays the caller's
// bookings as created events, then forwards live changes until the client
// disconnects.
func (h *BookingHandler) StreamBookings(c *gin.Context) {
	logger := getLogger(c)
	userID := middleware.UserID(c)
	ctx := c.Request.Context()

	events, cancel := h.Hub.Subscribe(userID)
	defer cancel()

	snapshot, err := h.snapshot(c, userID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	for _, b := range snapshot {
		c.SSEvent("booking", streamEvent{EventType: models.ChangeCreated, Booking: b})
	}
	c.Writer.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	logger.Debug("booking stream opened", zap.String("userId", userID))
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("booking", streamEvent{EventType: ev.Type, Booking: ev.Entity})
			return true
		case t := <-heartbeat.C:
			c.SSEvent("ping", t.Unix())
			return true
		}
	})
	logger.Debug("booking stream closed", zap.String("userId", userID))
}

// snapshot merges the caller's bookings from both roles.
func (h *BookingHandler) snapshot(c *gin.Context, userID string) ([]models.Booking, error) {
	asClient, err := h.Service.ListForClient(c.Request.Context(), userID)
	if err != nil {
		return nil, err
	}
	asProvider, err := h.Service.ListForProvider(c.Request.Context(), userID)
	if err != nil {
		return nil, err
	}
	index := realtime.NewBookingIndex()
	index.Load(asClient)
	for _, b := range asProvider {
		index.Apply(models.BookingEvent{Type: models.ChangeCreated, Entity: b})
	}
	return index.Items(), nil
}
