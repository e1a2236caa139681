package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gigbook/apperror"
	bookingRepo "gigbook/database/repository/booking"
	payoutRepo "gigbook/database/repository/payout"
	"gigbook/models"
	"gigbook/services/conversation"
	"gigbook/services/ledger"
	"gigbook/services/review"
	"gigbook/services/tasks"
	"gigbook/utils"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultClaimTTL     = 2 * time.Minute
	DefaultDedupeWindow = 10 * time.Second
	DefaultFeeRate      = 0.05
	DefaultCurrency     = "sgd"
)

// ReviewChecker answers whether a booking may still be reviewed.
type ReviewChecker interface {
	CheckBooking(ctx context.Context, booking *models.Booking) (bool, error)
}

// DefaultBookingService drives bookings through the transition table. Store
// writes are conditioned on the version read at the start of each action, so
// concurrent actions on one booking serialize without an in-process lock.
type DefaultBookingService struct {
	Store         bookingRepo.BookingRepository
	Ledger        ledger.Gateway
	Payouts       payoutRepo.PayoutAccountRepository
	Conversations conversation.Bridge
	Reviews       ReviewChecker
	Deduper       Deduper
	Scheduler     tasks.Scheduler

	// Refreshers renew store and ledger credentials after an auth failure.
	StoreRefresher  utils.Refresher
	LedgerRefresher utils.Refresher

	Logger   *zap.Logger
	Validate *validator.Validate

	Currency     string
	FeeRate      float64
	ClaimTTL     time.Duration
	DedupeWindow time.Duration

	Now   func() time.Time
	NewID func() string
}

var defaultValidator = validator.New()

func (s *DefaultBookingService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *DefaultBookingService) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.New().String()
}

func (s *DefaultBookingService) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}

func (s *DefaultBookingService) currency() string {
	if s.Currency != "" {
		return s.Currency
	}
	return DefaultCurrency
}

func (s *DefaultBookingService) feeRate() float64 {
	if s.FeeRate > 0 {
		return s.FeeRate
	}
	return DefaultFeeRate
}

func (s *DefaultBookingService) claimTTL() time.Duration {
	if s.ClaimTTL > 0 {
		return s.ClaimTTL
	}
	return DefaultClaimTTL
}

func (s *DefaultBookingService) dedupeWindow() time.Duration {
	if s.DedupeWindow > 0 {
		return s.DedupeWindow
	}
	return DefaultDedupeWindow
}

func (s *DefaultBookingService) validate(v any) error {
	val := s.Validate
	if val == nil {
		val = defaultValidator
	}
	if err := val.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperror.Validation("%s failed on the %s rule", fe.Field(), fe.Tag())
		}
		return apperror.Validation("%v", err)
	}
	return nil
}

// multiply returns a*b rounded to cents.
func multiply(a, b float64) float64 {
	f, _ := decimal.NewFromFloat(a).Mul(decimal.NewFromFloat(b)).Round(2).Float64()
	return f
}

// annotate attaches booking context to err, classifying foreign errors as internal.
func annotate(err error, bookingID, label string) error {
	var e *apperror.Error
	if errors.As(err, &e) {
		return e.WithBooking(bookingID, label)
	}
	return apperror.Internal(err).WithBooking(bookingID, label)
}

// ledgerError keeps typed ledger failures and reports anything else as a gateway failure.
func ledgerError(err error, bookingID, label string) error {
	var e *apperror.Error
	if errors.As(err, &e) {
		return e.WithBooking(bookingID, label)
	}
	return apperror.PaymentGateway(err).WithBooking(bookingID, label)
}

func idempotencyKey(b *models.Booking, action string) string {
	return fmt.Sprintf("booking:%s:%s:v%d", b.ID, action, b.Version)
}

func (s *DefaultBookingService) load(ctx context.Context, id string) (*models.Booking, error) {
	return utils.WithAuthRetry(ctx, s.StoreRefresher, func(ctx context.Context) (*models.Booking, error) {
		return s.Store.GetByID(ctx, id)
	})
}

// write applies patch at b's version.
func (s *DefaultBookingService) write(ctx context.Context, b *models.Booking, patch models.BookingPatch, label string) (*models.Booking, error) {
	out, err := utils.WithAuthRetry(ctx, s.StoreRefresher, func(ctx context.Context) (*models.Booking, error) {
		return s.Store.Update(ctx, b.ID, b.Version, patch)
	})
	if err != nil {
		return nil, annotate(err, b.ID, label)
	}
	return out, nil
}

func (s *DefaultBookingService) Create(ctx context.Context, clientID, clientEmail string, input CreateBookingInput) (*models.Booking, error) {
	if clientID == "" {
		return nil, apperror.AuthRequired("sign in to book a service")
	}
	if err := s.validate(input); err != nil {
		return nil, err
	}
	if input.ServiceProviderID == clientID {
		return nil, apperror.Validation("cannot book your own service")
	}

	hours := input.EstimatedHours
	if hours == 0 {
		hours = 1
	}
	now := s.now()
	b := &models.Booking{
		ID:                 s.newID(),
		ServiceID:          input.ServiceID,
		ServiceTitle:       input.ServiceTitle,
		ServiceProviderID:  input.ServiceProviderID,
		ClientID:           clientID,
		ClientEmail:        clientEmail,
		HourlyRate:         input.HourlyRate,
		EstimatedHours:     hours,
		TotalEstimate:      multiply(input.HourlyRate, hours),
		Notes:              input.Notes,
		PreferredStartDate: input.PreferredStartDate,
		Currency:           ledger.NormalizeCurrency(input.Currency, s.currency()),
		Status:             models.StatusPending,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	err := utils.DoWithAuthRetry(ctx, s.StoreRefresher, func(ctx context.Context) error {
		return s.Store.Create(ctx, b)
	})
	if err != nil {
		return nil, annotate(err, b.ID, "")
	}
	s.logger().Info("booking created",
		zap.String("bookingId", b.ID),
		zap.String("clientId", clientID),
		zap.String("serviceProviderId", b.ServiceProviderID),
		zap.Float64("totalEstimate", b.TotalEstimate))
	return b, nil
}

func (s *DefaultBookingService) Get(ctx context.Context, viewerID, bookingID string) (*models.Booking, error) {
	if viewerID == "" {
		return nil, apperror.AuthRequired("sign in to view bookings")
	}
	b, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, annotate(err, bookingID, "")
	}
	if !b.IsParty(viewerID) {
		return nil, apperror.AccessDenied("not a party to this booking").WithBooking(bookingID, "")
	}
	return b, nil
}

func (s *DefaultBookingService) ListForClient(ctx context.Context, clientID string) ([]models.Booking, error) {
	if clientID == "" {
		return nil, apperror.AuthRequired("sign in to view bookings")
	}
	return utils.WithAuthRetry(ctx, s.StoreRefresher, func(ctx context.Context) ([]models.Booking, error) {
		return s.Store.ListByClient(ctx, clientID)
	})
}

func (s *DefaultBookingService) ListForProvider(ctx context.Context, providerID string) ([]models.Booking, error) {
	if providerID == "" {
		return nil, apperror.AuthRequired("sign in to view bookings")
	}
	return utils.WithAuthRetry(ctx, s.StoreRefresher, func(ctx context.Context) ([]models.Booking, error) {
		return s.Store.ListByProvider(ctx, providerID)
	})
}

// Stats counts a client's bookings. Only the exact pending, confirmed and
// completed statuses are counted in their buckets.
func (s *DefaultBookingService) Stats(ctx context.Context, clientID string) (*models.BookingStats, error) {
	list, err := s.ListForClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	stats := &models.BookingStats{Total: len(list)}
	for _, b := range list {
		switch b.Status {
		case models.StatusPending:
			stats.Pending++
		case models.StatusConfirmed:
			stats.Confirmed++
		case models.StatusCompleted:
			stats.Completed++
		}
	}
	return stats, nil
}

func (s *DefaultBookingService) FindByPaymentIntent(ctx context.Context, actorID, paymentIntentID string) (*models.Booking, error) {
	if actorID == "" {
		return nil, apperror.AuthRequired("sign in to manage payments")
	}
	if paymentIntentID == "" {
		return nil, apperror.Validation("paymentIntentId is required")
	}
	b, err := utils.WithAuthRetry(ctx, s.StoreRefresher, func(ctx context.Context) (*models.Booking, error) {
		return s.Store.GetByPaymentIntentID(ctx, paymentIntentID)
	})
	if err != nil {
		return nil, annotate(err, "", "")
	}
	if b.ClientID != actorID {
		return nil, apperror.AccessDenied("only the booking's client can manage its payment").WithBooking(b.ID, "")
	}
	return b, nil
}

func (s *DefaultBookingService) Reviewable(ctx context.Context, viewerID, bookingID string) (bool, error) {
	b, err := s.Get(ctx, viewerID, bookingID)
	if err != nil {
		return false, err
	}
	if s.Reviews == nil {
		return review.IsReviewable(b, nil), nil
	}
	ok, err := s.Reviews.CheckBooking(ctx, b)
	if err != nil {
		return false, annotate(err, bookingID, "")
	}
	return ok, nil
}

// Conversation returns the booking's thread, opening one if the proposal step
// could not.
func (s *DefaultBookingService) Conversation(ctx context.Context, viewerID, bookingID string) (*models.ConversationHandle, error) {
	b, err := s.Get(ctx, viewerID, bookingID)
	if err != nil {
		return nil, err
	}
	if b.ConversationID != "" {
		return &models.ConversationHandle{ID: b.ConversationID}, nil
	}
	if s.Conversations == nil {
		return nil, apperror.NotFound("conversation for booking", bookingID)
	}
	h, err := s.Conversations.GetOrCreateConversation(ctx, b.ClientID, b.ServiceProviderID, b.ServiceID, b.ServiceTitle)
	if err != nil {
		return nil, annotate(err, bookingID, "")
	}
	return h, nil
}

// Transition moves a booking to req.Target on behalf of req.ActorID,
// performing the ledger step the edge requires.
func (s *DefaultBookingService) Transition(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	if req.ActorID == "" {
		return nil, apperror.AuthRequired("sign in to update bookings")
	}
	if req.BookingID == "" {
		return nil, apperror.Validation("booking id is required")
	}
	if !req.Target.Valid() {
		return nil, apperror.Validation("unknown status %q", req.Target).WithBooking(req.BookingID, "")
	}

	b, err := s.load(ctx, req.BookingID)
	if err != nil {
		return nil, annotate(err, req.BookingID, "")
	}
	if !b.IsParty(req.ActorID) {
		return nil, apperror.AccessDenied("not a party to this booking").WithBooking(b.ID, "")
	}
	label := transitionLabel(b.Status, req.Target)

	key := actionKey(req)
	if b.Status == req.Target && b.PendingTransition == "" && s.seen(ctx, key) {
		return &TransitionResult{Booking: b, Duplicate: true}, nil
	}

	rule, ok := RuleFor(b.Status, req.Target)
	if !ok {
		if b.Status == req.Target {
			return nil, apperror.StaleState("booking is already %s", b.Status).WithBooking(b.ID, label)
		}
		return nil, apperror.InvalidTransition("cannot move a %s booking to %s", b.Status, req.Target).WithBooking(b.ID, label)
	}
	if !rule.Actor.allows(b, req.ActorID) {
		return nil, apperror.AccessDenied("only the %s can move this booking to %s", rule.Actor, req.Target).WithBooking(b.ID, label)
	}
	if b.Claimed(s.now(), s.claimTTL()) {
		return nil, apperror.StaleState("a %s transition is already in progress", b.PendingTransition).WithBooking(b.ID, label)
	}

	var res *TransitionResult
	switch rule.Effect {
	case EffectPropose:
		res, err = s.propose(ctx, b, req, label)
	case EffectAuthorize:
		res, err = s.authorize(ctx, b, label)
	case EffectCapture:
		res, err = s.capture(ctx, b, label)
	case EffectRelease, EffectRefund:
		res, err = s.release(ctx, b, req, rule, label)
	default:
		var out *models.Booking
		out, err = s.write(ctx, b, models.BookingPatch{Status: &req.Target}, label)
		res = &TransitionResult{Booking: out}
	}
	if err != nil {
		s.logger().Warn("booking transition failed",
			zap.String("bookingId", b.ID),
			zap.String("transition", label),
			zap.String("actorId", req.ActorID),
			zap.Error(err))
		return nil, err
	}

	s.remember(ctx, key)
	s.logger().Info("booking transitioned",
		zap.String("bookingId", b.ID),
		zap.String("transition", label),
		zap.String("actorId", req.ActorID),
		zap.Bool("financial", rule.Effect.financial()),
		zap.Int64("version", res.Booking.Version))
	return res, nil
}

func (s *DefaultBookingService) seen(ctx context.Context, key string) bool {
	if s.Deduper == nil {
		return false
	}
	ok, err := s.Deduper.Seen(ctx, key)
	if err != nil {
		s.logger().Warn("dedupe lookup failed", zap.Error(err))
		return false
	}
	return ok
}

func (s *DefaultBookingService) remember(ctx context.Context, key string) {
	if s.Deduper == nil {
		return
	}
	if err := s.Deduper.Remember(ctx, key, s.dedupeWindow()); err != nil {
		s.logger().Warn("dedupe record failed", zap.Error(err))
	}
}

func (s *DefaultBookingService) propose(ctx context.Context, b *models.Booking, req TransitionRequest, label string) (*TransitionResult, error) {
	p := req.Proposal
	if p == nil {
		return nil, apperror.Validation("a proposal is required").WithBooking(b.ID, label)
	}
	if err := s.validate(p); err != nil {
		return nil, annotate(err, b.ID, label)
	}
	total := p.ProposedTotal
	if total == 0 {
		total = multiply(b.HourlyRate, p.ProposedHours)
	}
	if total <= 0 {
		return nil, apperror.Validation("proposedTotal must be greater than zero").WithBooking(b.ID, label)
	}

	status := models.StatusPendingBuyer
	hours := p.ProposedHours
	due := p.ProposedDueDate.UTC()
	notes := p.ProviderNotes
	patch := models.BookingPatch{
		Status:          &status,
		ProposedHours:   &hours,
		ProposedDueDate: &due,
		ProposedTotal:   &total,
		ProviderNotes:   &notes,
	}
	if b.ConversationID == "" {
		if h := s.openConversation(ctx, b); h != nil {
			patch.ConversationID = &h.ID
		}
	}
	out, err := s.write(ctx, b, patch, label)
	if err != nil {
		return nil, err
	}
	return &TransitionResult{Booking: out}, nil
}

// openConversation never fails the proposal; a missing thread can be opened later.
func (s *DefaultBookingService) openConversation(ctx context.Context, b *models.Booking) *models.ConversationHandle {
	if s.Conversations == nil {
		return nil
	}
	h, err := s.Conversations.GetOrCreateConversation(ctx, b.ClientID, b.ServiceProviderID, b.ServiceID, b.ServiceTitle)
	if err != nil {
		s.logger().Warn("conversation bridge failed", zap.String("bookingId", b.ID), zap.Error(err))
		return nil
	}
	return h
}

// claim marks b as held by a financial transition. Only the winner of this
// write talks to the ledger.
func (s *DefaultBookingService) claim(ctx context.Context, b *models.Booking, target models.BookingStatus, label string) (*models.Booking, error) {
	name := string(target)
	return s.write(ctx, b, models.BookingPatch{Claim: &name}, label)
}

func (s *DefaultBookingService) releaseClaim(ctx context.Context, b *models.Booking, label string) {
	if _, err := s.write(ctx, b, models.BookingPatch{ReleaseClaim: true}, label); err != nil {
		s.logger().Warn("claim release failed, it lapses after the claim ttl",
			zap.String("bookingId", b.ID), zap.String("transition", label), zap.Error(err))
	}
}

func (s *DefaultBookingService) scheduleReconcile(ctx context.Context, b *models.Booking, paymentIntentID string, target models.BookingStatus, reason string) {
	log := s.logger().With(zap.String("bookingId", b.ID), zap.String("paymentIntentId", paymentIntentID), zap.String("target", string(target)))
	if s.Scheduler == nil {
		log.Error("ledger and store diverged, no reconcile scheduler configured", zap.String("reason", reason))
		return
	}
	err := s.Scheduler.ScheduleReconcile(ctx, tasks.ReconcilePayload{
		BookingID:       b.ID,
		PaymentIntentID: paymentIntentID,
		Target:          string(target),
		Reason:          reason,
	})
	if err != nil {
		log.Error("failed to schedule reconcile", zap.String("reason", reason), zap.Error(err))
		return
	}
	log.Warn("reconcile scheduled", zap.String("reason", reason))
}

func (s *DefaultBookingService) authorize(ctx context.Context, b *models.Booking, label string) (*TransitionResult, error) {
	account, err := utils.WithAuthRetry(ctx, s.StoreRefresher, func(ctx context.Context) (*models.PayoutAccount, error) {
		return s.Payouts.GetByProvider(ctx, b.ServiceProviderID)
	})
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Wrap(err, apperror.KindPaymentGateway, "provider has not completed payout setup").WithBooking(b.ID, label)
		}
		return nil, annotate(err, b.ID, label)
	}
	total := b.AuthoritativeTotal()
	if total <= 0 {
		return nil, apperror.Validation("booking has no amount to authorize").WithBooking(b.ID, label)
	}

	claimed, err := s.claim(ctx, b, models.StatusConfirmed, label)
	if err != nil {
		return nil, err
	}
	auth, err := utils.WithAuthRetry(ctx, s.LedgerRefresher, func(ctx context.Context) (*ledger.AuthorizeResult, error) {
		return s.Ledger.Authorize(ctx, ledger.AuthorizeRequest{
			BookingID:            b.ID,
			ClientID:             b.ClientID,
			ProviderID:           b.ServiceProviderID,
			Amount:               ledger.ToMinorUnits(total),
			Currency:             ledger.NormalizeCurrency(b.Currency, s.currency()),
			DestinationAccountID: account.ConnectedAccountID,
			FeeAmount:            ledger.PlatformFee(total, s.feeRate()),
			IdempotencyKey:       idempotencyKey(claimed, "confirm"),
		})
	})
	if err != nil {
		s.releaseClaim(ctx, claimed, label)
		return nil, ledgerError(err, b.ID, label)
	}

	status := models.StatusConfirmed
	pi := auth.PaymentIntentID
	out, err := s.write(ctx, claimed, models.BookingPatch{Status: &status, PaymentIntentID: &pi, ReleaseClaim: true}, label)
	if err != nil {
		recorded := s.compensateAuthorize(ctx, claimed, pi, label)
		if recorded == nil {
			return nil, err
		}
		out = recorded
	}
	return &TransitionResult{Booking: out, Payment: &ledger.Result{Authorize: auth}}, nil
}

// compensateAuthorize cancels a hold the store failed to record. A failed
// write may still have committed, so the booking is read back first; when it
// already carries the hold that booking is returned and nothing is cancelled.
func (s *DefaultBookingService) compensateAuthorize(ctx context.Context, claimed *models.Booking, paymentIntentID, label string) *models.Booking {
	current, err := s.load(ctx, claimed.ID)
	if err != nil {
		s.scheduleReconcile(ctx, claimed, paymentIntentID, models.StatusConfirmed, "hold placed, confirm write outcome unknown")
		return nil
	}
	if holdsIntent(current, paymentIntentID) {
		s.logger().Warn("confirm recorded despite store error",
			zap.String("bookingId", claimed.ID), zap.String("paymentIntentId", paymentIntentID), zap.Int64("version", current.Version))
		return current
	}

	_, err = utils.WithAuthRetry(ctx, s.LedgerRefresher, func(ctx context.Context) (*ledger.RefundResult, error) {
		return s.Ledger.CancelOrRefund(ctx, ledger.RefundRequest{
			PaymentIntentID: paymentIntentID,
			BookingID:       claimed.ID,
			RequestedBy:     "system",
			Reason:          "abandoned",
			IdempotencyKey:  idempotencyKey(claimed, "compensate"),
		})
	})
	if err != nil {
		s.scheduleReconcile(ctx, claimed, paymentIntentID, models.StatusConfirmed, "hold placed but not recorded, cancel failed")
		return nil
	}
	s.logger().Warn("hold released after store failure",
		zap.String("bookingId", claimed.ID), zap.String("paymentIntentId", paymentIntentID))
	s.releaseClaim(ctx, claimed, label)
	return nil
}

func holdsIntent(b *models.Booking, paymentIntentID string) bool {
	return b.Status == models.StatusConfirmed && b.PaymentIntentID == paymentIntentID
}

func (s *DefaultBookingService) capture(ctx context.Context, b *models.Booking, label string) (*TransitionResult, error) {
	if b.PaymentIntentID == "" {
		return nil, apperror.InvalidPaymentState("booking has no payment authorization to capture").WithBooking(b.ID, label)
	}
	claimed, err := s.claim(ctx, b, models.StatusCompleted, label)
	if err != nil {
		return nil, err
	}
	captured, err := utils.WithAuthRetry(ctx, s.LedgerRefresher, func(ctx context.Context) (*ledger.CaptureResult, error) {
		return s.Ledger.Capture(ctx, claimed.PaymentIntentID, idempotencyKey(claimed, "complete"))
	})
	if err != nil {
		s.releaseClaim(ctx, claimed, label)
		return nil, ledgerError(err, b.ID, label)
	}

	status := models.StatusCompleted
	out, err := s.write(ctx, claimed, models.BookingPatch{Status: &status, ReleaseClaim: true}, label)
	if err != nil {
		s.scheduleReconcile(ctx, claimed, claimed.PaymentIntentID, status, "capture settled but not recorded")
		return nil, err
	}
	return &TransitionResult{
		Booking:      out,
		Payment:      &ledger.Result{Capture: captured},
		ReviewPrompt: s.reviewPrompt(ctx, out),
	}, nil
}

func (s *DefaultBookingService) reviewPrompt(ctx context.Context, b *models.Booking) bool {
	if s.Reviews == nil {
		return review.IsReviewable(b, nil)
	}
	ok, err := s.Reviews.CheckBooking(ctx, b)
	if err != nil {
		s.logger().Warn("review gate failed", zap.String("bookingId", b.ID), zap.Error(err))
		return false
	}
	return ok
}

// release handles cancel and refund: a hold is voided, a capture refunded.
func (s *DefaultBookingService) release(ctx context.Context, b *models.Booking, req TransitionRequest, rule Rule, label string) (*TransitionResult, error) {
	target := req.Target
	if b.PaymentIntentID == "" {
		if rule.Effect == EffectRefund {
			return nil, apperror.InvalidTransition("booking has no payment to refund").WithBooking(b.ID, label)
		}
		out, err := s.write(ctx, b, models.BookingPatch{Status: &target}, label)
		if err != nil {
			return nil, err
		}
		return &TransitionResult{Booking: out}, nil
	}

	claimed, err := s.claim(ctx, b, target, label)
	if err != nil {
		return nil, err
	}
	reason := req.Reason
	if reason == "" {
		reason = ledger.DefaultRefundReason
	}
	refund, err := utils.WithAuthRetry(ctx, s.LedgerRefresher, func(ctx context.Context) (*ledger.RefundResult, error) {
		return s.Ledger.CancelOrRefund(ctx, ledger.RefundRequest{
			PaymentIntentID: claimed.PaymentIntentID,
			BookingID:       claimed.ID,
			RequestedBy:     req.ActorID,
			Reason:          reason,
			IdempotencyKey:  idempotencyKey(claimed, string(target)),
		})
	})
	if err != nil {
		s.releaseClaim(ctx, claimed, label)
		return nil, ledgerError(err, b.ID, label)
	}

	out, err := s.write(ctx, claimed, models.BookingPatch{Status: &target, ReleaseClaim: true}, label)
	if err != nil {
		s.scheduleReconcile(ctx, claimed, claimed.PaymentIntentID, target, "funds released but not recorded")
		return nil, err
	}
	return &TransitionResult{Booking: out, Payment: &ledger.Result{Refund: refund}}, nil
}

// Reconcile settles a claim left behind by an interrupted financial
// transition, using the payment intent's state as the truth. Errors are
// returned so the caller can retry.
func (s *DefaultBookingService) Reconcile(ctx context.Context, in ReconcileInput) error {
	b, err := s.load(ctx, in.BookingID)
	if err != nil {
		return err
	}
	log := s.logger().With(zap.String("bookingId", b.ID), zap.String("target", string(in.Target)))
	if b.PendingTransition == "" || b.PendingTransition != string(in.Target) {
		log.Info("nothing to reconcile", zap.String("pendingTransition", b.PendingTransition))
		return nil
	}
	label := transitionLabel(b.Status, in.Target)

	pi := in.PaymentIntentID
	if pi == "" {
		pi = b.PaymentIntentID
	}
	patch := models.BookingPatch{ReleaseClaim: true}
	if pi != "" {
		intent, err := utils.WithAuthRetry(ctx, s.LedgerRefresher, func(ctx context.Context) (*models.PaymentAuthorization, error) {
			return s.Ledger.Retrieve(ctx, pi)
		})
		if err != nil {
			return ledgerError(err, b.ID, label)
		}
		switch in.Target {
		case models.StatusConfirmed:
			// The hold was never recorded and the client may retry confirm.
			if holdsIntent(b, pi) {
				break
			}
			if intent.Status.Voidable() {
				_, err := utils.WithAuthRetry(ctx, s.LedgerRefresher, func(ctx context.Context) (*ledger.RefundResult, error) {
					return s.Ledger.CancelOrRefund(ctx, ledger.RefundRequest{
						PaymentIntentID: pi,
						BookingID:       b.ID,
						RequestedBy:     "system",
						Reason:          "abandoned",
						IdempotencyKey:  idempotencyKey(b, "reconcile"),
					})
				})
				if err != nil {
					return ledgerError(err, b.ID, label)
				}
			}
		case models.StatusCompleted:
			if intent.Status == models.PaymentSucceeded {
				patch.Status = &in.Target
			}
		case models.StatusCancelled, models.StatusRefunded:
			if intent.Status == models.PaymentCanceled || intent.AmountRefunded > 0 {
				patch.Status = &in.Target
			}
		}
	}

	out, err := s.write(ctx, b, patch, label)
	if err != nil {
		return err
	}
	log.Info("booking reconciled", zap.String("status", string(out.Status)), zap.Int64("version", out.Version))
	return nil
}

func (s *DefaultBookingService) Propose(ctx context.Context, providerID, bookingID string, proposal ProposalInput) (*TransitionResult, error) {
	return s.Transition(ctx, TransitionRequest{BookingID: bookingID, ActorID: providerID, Target: models.StatusPendingBuyer, Proposal: &proposal})
}

func (s *DefaultBookingService) Decline(ctx context.Context, providerID, bookingID, reason string) (*TransitionResult, error) {
	return s.Transition(ctx, TransitionRequest{BookingID: bookingID, ActorID: providerID, Target: models.StatusDeclined, Reason: reason})
}

func (s *DefaultBookingService) Confirm(ctx context.Context, clientID, bookingID string) (*TransitionResult, error) {
	return s.Transition(ctx, TransitionRequest{BookingID: bookingID, ActorID: clientID, Target: models.StatusConfirmed})
}

func (s *DefaultBookingService) StartWork(ctx context.Context, providerID, bookingID string) (*TransitionResult, error) {
	return s.Transition(ctx, TransitionRequest{BookingID: bookingID, ActorID: providerID, Target: models.StatusInProgress})
}

func (s *DefaultBookingService) MarkAwaitingReview(ctx context.Context, providerID, bookingID string) (*TransitionResult, error) {
	return s.Transition(ctx, TransitionRequest{BookingID: bookingID, ActorID: providerID, Target: models.StatusAwaitingReview})
}

func (s *DefaultBookingService) Complete(ctx context.Context, clientID, bookingID string) (*TransitionResult, error) {
	return s.Transition(ctx, TransitionRequest{BookingID: bookingID, ActorID: clientID, Target: models.StatusCompleted})
}

func (s *DefaultBookingService) Dispute(ctx context.Context, clientID, bookingID, reason string) (*TransitionResult, error) {
	return s.Transition(ctx, TransitionRequest{BookingID: bookingID, ActorID: clientID, Target: models.StatusDisputed, Reason: reason})
}

func (s *DefaultBookingService) Cancel(ctx context.Context, actorID, bookingID, reason string) (*TransitionResult, error) {
	return s.Transition(ctx, TransitionRequest{BookingID: bookingID, ActorID: actorID, Target: models.StatusCancelled, Reason: reason})
}

func (s *DefaultBookingService) Refund(ctx context.Context, actorID, bookingID, reason string) (*TransitionResult, error) {
	return s.Transition(ctx, TransitionRequest{BookingID: bookingID, ActorID: actorID, Target: models.StatusRefunded, Reason: reason})
}
