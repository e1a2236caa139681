package ledger

import (
	"context"
	"fmt"
	"sync"

	"gigbook/apperror"
	"gigbook/models"

	"github.com/google/uuid"
)

const (
	OpAuthorize = "authorize"
	OpCapture   = "capture"
	OpRefund    = "cancel_or_refund"
	OpRetrieve  = "retrieve"
)

// MemoryGateway keeps payment intents in process. It honours idempotency
// keys and supports failure injection per operation.
type MemoryGateway struct {
	mu         sync.Mutex
	intents    map[string]*models.PaymentAuthorization
	idempotent map[string]any
	calls      map[string]int
	failures   map[string][]error
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		intents:    make(map[string]*models.PaymentAuthorization),
		idempotent: make(map[string]any),
		calls:      make(map[string]int),
		failures:   make(map[string][]error),
	}
}

// FailNext makes the next call to op return err.
func (g *MemoryGateway) FailNext(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[op] = append(g.failures[op], err)
}

// Calls counts invocations of op that reached the ledger, failed ones included.
func (g *MemoryGateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

// Intent returns a copy of the stored intent.
func (g *MemoryGateway) Intent(id string) (models.PaymentAuthorization, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	pi, ok := g.intents[id]
	if !ok {
		return models.PaymentAuthorization{}, false
	}
	return *pi, true
}

// SetStatus moves a stored intent to status, as a client confirming or
// abandoning card entry would.
func (g *MemoryGateway) SetStatus(id string, status models.PaymentStatus) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	pi, ok := g.intents[id]
	if ok {
		pi.Status = status
	}
	return ok
}

// enter must be called with mu held.
func (g *MemoryGateway) enter(op string) error {
	g.calls[op]++
	if q := g.failures[op]; len(q) > 0 {
		g.failures[op] = q[1:]
		return q[0]
	}
	return nil
}

func (g *MemoryGateway) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(OpAuthorize); err != nil {
		return nil, err
	}
	if req.IdempotencyKey != "" {
		if prev, ok := g.idempotent[OpAuthorize+req.IdempotencyKey].(*AuthorizeResult); ok {
			cp := *prev
			return &cp, nil
		}
	}
	if req.Amount <= 0 {
		return nil, apperror.Validation("authorization amount must be positive").WithBooking(req.BookingID, "")
	}
	if req.DestinationAccountID == "" {
		return nil, apperror.PaymentGateway(fmt.Errorf("provider payout account missing")).WithBooking(req.BookingID, "")
	}

	id := "pi_" + uuid.New().String()
	g.intents[id] = &models.PaymentAuthorization{
		PaymentIntentID:      id,
		Amount:               req.Amount,
		Currency:             req.Currency,
		Status:               models.PaymentRequiresCapture,
		DestinationAccountID: req.DestinationAccountID,
		ApplicationFeeAmount: req.FeeAmount,
		BookingID:            req.BookingID,
	}
	res := &AuthorizeResult{
		PaymentIntentID: id,
		ClientSecret:    id + "_secret",
		Status:          models.PaymentRequiresCapture,
		Amount:          req.Amount,
		Currency:        req.Currency,
	}
	if req.IdempotencyKey != "" {
		g.idempotent[OpAuthorize+req.IdempotencyKey] = res
	}
	cp := *res
	return &cp, nil
}

func (g *MemoryGateway) Retrieve(ctx context.Context, paymentIntentID string) (*models.PaymentAuthorization, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(OpRetrieve); err != nil {
		return nil, err
	}
	pi, ok := g.intents[paymentIntentID]
	if !ok {
		return nil, apperror.NotFound("payment intent", paymentIntentID)
	}
	cp := *pi
	return &cp, nil
}

func (g *MemoryGateway) Capture(ctx context.Context, paymentIntentID, idempotencyKey string) (*CaptureResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(OpCapture); err != nil {
		return nil, err
	}
	if idempotencyKey != "" {
		if prev, ok := g.idempotent[OpCapture+idempotencyKey].(*CaptureResult); ok {
			cp := *prev
			return &cp, nil
		}
	}
	pi, ok := g.intents[paymentIntentID]
	if !ok {
		return nil, apperror.NotFound("payment intent", paymentIntentID)
	}
	if pi.Status != models.PaymentRequiresCapture {
		return nil, apperror.InvalidPaymentState("payment intent %s is %s, not capturable", paymentIntentID, pi.Status).
			WithBooking(pi.BookingID, "")
	}
	pi.Status = models.PaymentSucceeded
	pi.AmountReceived = pi.Amount

	res := &CaptureResult{PaymentIntentID: pi.PaymentIntentID, Status: pi.Status, AmountReceived: pi.AmountReceived}
	if idempotencyKey != "" {
		g.idempotent[OpCapture+idempotencyKey] = res
	}
	cp := *res
	return &cp, nil
}

func (g *MemoryGateway) CancelOrRefund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(OpRefund); err != nil {
		return nil, err
	}
	if req.IdempotencyKey != "" {
		if prev, ok := g.idempotent[OpRefund+req.IdempotencyKey].(*RefundResult); ok {
			cp := *prev
			return &cp, nil
		}
	}
	pi, ok := g.intents[req.PaymentIntentID]
	if !ok {
		return nil, apperror.NotFound("payment intent", req.PaymentIntentID)
	}

	var res *RefundResult
	switch {
	case pi.Status == models.PaymentCanceled:
		res = &RefundResult{PaymentIntentID: pi.PaymentIntentID, Status: pi.Status}
	case pi.Status.Voidable():
		pi.Status = models.PaymentCanceled
		res = &RefundResult{PaymentIntentID: pi.PaymentIntentID, Status: pi.Status}
	case pi.Status == models.PaymentSucceeded:
		if pi.AmountRefunded >= pi.AmountReceived {
			return nil, apperror.InvalidPaymentState("payment intent %s already refunded", pi.PaymentIntentID).
				WithBooking(pi.BookingID, "")
		}
		amount := pi.AmountReceived - pi.AmountRefunded
		pi.AmountRefunded = pi.AmountReceived
		res = &RefundResult{
			PaymentIntentID: pi.PaymentIntentID,
			Status:          pi.Status,
			RefundID:        "re_" + uuid.New().String(),
			RefundedAmount:  amount,
			Captured:        true,
		}
	default:
		return nil, apperror.InvalidPaymentState("payment intent %s cannot be refunded in status %s", pi.PaymentIntentID, pi.Status).
			WithBooking(pi.BookingID, "")
	}
	if req.IdempotencyKey != "" {
		g.idempotent[OpRefund+req.IdempotencyKey] = res
	}
	cp := *res
	return &cp, nil
}
