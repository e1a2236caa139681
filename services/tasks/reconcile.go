package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const TypeBookingReconcile = "booking:reconcile"

// ReconcilePayload identifies a booking whose store record and ledger state
// may have diverged.
type ReconcilePayload struct {
	BookingID       string `json:"bookingId"`
	PaymentIntentID string `json:"paymentIntentId,omitempty"`
	// Target is the status the interrupted transition was heading for.
	Target string `json:"target"`
	Reason string `json:"reason,omitempty"`
}

// NewReconcileTask builds the task. Running it after delay lets the
// interrupted transition's claim lapse first.
func NewReconcileTask(payload ReconcilePayload, delay time.Duration) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeBookingReconcile, b)
	opts := []asynq.Option{
		asynq.ProcessIn(delay),
		asynq.MaxRetry(10),
		asynq.Queue("critical"),
		// One pending reconcile per booking and transition.
		asynq.TaskID(fmt.Sprintf("reconcile:%s:%s", payload.BookingID, payload.Target)),
	}
	return task, opts, nil
}

func ParseReconcilePayload(task *asynq.Task) (ReconcilePayload, error) {
	var p ReconcilePayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return p, fmt.Errorf("invalid reconcile payload: %w", err)
	}
	if p.BookingID == "" {
		return p, fmt.Errorf("invalid reconcile payload: bookingId missing")
	}
	return p, nil
}

// Scheduler queues reconcile work.
type Scheduler interface {
	ScheduleReconcile(ctx context.Context, payload ReconcilePayload) error
}

// AsynqScheduler enqueues reconcile tasks on Redis.
type AsynqScheduler struct {
	client *asynq.Client
	delay  time.Duration
}

func NewAsynqScheduler(client *asynq.Client, delay time.Duration) *AsynqScheduler {
	return &AsynqScheduler{client: client, delay: delay}
}

func (s *AsynqScheduler) ScheduleReconcile(ctx context.Context, payload ReconcilePayload) error {
	task, opts, err := NewReconcileTask(payload, s.delay)
	if err != nil {
		return err
	}
	_, err = s.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}
