package cron

import (
	"context"
	"time"

	"gigbook/config"
	"gigbook/models"
	"gigbook/services/booking"
	"gigbook/services/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Reconciler settles bookings whose ledger and store state diverged.
type Reconciler interface {
	Reconcile(ctx context.Context, in booking.ReconcileInput) error
}

// RedisOpt returns the asynq connection for the reconcile queue.
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisQueueDB,
	}
}

// InitReconcileWorker runs the reconcile worker in background and returns the
// server so the caller can shut it down.
func InitReconcileWorker(ctx context.Context, cfg *config.Config, svc Reconciler, logger *zap.Logger) *asynq.Server {
	srv := asynq.NewServer(
		RedisOpt(cfg),
		asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				"critical": 6,
				"default":  1,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n*n) * 10 * time.Second
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeBookingReconcile, handleReconcileTask(svc, logger))

	go monitorRedisConnection(ctx, cfg, logger)

	// Start async worker with retry logic
	go func() {
		logger.Info("starting reconcile worker")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			err := srv.Run(mux)
			if err == nil {
				break
			}
			logger.Error("reconcile worker failed to start",
				zap.Int("attempt", attempts), zap.Int("maxAttempts", maxAttempts), zap.Error(err))
			if attempts == maxAttempts {
				logger.Fatal("reconcile worker: max retry attempts reached")
			}
			time.Sleep(time.Duration(attempts*2) * time.Second)
		}
	}()
	return srv
}

func handleReconcileTask(svc Reconciler, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		p, err := tasks.ParseReconcilePayload(task)
		if err != nil {
			logger.Error("dropping reconcile task", zap.Error(err))
			return asynq.SkipRetry
		}

		logger.Info("reconciling booking",
			zap.String("bookingId", p.BookingID),
			zap.String("paymentIntentId", p.PaymentIntentID),
			zap.String("target", p.Target),
			zap.String("reason", p.Reason))

		err = svc.Reconcile(ctx, booking.ReconcileInput{
			BookingID:       p.BookingID,
			PaymentIntentID: p.PaymentIntentID,
			Target:          models.BookingStatus(p.Target),
		})
		if err != nil {
			logger.Warn("reconcile failed, will retry", zap.String("bookingId", p.BookingID), zap.Error(err))
		}
		return err
	}
}

// monitorRedisConnection pings the queue database to surface outages at runtime.
func monitorRedisConnection(ctx context.Context, cfg *config.Config, logger *zap.Logger) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisQueueDB,
	})
	defer client.Close()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.Ping(ctx).Err(); err != nil {
				logger.Warn("queue redis connection lost", zap.Error(err))
			}
		}
	}
}
