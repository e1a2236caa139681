package utils

import (
	"context"

	"gigbook/apperror"
)

// Refresher renews whatever credential a downstream call authenticates with.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefreshFunc adapts a function to Refresher.
type RefreshFunc func(ctx context.Context) error

func (f RefreshFunc) Refresh(ctx context.Context) error { return f(ctx) }

// WithAuthRetry runs op and, if it fails with an auth error, refreshes the
// credential once and runs op a second time. Other errors are returned as is.
// A nil refresher disables the retry.
func WithAuthRetry[T any](ctx context.Context, r Refresher, op func(ctx context.Context) (T, error)) (T, error) {
	res, err := op(ctx)
	if err == nil || r == nil || !apperror.IsAuth(err) {
		return res, err
	}
	if rerr := r.Refresh(ctx); rerr != nil {
		return res, err
	}
	return op(ctx)
}

// DoWithAuthRetry is WithAuthRetry for operations without a result.
func DoWithAuthRetry(ctx context.Context, r Refresher, op func(ctx context.Context) error) error {
	_, err := WithAuthRetry(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
