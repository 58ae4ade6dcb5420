package behavior

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
	"github.com/next-trace/scg-shared-kernel/servicebus"
)

// Retry re-runs cbus.Retryable requests up to Tries() attempts. The wait between
// attempts follows cbus.Backoffable, the last entry repeating; without it attempts
// follow each other immediately. Retrying stops at cbus.RetryUntil or when ctx ends.
// Errors a second attempt cannot fix, such as validation or not found, are returned at once.
func Retry(logger *slog.Logger) servicebus.Middleware {
	logger = orDefault(logger)

	return func(next servicebus.HandlerFunc) servicebus.HandlerFunc {
		return func(ctx context.Context, req any) (any, error) {
			r, ok := req.(cbus.Retryable)
			if !ok || r.Tries() <= 1 {
				return next(ctx, req)
			}

			var (
				schedule []time.Duration
				deadline time.Time
			)

			if b, ok := req.(cbus.Backoffable); ok {
				schedule = b.Backoff()
			}

			if u, ok := req.(cbus.RetryUntil); ok {
				deadline = u.RetryUntil()
			}

			var (
				res any
				err error
			)

			for attempt := 1; ; attempt++ {
				res, err = next(ctx, req)
				if err == nil || !retriable(err) || attempt >= r.Tries() {
					return res, err
				}

				wait := backoffAt(schedule, attempt-1)
				if !deadline.IsZero() && time.Now().Add(wait).After(deadline) {
					return res, err
				}

				logger.WarnContext(ctx, "retrying request",
					"request", servicebus.MessageName(req),
					"attempt", attempt,
					"wait", wait,
					"error", err,
				)

				if werr := sleep(ctx, wait); werr != nil {
					return res, fmt.Errorf("retry %s: %w", servicebus.MessageName(req), errors.Join(err, werr))
				}
			}
		}
	}
}

func retriable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, berr.ErrValidation),
		errors.Is(err, berr.ErrUnauthorized),
		errors.Is(err, berr.ErrForbidden),
		errors.Is(err, berr.ErrNotFound),
		errors.Is(err, berr.ErrConflict),
		errors.Is(err, berr.ErrDuplicateRequest),
		errors.Is(err, berr.ErrAfterCommit),
		errors.Is(err, berr.ErrHandlerNotFound):
		return false
	}

	return true
}

func backoffAt(schedule []time.Duration, i int) time.Duration {
	if len(schedule) == 0 {
		return 0
	}

	if i >= len(schedule) {
		return schedule[len(schedule)-1]
	}

	return schedule[i]
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
