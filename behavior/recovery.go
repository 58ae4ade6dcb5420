package behavior

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
	"github.com/next-trace/scg-shared-kernel/servicebus"
)

// Recovery turns a panicking handler into an error matching ErrPanic.
func Recovery(logger *slog.Logger) servicebus.Middleware {
	logger = orDefault(logger)

	return func(next servicebus.HandlerFunc) servicebus.HandlerFunc {
		return func(ctx context.Context, req any) (res any, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorContext(ctx, "handler panicked",
						"request", servicebus.MessageName(req),
						"panic", r,
						"stack", string(debug.Stack()),
					)

					res, err = nil, fmt.Errorf("%s: %w: %v", servicebus.MessageName(req), berr.ErrPanic, r)
				}
			}()

			return next(ctx, req)
		}
	}
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}

	return logger
}
