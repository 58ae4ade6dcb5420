package behavior

import (
	"context"
	"log/slog"
	"time"

	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
	"github.com/next-trace/scg-shared-kernel/servicebus"
)

// Logging logs every request with its kind and duration. Successes are logged at
// debug level, failures at error level with the error code.
func Logging(logger *slog.Logger) servicebus.Middleware {
	logger = orDefault(logger)

	return func(next servicebus.HandlerFunc) servicebus.HandlerFunc {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			res, err := next(ctx, req)

			attrs := []any{
				"kind", string(servicebus.KindFrom(ctx)),
				"request", servicebus.MessageName(req),
				"duration", time.Since(start),
			}

			if err != nil {
				logger.ErrorContext(ctx, "request failed", append(attrs, "code", berr.CodeOf(err), "error", err)...)
				return res, err
			}

			logger.DebugContext(ctx, "request handled", attrs...)

			return res, nil
		}
	}
}
