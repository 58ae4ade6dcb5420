package behavior

import (
	"context"

	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
	"github.com/next-trace/scg-shared-kernel/servicebus"
)

// Timeout bounds cbus.Timeoutable requests with a context deadline. Handlers must
// honour ctx for the deadline to take effect.
func Timeout() servicebus.Middleware {
	return func(next servicebus.HandlerFunc) servicebus.HandlerFunc {
		return func(ctx context.Context, req any) (any, error) {
			t, ok := req.(cbus.Timeoutable)
			if !ok || t.Timeout() <= 0 {
				return next(ctx, req)
			}

			ctx, cancel := context.WithTimeout(ctx, t.Timeout())
			defer cancel()

			return next(ctx, req)
		}
	}
}
