package behavior

import (
	"context"

	"github.com/next-trace/scg-shared-kernel/security"
	"github.com/next-trace/scg-shared-kernel/servicebus"
)

// Authorization checks requests implementing security.Authorized against their
// policies before the handler runs.
func Authorization(a *security.Authorizer) servicebus.Middleware {
	return func(next servicebus.HandlerFunc) servicebus.HandlerFunc {
		return func(ctx context.Context, req any) (any, error) {
			if ar, ok := req.(security.Authorized); ok {
				if err := a.Authorize(ctx, req, ar.Policies()...); err != nil {
					return nil, err
				}
			}

			return next(ctx, req)
		}
	}
}
