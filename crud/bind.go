package crud

import (
	"context"
	"fmt"

	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
	"github.com/next-trace/scg-shared-kernel/servicebus"
)

// Bind installs the command and query fallbacks serving every generic request
// whose entity has a store in repos.
func Bind(b *servicebus.Bus, repos *Repositories) error {
	if err := servicebus.BindCommandFallback[CommandOperation](b, handler(repos)); err != nil {
		return fmt.Errorf("bind crud commands: %w", err)
	}

	if err := servicebus.BindQueryFallback[QueryOperation](b, handler(repos)); err != nil {
		return fmt.Errorf("bind crud queries: %w", err)
	}

	return nil
}

func handler(repos *Repositories) servicebus.HandlerFunc {
	return func(ctx context.Context, req any) (any, error) {
		op, ok := req.(Operation)
		if !ok {
			return nil, fmt.Errorf("crud %T: %w", req, berr.ErrHandlerTypeMismatch)
		}

		return op.execute(ctx, repos)
	}
}
