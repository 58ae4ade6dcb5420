package behavior

import (
	"context"

	"github.com/next-trace/scg-shared-kernel/servicebus"
)

// UnitOfWork runs fn inside a transaction carried by the returned context.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Transaction runs commands inside uow. Queries pass through untouched.
func Transaction(uow UnitOfWork) servicebus.Middleware {
	return func(next servicebus.HandlerFunc) servicebus.HandlerFunc {
		return func(ctx context.Context, req any) (any, error) {
			if servicebus.KindFrom(ctx) != servicebus.KindCommand {
				return next(ctx, req)
			}

			var res any

			err := uow.Do(ctx, func(ctx context.Context) error {
				var err error
				res, err = next(ctx, req)

				return err
			})
			if err != nil {
				return nil, err
			}

			return res, nil
		}
	}
}
