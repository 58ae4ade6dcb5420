package servicebus

import (
	"context"

	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
)

// CommandBus is a thin facade over Bus for commands.
type CommandBus struct{ b *Bus }

// NewCommandBus constructs a CommandBus over a Bus.
func NewCommandBus(b *Bus) *CommandBus { return &CommandBus{b: b} }

// Dispatch dispatches a command using the underlying Bus.
func (c *CommandBus) Dispatch(ctx context.Context, cmd cbus.Command) error {
	return c.b.Dispatch(ctx, cmd)
}

// DispatchNow executes a command synchronously using the underlying Bus.
func (c *CommandBus) DispatchNow(ctx context.Context, cmd cbus.Command) error {
	return c.b.DispatchNow(ctx, cmd)
}

// SendGeneric executes a command via a CommandBus and returns its typed result.
func SendGeneric[C cbus.Command, R any](ctx context.Context, cb *CommandBus, cmd C) (R, error) {
	return Send[C, R](ctx, cb.b, cmd)
}

// QueryBus is a thin facade over Bus for queries.
type QueryBus struct{ b *Bus }

// NewQueryBus constructs a QueryBus over a Bus.
func NewQueryBus(b *Bus) *QueryBus { return &QueryBus{b: b} }

// Ask executes an untyped query using the underlying Bus.
func (q *QueryBus) Ask(ctx context.Context, query any) (any, error) { return q.b.Ask(ctx, query) }

// AskGeneric is a typed helper to execute queries via a QueryBus.
func AskGeneric[Q cbus.Query, R any](ctx context.Context, qb *QueryBus, query Q) (R, error) {
	return Ask[Q, R](ctx, qb.b, query)
}
