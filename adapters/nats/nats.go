// Package nats provides a NATS transport for the service bus. Commands are
// published on cmd.* subjects, queued listeners on listener.* subjects and
// integration events on their topic. Subscriber consumes them with a queue group.
package nats

import (
	"context"

	"github.com/next-trace/scg-shared-kernel/adapters/internal/wire"
	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
)

const transport = "nats"

// Client is a minimal NATS-like publisher interface decoupled from any concrete library.
type Client interface {
	Publish(subject string, data []byte, headers map[string]string) error
}

// Adapter implements cbus.Adapter using an injected NATS-like Client.
type Adapter struct {
	Client     Client
	Propagator cbus.HeaderPropagator
}

var _ cbus.Adapter = (*Adapter)(nil)

func New(c Client) *Adapter { return &Adapter{Client: c} }

func (a *Adapter) EnqueueCommand(ctx context.Context, cmd cbus.Command, opts cbus.QueueOptions) error {
	if err := a.ready(ctx, "enqueue", berr.ErrEnqueueFailed); err != nil {
		return err
	}

	m, err := wire.Command(cmd, opts)
	if err != nil {
		return err
	}

	return a.send(ctx, m)
}

func (a *Adapter) EnqueueListener(ctx context.Context, e cbus.DomainEvent, handler string, opts cbus.QueueOptions) error {
	if err := a.ready(ctx, "enqueue listener", berr.ErrEnqueueFailed); err != nil {
		return err
	}

	m, err := wire.Listener(e, handler, opts)
	if err != nil {
		return err
	}

	return a.send(ctx, m)
}

func (a *Adapter) PublishIntegration(ctx context.Context, e cbus.IntegrationEvent, opts cbus.PublishOptions) error {
	if err := a.ready(ctx, "publish", berr.ErrPublishFailed); err != nil {
		return err
	}

	m, err := wire.Integration(e, opts)
	if err != nil {
		return err
	}

	return a.send(ctx, m)
}

func (a *Adapter) ready(ctx context.Context, label string, base error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Client == nil {
		return wire.Unavailable(transport, label, base)
	}

	return nil
}

func (a *Adapter) send(ctx context.Context, m wire.Message) error {
	m.Inject(ctx, a.Propagator)

	if err := a.Client.Publish(m.Destination, m.Body, m.Headers); err != nil {
		return m.Fail(transport, err)
	}

	return nil
}
