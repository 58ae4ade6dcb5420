// Package kafka provides a Kafka transport for the service bus. Every message is
// a record on its destination topic: cmd.* for commands, listener.* for queued
// listeners and the event topic for integration events, keyed by the publish key.
//
// The default Writer is backed by segmentio/kafka-go; building with the franz
// tag adds a twmb/franz-go writer.
package kafka

import (
	"context"

	"github.com/next-trace/scg-shared-kernel/adapters/internal/wire"
	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
)

const transport = "kafka"

// Writer produces one record.
type Writer interface {
	Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Adapter implements cbus.Adapter using an injected Writer.
type Adapter struct {
	Writer     Writer
	Propagator cbus.HeaderPropagator
}

var _ cbus.Adapter = (*Adapter)(nil)

func New(w Writer) *Adapter { return &Adapter{Writer: w} }

func (a *Adapter) EnqueueCommand(ctx context.Context, cmd cbus.Command, opts cbus.QueueOptions) error {
	if err := a.ready(ctx, "enqueue", berr.ErrEnqueueFailed); err != nil {
		return err
	}

	m, err := wire.Command(cmd, opts)
	if err != nil {
		return err
	}

	return a.write(ctx, m)
}

func (a *Adapter) EnqueueListener(ctx context.Context, e cbus.DomainEvent, handler string, opts cbus.QueueOptions) error {
	if err := a.ready(ctx, "enqueue listener", berr.ErrEnqueueFailed); err != nil {
		return err
	}

	m, err := wire.Listener(e, handler, opts)
	if err != nil {
		return err
	}

	return a.write(ctx, m)
}

func (a *Adapter) PublishIntegration(ctx context.Context, e cbus.IntegrationEvent, opts cbus.PublishOptions) error {
	if err := a.ready(ctx, "publish", berr.ErrPublishFailed); err != nil {
		return err
	}

	m, err := wire.Integration(e, opts)
	if err != nil {
		return err
	}

	return a.write(ctx, m)
}

func (a *Adapter) ready(ctx context.Context, label string, base error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Writer == nil {
		return wire.Unavailable(transport, label, base)
	}

	return nil
}

func (a *Adapter) write(ctx context.Context, m wire.Message) error {
	m.Inject(ctx, a.Propagator)

	var key []byte
	if m.Key != "" {
		key = []byte(m.Key)
	}

	if err := a.Writer.Write(ctx, m.Destination, key, m.Body, m.Headers); err != nil {
		return m.Fail(transport, err)
	}

	return nil
}
