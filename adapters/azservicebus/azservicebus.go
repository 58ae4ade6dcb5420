// Package azservicebus provides an Azure Service Bus transport for the service bus.
// Each destination (cmd.*, listener.* or an event topic) is a queue or topic entity
// with its own cached sender. Delays become scheduled messages.
package azservicebus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	asb "github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"github.com/next-trace/scg-shared-kernel/adapters/internal/wire"
	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
)

const transport = "azservicebus"

// Sender is the part of *azservicebus.Sender the adapter uses.
type Sender interface {
	SendMessage(ctx context.Context, msg *asb.Message, opts *asb.SendMessageOptions) error
	Close(ctx context.Context) error
}

// SenderFactory opens a sender for a queue or topic.
type SenderFactory func(entity string) (Sender, error)

// Senders opens one sender per entity on first use and keeps it.
type Senders struct {
	mu      sync.Mutex
	open    SenderFactory
	senders map[string]Sender
}

func NewSenders(open SenderFactory) *Senders {
	return &Senders{open: open, senders: make(map[string]Sender)}
}

// Get returns the sender for entity, opening it if needed.
func (s *Senders) Get(entity string) (Sender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snd, ok := s.senders[entity]; ok {
		return snd, nil
	}

	snd, err := s.open(entity)
	if err != nil {
		return nil, fmt.Errorf("open sender %s: %w", entity, err)
	}

	s.senders[entity] = snd

	return snd, nil
}

// Close closes every sender and forgets them.
func (s *Senders) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for name, snd := range s.senders {
		if err := snd.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close sender %s: %w", name, err))
		}
	}

	clear(s.senders)

	return errors.Join(errs...)
}

type Adapter struct {
	Senders    *Senders
	Propagator cbus.HeaderPropagator
	Now        func() time.Time
}

var _ cbus.Adapter = (*Adapter)(nil)

func New(s *Senders) *Adapter { return &Adapter{Senders: s} }

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

	if a.Senders == nil {
		return wire.Unavailable(transport, label, base)
	}

	return nil
}

func (a *Adapter) send(ctx context.Context, m wire.Message) error {
	m.Inject(ctx, a.Propagator)

	snd, err := a.Senders.Get(m.Destination)
	if err != nil {
		return m.Fail(transport, err)
	}

	if err := snd.SendMessage(ctx, a.message(m), nil); err != nil {
		return m.Fail(transport, err)
	}

	return nil
}

func (a *Adapter) message(m wire.Message) *asb.Message {
	props := make(map[string]any, len(m.Headers))
	for k, v := range m.Headers {
		props[k] = v
	}

	msg := &asb.Message{
		Body:                  m.Body,
		ApplicationProperties: props,
		ContentType:           ptr("application/json"),
	}

	if t := m.Headers[cbus.HeaderMessageType]; t != "" {
		msg.Subject = ptr(t)
	}

	if m.Delay > 0 {
		now := time.Now
		if a.Now != nil {
			now = a.Now
		}

		msg.ScheduledEnqueueTime = ptr(now().Add(m.Delay))
	}

	return msg
}

func ptr[T any](v T) *T { return &v }
