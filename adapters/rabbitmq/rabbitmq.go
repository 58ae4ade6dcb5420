package rabbitmq

import (
	"context"
	"strconv"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/next-trace/scg-shared-kernel/adapters/internal/wire"
	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
)

const transport = "rabbitmq"

// DefaultExchange receives integration events unless Adapter.Exchange is set.
const DefaultExchange = "integration"

type PubMsg struct {
	Exchange   string
	RoutingKey string
	Body       []byte
	Headers    map[string]string
}

type Publisher interface {
	Publish(ctx context.Context, m PubMsg) error
}

type Adapter struct {
	Publisher  Publisher
	Propagator cbus.HeaderPropagator
	// Exchange for integration events; DefaultExchange when empty.
	Exchange string
}

var _ cbus.Adapter = (*Adapter)(nil)

func New(p Publisher) *Adapter { return &Adapter{Publisher: p} }

// NewWithPropagator injects trace context into every message.
func NewWithPropagator(p Publisher, hp cbus.HeaderPropagator) *Adapter {
	return &Adapter{Publisher: p, Propagator: hp}
}

func (a *Adapter) EnqueueCommand(ctx context.Context, cmd cbus.Command, opts cbus.QueueOptions) error {
	if err := a.ready(ctx, "enqueue", berr.ErrEnqueueFailed); err != nil {
		return err
	}

	m, err := wire.Command(cmd, opts)
	if err != nil {
		return err
	}

	return a.send(ctx, "", m)
}

func (a *Adapter) EnqueueListener(ctx context.Context, e cbus.DomainEvent, handler string, opts cbus.QueueOptions) error {
	if err := a.ready(ctx, "enqueue listener", berr.ErrEnqueueFailed); err != nil {
		return err
	}

	m, err := wire.Listener(e, handler, opts)
	if err != nil {
		return err
	}

	return a.send(ctx, "", m)
}

func (a *Adapter) PublishIntegration(ctx context.Context, e cbus.IntegrationEvent, opts cbus.PublishOptions) error {
	if err := a.ready(ctx, "publish", berr.ErrPublishFailed); err != nil {
		return err
	}

	m, err := wire.Integration(e, opts)
	if err != nil {
		return err
	}

	exchange := a.Exchange
	if exchange == "" {
		exchange = DefaultExchange
	}

	return a.send(ctx, exchange, m)
}

func (a *Adapter) ready(ctx context.Context, label string, base error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Publisher == nil {
		return wire.Unavailable(transport, label, base)
	}

	return nil
}

func (a *Adapter) send(ctx context.Context, exchange string, m wire.Message) error {
	m.Inject(ctx, a.Propagator)

	err := a.Publisher.Publish(ctx, PubMsg{
		Exchange:   exchange,
		RoutingKey: m.Destination,
		Body:       m.Body,
		Headers:    m.Headers,
	})
	if err != nil {
		return m.Fail(transport, err)
	}

	return nil
}

// publishing converts m to an AMQP message. The delay header is sent in
// milliseconds as the delayed message exchange plugin expects.
func publishing(m PubMsg) amqp.Publishing {
	var h amqp.Table
	if len(m.Headers) > 0 {
		h = make(amqp.Table, len(m.Headers))
		for k, v := range m.Headers {
			h[k] = v
		}

		if d := wire.DelayOf(m.Headers); d > 0 {
			h[cbus.HeaderDelay] = d.Milliseconds()
		}
	}

	p := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Headers:      h,
		ContentType:  "application/json",
		Body:         m.Body,
	}

	if t := m.Headers[cbus.HeaderMessageType]; t != "" {
		p.Type = t
	}

	return p
}

// Channel is the part of *amqp.Channel the adapter publishes with.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type channelPublisher struct{ ch Channel }

func (p channelPublisher) Publish(ctx context.Context, m PubMsg) error {
	return p.ch.PublishWithContext(ctx, m.Exchange, m.RoutingKey, false, false, publishing(m))
}

// NewWithAMQPChannel publishes on an already open channel.
func NewWithAMQPChannel(ch Channel) *Adapter {
	return &Adapter{Publisher: channelPublisher{ch: ch}}
}

// delayHeaderMillis reads the AMQP form of the delay header, used by consumers.
func delayHeaderMillis(t amqp.Table) string {
	switch v := t[cbus.HeaderDelay].(type) {
	case int64:
		return strconv.FormatInt(v/1000, 10)
	case int32:
		return strconv.FormatInt(int64(v)/1000, 10)
	default:
		return ""
	}
}
