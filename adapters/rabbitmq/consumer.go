package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/next-trace/scg-shared-kernel/adapters/internal/wire"
	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
)

// ErrDeliveriesClosed is returned by Consumer.Run when the broker closes the delivery channel.
var ErrDeliveriesClosed = errors.New("rabbitmq: delivery channel closed")

// DeliverySource is the part of *amqp.Channel a Consumer reads from.
type DeliverySource interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

type ConsumerOption func(*Consumer)

// WithPrefetch limits unacknowledged deliveries in flight.
func WithPrefetch(n int) ConsumerOption { return func(c *Consumer) { c.prefetch = n } }

// WithExtractor restores trace context from delivery headers.
func WithExtractor(e cbus.HeaderExtractor) ConsumerOption { return func(c *Consumer) { c.extract = e } }

func WithConsumerLogger(l *slog.Logger) ConsumerOption { return func(c *Consumer) { c.log = l } }

// Consumer reads a queue and hands each delivery to a handler. Successful
// deliveries are acked; failed ones are rejected without requeue so the
// broker can dead-letter them.
type Consumer struct {
	src      DeliverySource
	queue    string
	handler  cbus.MessageHandler
	extract  cbus.HeaderExtractor
	prefetch int
	log      *slog.Logger
}

func NewConsumer(src DeliverySource, queue string, h cbus.MessageHandler, opts ...ConsumerOption) *Consumer {
	c := &Consumer{src: src, queue: queue, handler: h, log: slog.Default()}
	for _, o := range opts {
		o(c)
	}

	c.log = c.log.With("component", "rabbitmq", "queue", queue)

	return c
}

func (c *Consumer) Name() string { return "rabbitmq:" + c.queue }

// Run consumes until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	if c.prefetch > 0 {
		if err := c.src.Qos(c.prefetch, 0, false); err != nil {
			return fmt.Errorf("rabbitmq qos: %w", err)
		}
	}

	deliveries, err := c.src.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq consume %s: %w", c.queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}

			c.Deliver(ctx, d)
		}
	}
}

// Deliver handles one delivery and settles it.
func (c *Consumer) Deliver(ctx context.Context, d amqp.Delivery) {
	headers := wire.StringHeaders(d.Headers)
	if ms := delayHeaderMillis(d.Headers); ms != "" {
		headers[cbus.HeaderDelay] = ms
	}

	if headers[cbus.HeaderMessageType] == "" && d.Type != "" {
		headers[cbus.HeaderMessageType] = d.Type
	}

	if c.extract != nil {
		ctx = c.extract.Extract(ctx, headers)
	}

	if err := c.handler.Handle(ctx, headers, d.Body); err != nil {
		c.log.ErrorContext(ctx, "delivery failed", "message_type", headers[cbus.HeaderMessageType],
			"delivery_tag", d.DeliveryTag, "error", err)

		if rerr := d.Reject(false); rerr != nil {
			c.log.ErrorContext(ctx, "reject failed", "error", rerr)
		}

		return
	}

	if err := d.Ack(false); err != nil {
		c.log.ErrorContext(ctx, "ack failed", "error", err)
	}
}
