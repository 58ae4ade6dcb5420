package azservicebus

import (
	"context"
	"fmt"
	"log/slog"

	asb "github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"github.com/next-trace/scg-shared-kernel/adapters/internal/wire"
	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
)

const defaultBatch = 10

// Receiver is the part of *azservicebus.Receiver a Consumer uses.
type Receiver interface {
	ReceiveMessages(ctx context.Context, maxMessages int, opts *asb.ReceiveMessagesOptions) ([]*asb.ReceivedMessage, error)
	CompleteMessage(ctx context.Context, msg *asb.ReceivedMessage, opts *asb.CompleteMessageOptions) error
	DeadLetterMessage(ctx context.Context, msg *asb.ReceivedMessage, opts *asb.DeadLetterOptions) error
	Close(ctx context.Context) error
}

type ConsumerOption func(*Consumer)

func WithExtractor(e cbus.HeaderExtractor) ConsumerOption { return func(c *Consumer) { c.extract = e } }

func WithConsumerLogger(l *slog.Logger) ConsumerOption { return func(c *Consumer) { c.log = l } }

// WithBatch sets how many messages are requested per receive.
func WithBatch(n int) ConsumerOption { return func(c *Consumer) { c.batch = n } }

// Consumer receives from a queue, completing handled messages and dead-lettering failed ones.
type Consumer struct {
	r       Receiver
	entity  string
	handler cbus.MessageHandler
	extract cbus.HeaderExtractor
	batch   int
	log     *slog.Logger
}

func NewConsumer(r Receiver, entity string, h cbus.MessageHandler, opts ...ConsumerOption) *Consumer {
	c := &Consumer{r: r, entity: entity, handler: h, batch: defaultBatch, log: slog.Default()}
	for _, o := range opts {
		o(c)
	}

	c.log = c.log.With("component", "azservicebus", "entity", entity)

	return c
}

func (c *Consumer) Name() string { return "azservicebus:" + c.entity }

// Run receives until ctx is done, then closes the receiver.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.r.Close(context.WithoutCancel(ctx)); err != nil {
			c.log.Warn("receiver close failed", "error", err)
		}
	}()

	for {
		msgs, err := c.r.ReceiveMessages(ctx, c.batch, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("azure service bus receive %s: %w", c.entity, err)
		}

		for _, m := range msgs {
			c.Deliver(ctx, m)
		}
	}
}

// Deliver handles and settles one message.
func (c *Consumer) Deliver(ctx context.Context, m *asb.ReceivedMessage) {
	headers := wire.StringHeaders(m.ApplicationProperties)
	if headers[cbus.HeaderMessageType] == "" && m.Subject != nil {
		headers[cbus.HeaderMessageType] = *m.Subject
	}

	if c.extract != nil {
		ctx = c.extract.Extract(ctx, headers)
	}

	settle := context.WithoutCancel(ctx)

	if err := c.handler.Handle(ctx, headers, m.Body); err != nil {
		c.log.ErrorContext(ctx, "message failed", "message_id", m.MessageID, "error", err)

		opts := &asb.DeadLetterOptions{Reason: ptr("handler failed"), ErrorDescription: ptr(err.Error())}
		if derr := c.r.DeadLetterMessage(settle, m, opts); derr != nil {
			c.log.ErrorContext(ctx, "dead letter failed", "error", derr)
		}

		return
	}

	if err := c.r.CompleteMessage(settle, m, nil); err != nil {
		c.log.ErrorContext(ctx, "complete failed", "error", err)
	}
}
