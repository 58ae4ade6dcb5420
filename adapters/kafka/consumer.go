package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/next-trace/scg-shared-kernel/config"
	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
)

// MessageReader is the part of *kafkago.Reader a Consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type ConsumerOption func(*Consumer)

func WithExtractor(e cbus.HeaderExtractor) ConsumerOption { return func(c *Consumer) { c.extract = e } }

func WithConsumerLogger(l *slog.Logger) ConsumerOption { return func(c *Consumer) { c.log = l } }

// Consumer reads records of a consumer group and hands them to a handler.
// Offsets are committed after each record whether or not the handler succeeded;
// failures are logged.
type Consumer struct {
	r       MessageReader
	name    string
	handler cbus.MessageHandler
	extract cbus.HeaderExtractor
	log     *slog.Logger
}

func NewConsumer(r MessageReader, name string, h cbus.MessageHandler, opts ...ConsumerOption) *Consumer {
	c := &Consumer{r: r, name: name, handler: h, log: slog.Default()}
	for _, o := range opts {
		o(c)
	}

	c.log = c.log.With("component", "kafka", "consumer", name)

	return c
}

// NewReader opens a group reader on topic.
func NewReader(cfg config.KafkaConfig, topic string) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: cfg.Brokers,
		GroupID: cfg.GroupID,
		Topic:   topic,
	})
}

func (c *Consumer) Name() string { return "kafka:" + c.name }

// Run fetches until ctx is done, then closes the reader.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.r.Close(); err != nil {
			c.log.Warn("kafka reader close failed", "error", err)
		}
	}()

	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}

			return fmt.Errorf("kafka fetch: %w", err)
		}

		c.Deliver(ctx, msg)

		if err := c.r.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			return fmt.Errorf("kafka commit: %w", err)
		}
	}
}

// Deliver handles one record.
func (c *Consumer) Deliver(ctx context.Context, msg kafkago.Message) {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	if c.extract != nil {
		ctx = c.extract.Extract(ctx, headers)
	}

	if err := c.handler.Handle(ctx, headers, msg.Value); err != nil {
		c.log.ErrorContext(ctx, "record failed", "topic", msg.Topic, "partition", msg.Partition,
			"offset", msg.Offset, "error", err)
	}
}
