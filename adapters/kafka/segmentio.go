package kafka

import (
	"context"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/next-trace/scg-shared-kernel/config"
	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
)

// MessageWriter is the part of *kafkago.Writer the adapter uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
}

type segmentWriter struct{ w MessageWriter }

// NewSegmentWriter adapts a kafka-go writer. The writer must not have a fixed Topic.
func NewSegmentWriter(w MessageWriter) Writer { return segmentWriter{w: w} }

func (s segmentWriter) Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	msg := kafkago.Message{Topic: topic, Key: key, Value: value}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafkago.Header{Key: k, Value: []byte(v)})
	}

	return s.w.WriteMessages(ctx, msg)
}

// NewWithKafkaGo builds an Adapter over a kafka-go writer balancing by key.
// The cleanup closes the writer.
func NewWithKafkaGo(cfg config.KafkaConfig) (*Adapter, func(), error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil, fmt.Errorf("kafka brokers required: %w", berr.ErrPublishFailed)
	}

	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}

	return New(NewSegmentWriter(w)), func() { _ = w.Close() }, nil
}
