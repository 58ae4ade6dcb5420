package nats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
)

// QueueSubscriber is the part of *nats.Conn a Subscriber needs.
type QueueSubscriber interface {
	QueueSubscribe(subject, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
}

type SubscriberOption func(*Subscriber)

func WithExtractor(e cbus.HeaderExtractor) SubscriberOption {
	return func(s *Subscriber) { s.extract = e }
}

func WithSubscriberLogger(l *slog.Logger) SubscriberOption {
	return func(s *Subscriber) { s.log = l }
}

// Subscriber consumes a subject as a member of a queue group. Core NATS has no
// redelivery, so handler failures are logged and the message is dropped.
type Subscriber struct {
	conn    QueueSubscriber
	subject string
	queue   string
	handler cbus.MessageHandler
	extract cbus.HeaderExtractor
	log     *slog.Logger
}

func NewSubscriber(conn QueueSubscriber, subject, queue string, h cbus.MessageHandler, opts ...SubscriberOption) *Subscriber {
	s := &Subscriber{conn: conn, subject: subject, queue: queue, handler: h, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}

	s.log = s.log.With("component", "nats", "subject", subject)

	return s
}

func (s *Subscriber) Name() string { return "nats:" + s.subject }

// Run subscribes and blocks until ctx is done, then drains the subscription.
func (s *Subscriber) Run(ctx context.Context) error {
	sub, err := s.conn.QueueSubscribe(s.subject, s.queue, func(m *nats.Msg) { s.Deliver(ctx, m) })
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", s.subject, err)
	}

	<-ctx.Done()

	if err := sub.Drain(); err != nil {
		s.log.Warn("nats drain failed", "error", err)
	}

	return nil
}

// Deliver handles one message.
func (s *Subscriber) Deliver(ctx context.Context, m *nats.Msg) {
	headers := make(map[string]string, len(m.Header))
	for k := range m.Header {
		headers[k] = m.Header.Get(k)
	}

	if s.extract != nil {
		ctx = s.extract.Extract(ctx, headers)
	}

	if err := s.handler.Handle(ctx, headers, m.Data); err != nil {
		s.log.ErrorContext(ctx, "message failed", "message_type", headers[cbus.HeaderMessageType], "error", err)
	}
}
