package audit

import (
	"context"
	"errors"

	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
)

// ErrPublisherUnavailable is returned by a PublisherWriter without a publisher.
var ErrPublisherUnavailable = errors.New("audit event publisher unavailable")

// TopicRecorded is the default topic audit events are published on.
const TopicRecorded = "audit.recorded"

// Recorded is the integration event carrying an audit Event to other services.
type Recorded struct {
	Event
	topic string
}

// Topic implements cbus.IntegrationEvent.
func (r Recorded) Topic() string { return r.topic }

// PublisherWriter forwards audit events as integration events.
type PublisherWriter struct {
	Publisher cbus.EventPublisher
	Topic     string
}

// NewPublisherWriter returns a writer publishing on TopicRecorded.
func NewPublisherWriter(pub cbus.EventPublisher) *PublisherWriter {
	return &PublisherWriter{Publisher: pub, Topic: TopicRecorded}
}

// Write publishes event keyed by its resource id, or its action when there is none.
func (w *PublisherWriter) Write(ctx context.Context, event Event) error {
	if w == nil || w.Publisher == nil {
		return ErrPublisherUnavailable
	}

	topic := w.Topic
	if topic == "" {
		topic = TopicRecorded
	}

	key := event.ResourceID
	if key == "" {
		key = event.Action
	}

	return w.Publisher.PublishIntegration(ctx, Recorded{Event: event, topic: topic}, cbus.PublishOptions{Key: key})
}
