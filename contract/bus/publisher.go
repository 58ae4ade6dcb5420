package bus

import "context"

// EventPublisher sends integration events out of the process, either to a
// transport directly or to the outbox.
type EventPublisher interface {
	PublishIntegration(ctx context.Context, evt IntegrationEvent, opts PublishOptions) error
}
