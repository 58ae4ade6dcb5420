package bus

import "context"

// Binder registers untyped handlers. The generic Bind helpers in servicebus build on it.
type Binder interface {
	BindCommandOf(sample any, handler func(ctx context.Context, v any) error) error
	BindQueryOf(sample any, handler func(ctx context.Context, v any) (any, error)) error
	BindDomainEventOf(sample any, handler func(ctx context.Context, v any) error) error
}

// Sender executes commands and queries.
type Sender interface {
	// Dispatch queues Queueable commands and runs the rest in process.
	Dispatch(ctx context.Context, cmd Command) error
	// DispatchSync always runs in process.
	DispatchSync(ctx context.Context, cmd Command) error
	// DispatchNow is DispatchSync.
	DispatchNow(ctx context.Context, cmd Command) error
	Ask(ctx context.Context, query any) (any, error)
}

// Publisher fans domain events out in process and hands integration events to
// the configured EventPublisher.
type Publisher interface {
	PublishDomain(ctx context.Context, event DomainEvent) error
	PublishIntegration(ctx context.Context, event IntegrationEvent, opts PublishOptions) error
}

// Bus is the non-generic mediator contract for code that depends on contracts only.
type Bus interface {
	Binder
	Sender
	Publisher

	Close() error
}
