package bus

import "context"

// JobEnqueuer hands Queueable commands and queued listeners to a transport.
// handler is the listener name the receiving side resolves.
type JobEnqueuer interface {
	EnqueueCommand(ctx context.Context, cmd Command, opts QueueOptions) error
	EnqueueListener(ctx context.Context, evt DomainEvent, handler string, opts QueueOptions) error
}
