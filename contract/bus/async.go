package bus

import "time"

// revive:disable:max-public-structs
// Queueable indicates that a command prefers to be enqueued for async processing.
// Implement on command types that should be queued by default.
type Queueable interface {
	QueueName() string
	Delay() time.Duration
}

// QueueableListener indicates that a domain event listener may be enqueued.
// If a JobEnqueuer is configured, such listeners will be enqueued instead of invoked synchronously.
type QueueableListener interface {
	QueueName() string
	Delay() time.Duration
}

// Retryable allows a command to specify a maximum number of attempts.
type Retryable interface {
	Tries() int
}

// RetryUntil allows specifying a cutoff time after which the command is no longer retried.
type RetryUntil interface {
	RetryUntil() time.Time
}

// Backoffable exposes a backoff schedule between retries. The last entry repeats.
type Backoffable interface {
	Backoff() []time.Duration
}

// Timeoutable allows specifying a timeout for handler execution.
type Timeoutable interface {
	Timeout() time.Duration
}

// AfterCommit indicates that enqueue/publish should occur only after the surrounding
// unit of work commits. Ignored when no unit of work is active.
type AfterCommit interface {
	AfterCommit() bool
}

// Unique indicates that a request must be processed at most once per key for a period.
type Unique interface {
	UniqueKey() string
	UniqueTTL() time.Duration // zero means store default
}

// OnConnection allows selecting a named connection (transport instance) for queueing.
type OnConnection interface {
	Connection() string
}

// revive:enable:max-public-structs
