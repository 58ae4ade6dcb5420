package bus

// DomainEvent represents in-process domain events (fan-out to zero or more handlers).
// Handlers may be queued.
type DomainEvent interface{}

// Notification is the mediator name for a DomainEvent.
type Notification = DomainEvent

// IntegrationEvent represents events destined to external brokers (async). Topic() may guide routing.
type IntegrationEvent interface{ Topic() string }
