package bus

// Adapter combines queueing and publishing capabilities.
// Any transport that implements both JobEnqueuer and EventPublisher can be passed to the Bus
// (RabbitMQ, NATS, Kafka, Azure Service Bus, in-memory, or a router over several of them).
type Adapter interface {
	JobEnqueuer
	EventPublisher
}
