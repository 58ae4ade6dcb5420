package bus

// Transport headers set by the bus and read back by consumers.
const (
	HeaderMessageType = "x-message-type"
	HeaderListener    = "x-listener"
	HeaderDelay       = "x-delay"
)

// QueueOptions represents enqueue parameters for commands or listeners.
// DelaySeconds is preferred over time units for transport-agnostic mapping.
type QueueOptions struct {
	Queue        string
	DelaySeconds int
	Connection   string
	Headers      map[string]string
}

// PublishOptions controls integration event publishing.
type PublishOptions struct {
	TopicOverride string
	Key           string
	Connection    string
	Headers       map[string]string
}
