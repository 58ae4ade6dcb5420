package bus

import "context"

// MessageHandler consumes one delivery pulled off a transport.
// *servicebus.Receiver implements it; transport consumers call it per message.
type MessageHandler interface {
	Handle(ctx context.Context, headers map[string]string, body []byte) error
}

// HeaderExtractor restores context carried in headers. It mirrors HeaderPropagator on the consumer side.
type HeaderExtractor interface {
	Extract(ctx context.Context, headers map[string]string) context.Context
}
