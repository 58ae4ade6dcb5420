package servicebus

import (
	"context"
	"fmt"
	"reflect"

	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
)

// Receiver is the consumer-side entry point: transports hand it what they pulled
// off the wire and it runs the matching handler on the Bus.
type Receiver struct {
	bus *Bus
}

// NewReceiver returns a Receiver dispatching onto b.
func NewReceiver(b *Bus) *Receiver { return &Receiver{bus: b} }

// Handle routes a delivery by its headers: a listener header selects a queued listener,
// otherwise the message type header names a command.
func (r *Receiver) Handle(ctx context.Context, headers map[string]string, body []byte) error {
	name := headers[cbus.HeaderMessageType]
	if name == "" {
		return fmt.Errorf("receive: missing %s header: %w", cbus.HeaderMessageType, berr.ErrUnknownMessageType)
	}

	if listener := headers[cbus.HeaderListener]; listener != "" {
		return r.HandleListener(ctx, name, listener, body)
	}

	return r.HandleCommand(ctx, name, body)
}

// HandleCommand decodes a queued command and executes it synchronously.
func (r *Receiver) HandleCommand(ctx context.Context, name string, body []byte) error {
	cmd, err := r.bus.types.Decode(name, body)
	if err != nil {
		return err
	}

	return r.bus.DispatchSync(ctx, cmd)
}

// HandleListener decodes a domain event and invokes the named listener directly.
// Queued listeners are never re-enqueued from here.
func (r *Receiver) HandleListener(ctx context.Context, eventName, listener string, body []byte) error {
	evt, err := r.bus.types.Decode(eventName, body)
	if err != nil {
		return err
	}

	r.bus.mu.RLock()
	entries := r.bus.dom[reflect.TypeOf(evt)]

	var call func(ctx context.Context, e any) error

	for _, ent := range entries {
		if ent.name == listener {
			call = ent.call
			break
		}
	}
	r.bus.mu.RUnlock()

	if call == nil {
		return fmt.Errorf("receive listener %s for %s: %w", listener, eventName, berr.ErrHandlerNotFound)
	}

	return call(ctx, evt)
}
