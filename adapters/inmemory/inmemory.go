// Package inmemory provides a recording transport for tests and local runs.
// With a handler attached it also delivers queued messages straight back,
// encoded exactly as a broker would carry them.
package inmemory

import (
	"context"
	"slices"
	"sync"

	"github.com/next-trace/scg-shared-kernel/adapters/internal/wire"
	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
)

// Enqueued is one recorded command or listener job.
type Enqueued struct {
	Message cbus.Command
	Handler string
	Options cbus.QueueOptions
}

// Published is one recorded integration event.
type Published struct {
	Event   cbus.IntegrationEvent
	Options cbus.PublishOptions
}

// Adapter records everything it is given. It is safe for concurrent use.
type Adapter struct {
	mu        sync.Mutex
	commands  []Enqueued
	listeners []Enqueued
	events    []Published
	deliver   cbus.MessageHandler
	err       error
}

var _ cbus.Adapter = (*Adapter)(nil)

func New() *Adapter { return &Adapter{} }

// Deliver makes queued commands and listeners run through h synchronously.
// Integration events are only recorded.
func (a *Adapter) Deliver(h cbus.MessageHandler) {
	a.mu.Lock()
	a.deliver = h
	a.mu.Unlock()
}

// FailWith makes every call return err until reset with nil.
func (a *Adapter) FailWith(err error) {
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
}

func (a *Adapter) EnqueueCommand(ctx context.Context, cmd cbus.Command, opts cbus.QueueOptions) error {
	h, err := a.record(func() { a.commands = append(a.commands, Enqueued{Message: cmd, Options: opts}) })
	if err != nil || h == nil {
		return err
	}

	m, err := wire.Command(cmd, opts)
	if err != nil {
		return err
	}

	return h.Handle(ctx, m.Headers, m.Body)
}

func (a *Adapter) EnqueueListener(ctx context.Context, e cbus.DomainEvent, handler string, opts cbus.QueueOptions) error {
	h, err := a.record(func() { a.listeners = append(a.listeners, Enqueued{Message: e, Handler: handler, Options: opts}) })
	if err != nil || h == nil {
		return err
	}

	m, err := wire.Listener(e, handler, opts)
	if err != nil {
		return err
	}

	return h.Handle(ctx, m.Headers, m.Body)
}

func (a *Adapter) PublishIntegration(_ context.Context, e cbus.IntegrationEvent, opts cbus.PublishOptions) error {
	_, err := a.record(func() { a.events = append(a.events, Published{Event: e, Options: opts}) })
	return err
}

func (a *Adapter) record(fn func()) (cbus.MessageHandler, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.err != nil {
		return nil, a.err
	}

	fn()

	return a.deliver, nil
}

func (a *Adapter) Commands() []Enqueued {
	a.mu.Lock()
	defer a.mu.Unlock()

	return slices.Clone(a.commands)
}

func (a *Adapter) Listeners() []Enqueued {
	a.mu.Lock()
	defer a.mu.Unlock()

	return slices.Clone(a.listeners)
}

func (a *Adapter) Events() []Published {
	a.mu.Lock()
	defer a.mu.Unlock()

	return slices.Clone(a.events)
}

// Reset drops all recordings.
func (a *Adapter) Reset() {
	a.mu.Lock()
	a.commands, a.listeners, a.events = nil, nil, nil
	a.mu.Unlock()
}
