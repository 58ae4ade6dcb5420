// Package router sends each message to the transport named by its connection,
// falling back to a default one.
package router

import (
	"context"
	"fmt"
	"sort"
	"sync"

	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
)

// Router implements cbus.Adapter over named adapters.
type Router struct {
	mu       sync.RWMutex
	def      string
	adapters map[string]cbus.Adapter
}

var _ cbus.Adapter = (*Router)(nil)

// New returns a router using def when a message names no connection.
func New(def string) *Router {
	return &Router{def: def, adapters: make(map[string]cbus.Adapter)}
}

// Register adds or replaces the adapter for name.
func (r *Router) Register(name string, a cbus.Adapter) *Router {
	r.mu.Lock()
	r.adapters[name] = a
	r.mu.Unlock()

	return r
}

// Names lists the registered connections.
func (r *Router) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

func (r *Router) pick(conn string) (cbus.Adapter, error) {
	name := conn
	if name == "" {
		name = r.def
	}

	r.mu.RLock()
	a, ok := r.adapters[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("connection %q: %w", name, berr.ErrAsyncNotConfigured)
	}

	return a, nil
}

func (r *Router) EnqueueCommand(ctx context.Context, cmd cbus.Command, opts cbus.QueueOptions) error {
	a, err := r.pick(opts.Connection)
	if err != nil {
		return err
	}

	return a.EnqueueCommand(ctx, cmd, opts)
}

func (r *Router) EnqueueListener(ctx context.Context, e cbus.DomainEvent, handler string, opts cbus.QueueOptions) error {
	a, err := r.pick(opts.Connection)
	if err != nil {
		return err
	}

	return a.EnqueueListener(ctx, e, handler, opts)
}

func (r *Router) PublishIntegration(ctx context.Context, e cbus.IntegrationEvent, opts cbus.PublishOptions) error {
	a, err := r.pick(opts.Connection)
	if err != nil {
		return err
	}

	return a.PublishIntegration(ctx, e, opts)
}
