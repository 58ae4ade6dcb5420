// Package memory builds a complete bus over the in-memory transport. Queued
// commands and listeners are serialized, handed to a Receiver and executed
// in the caller's goroutine, so code paths match a real broker deployment.
package memory

import (
	"log/slog"

	"github.com/next-trace/scg-shared-kernel/adapters/inmemory"
	"github.com/next-trace/scg-shared-kernel/servicebus"
)

// New returns the bus, its transport for inspection and a cleanup closing the bus.
func New(logger *slog.Logger, opts ...servicebus.BusOption) (*servicebus.Bus, *inmemory.Adapter, func()) {
	ad := inmemory.New()
	sb := servicebus.New(ad, ad, logger, opts...)
	ad.Deliver(servicebus.NewReceiver(sb))

	return sb, ad, func() { _ = sb.Close() }
}
