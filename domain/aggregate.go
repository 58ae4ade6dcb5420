// Package domain holds the building blocks entities share: domain event
// collection on aggregates and audit stamping.
package domain

import (
	"sync"
	"time"

	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
)

// EventSource is an entity that collects domain events until they are dispatched.
type EventSource interface {
	Events() []cbus.DomainEvent
	ClearEvents()
}

// AggregateRoot is embedded by entities that raise domain events.
// Its zero value is ready to use. It is skipped by gorm.
type AggregateRoot struct {
	mu     sync.Mutex
	events []cbus.DomainEvent
}

// Raise records e for dispatch after the unit of work commits.
func (a *AggregateRoot) Raise(e cbus.DomainEvent) {
	a.mu.Lock()
	a.events = append(a.events, e)
	a.mu.Unlock()
}

// Events returns a copy of the pending events in raise order.
func (a *AggregateRoot) Events() []cbus.DomainEvent {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]cbus.DomainEvent(nil), a.events...)
}

// ClearEvents drops the pending events.
func (a *AggregateRoot) ClearEvents() {
	a.mu.Lock()
	a.events = nil
	a.mu.Unlock()
}

// Auditable entities get creation and modification stamps on save.
type Auditable interface {
	SetCreated(at time.Time, by string)
	SetUpdated(at time.Time, by string)
}

var _ EventSource = (*AggregateRoot)(nil)
