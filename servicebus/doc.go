/*
Package servicebus provides the in-process mediator of the shared kernel.

A Bus keeps a registry of handlers keyed by request type: at most one handler per
command or query type, any number of handlers per domain event type. Requests with no
exact handler fall back to handlers bound for an interface the request implements,
checked in registration order. Commands and queries run through ordered middleware
chains; the first registered middleware is the outermost one.

The Bus stays decoupled from transports: queued commands, queued listeners and
integration events go through the cbus.JobEnqueuer and cbus.EventPublisher it was
built with.
*/
package servicebus
