// Package behavior provides the pipeline behaviors that wrap command and query
// handlers on a servicebus.Bus. Each constructor returns a servicebus.Middleware;
// register them with servicebus.WithMiddleware in the order they should nest,
// the first one outermost.
//
// A typical order is Recovery, Tracing, Logging, Metrics, Authorization,
// Validation, Audit, Idempotency, Retry, Timeout, Transaction.
package behavior
