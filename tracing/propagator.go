// Package tracing bridges OpenTelemetry context propagation to message headers.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
)

// Propagator injects and extracts trace context through string headers.
// It implements cbus.HeaderPropagator.
type Propagator struct {
	p propagation.TextMapPropagator
}

// NewPropagator wraps p. A nil p resolves the global propagator on every call,
// so it follows later otel.SetTextMapPropagator calls.
func NewPropagator(p propagation.TextMapPropagator) *Propagator {
	return &Propagator{p: p}
}

// W3C returns a propagator for W3C trace context and baggage.
func W3C() *Propagator {
	return NewPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
}

func (p *Propagator) propagator() propagation.TextMapPropagator {
	if p == nil || p.p == nil {
		return otel.GetTextMapPropagator()
	}

	return p.p
}

// Inject writes the trace context of ctx into headers.
func (p *Propagator) Inject(ctx context.Context, headers map[string]string) {
	if headers == nil {
		return
	}

	p.propagator().Inject(ctx, propagation.MapCarrier(headers))
}

// Extract returns ctx carrying the remote span context found in headers.
func (p *Propagator) Extract(ctx context.Context, headers map[string]string) context.Context {
	if len(headers) == 0 {
		return ctx
	}

	return p.propagator().Extract(ctx, propagation.MapCarrier(headers))
}

// TraceID returns the trace id of the span in ctx, or "".
func TraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}

	return ""
}

var _ cbus.HeaderPropagator = (*Propagator)(nil)
