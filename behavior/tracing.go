package behavior

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/next-trace/scg-shared-kernel/servicebus"
)

const tracerName = "github.com/next-trace/scg-shared-kernel/behavior"

// Tracing opens a span per request. A nil tracer uses the global provider.
func Tracing(tracer trace.Tracer) servicebus.Middleware {
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	return func(next servicebus.HandlerFunc) servicebus.HandlerFunc {
		return func(ctx context.Context, req any) (any, error) {
			name := servicebus.MessageName(req)
			kind := string(servicebus.KindFrom(ctx))

			ctx, span := tracer.Start(ctx, kind+" "+name,
				trace.WithSpanKind(trace.SpanKindInternal),
				trace.WithAttributes(
					attribute.String("servicebus.kind", kind),
					attribute.String("servicebus.request", name),
				),
			)
			defer span.End()

			res, err := next(ctx, req)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}

			return res, err
		}
	}
}
