package behavior

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/next-trace/scg-shared-kernel/audit"
	"github.com/next-trace/scg-shared-kernel/security"
	"github.com/next-trace/scg-shared-kernel/servicebus"
)

// Audit writes an audit.Event for every command and for queries implementing
// audit.Auditable. Writer failures are logged; they never fail the request.
func Audit(w audit.Writer, logger *slog.Logger) servicebus.Middleware {
	logger = orDefault(logger)

	return func(next servicebus.HandlerFunc) servicebus.HandlerFunc {
		return func(ctx context.Context, req any) (any, error) {
			kind := servicebus.KindFrom(ctx)

			auditable, isAuditable := req.(audit.Auditable)
			if kind != servicebus.KindCommand && !isAuditable {
				return next(ctx, req)
			}

			start := time.Now()
			res, err := next(ctx, req)

			evt := audit.Event{
				ID:        uuid.NewString(),
				Kind:      string(kind),
				Action:    servicebus.MessageName(req),
				ActorID:   security.SubjectFrom(ctx),
				Result:    audit.ResultSuccess,
				Timestamp: start.UTC(),
				Duration:  time.Since(start),
			}

			if isAuditable {
				evt.Resource, evt.ResourceID = auditable.AuditResource()
			}

			if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
				evt.TraceID = sc.TraceID().String()
			}

			if err != nil {
				evt.Result = audit.ResultFailure
				evt.Error = err.Error()
			}

			if werr := w.Write(context.WithoutCancel(ctx), evt); werr != nil {
				logger.ErrorContext(ctx, "audit write failed", "action", evt.Action, "error", werr)
			}

			return res, err
		}
	}
}
