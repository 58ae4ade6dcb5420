// Package audit models audit records produced by the request pipeline and the
// writers that persist or forward them.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Result is the outcome of an audited request.
type Result string

const (
	ResultSuccess Result = "SUCCESS"
	ResultFailure Result = "FAILURE"
)

// Event is one audit record.
type Event struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	Action     string            `json:"action"`
	Resource   string            `json:"resource,omitempty"`
	ResourceID string            `json:"resource_id,omitempty"`
	ActorID    string            `json:"actor_id,omitempty"`
	Result     Result            `json:"result"`
	TraceID    string            `json:"trace_id,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Duration   time.Duration     `json:"duration"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Auditable is implemented by requests that describe their own audit record.
// Queries are audited only when they implement it.
type Auditable interface {
	AuditResource() (resource, id string)
}

// Writer persists or forwards audit events.
type Writer interface {
	Write(ctx context.Context, event Event) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(ctx context.Context, event Event) error

// Write implements Writer.
func (f WriterFunc) Write(ctx context.Context, event Event) error { return f(ctx, event) }

// LogWriter writes audit events as structured log records.
type LogWriter struct {
	Logger *slog.Logger
}

// NewLogWriter returns a LogWriter; a nil logger uses slog.Default.
func NewLogWriter(logger *slog.Logger) *LogWriter {
	return &LogWriter{Logger: logger}
}

// Write logs event at info, or error for failures.
func (w *LogWriter) Write(ctx context.Context, event Event) error {
	logger := slog.Default()
	if w != nil && w.Logger != nil {
		logger = w.Logger
	}

	attrs := buildAttrs(event)
	if event.Result == ResultFailure {
		logger.ErrorContext(ctx, "audit event", attrs...)
		return nil
	}

	logger.InfoContext(ctx, "audit event", attrs...)

	return nil
}

// FanoutWriter writes every event to all of its writers.
type FanoutWriter struct {
	writers []Writer
}

// NewFanoutWriter returns a FanoutWriter; nil writers are skipped.
func NewFanoutWriter(writers ...Writer) *FanoutWriter {
	return &FanoutWriter{writers: writers}
}

// Write calls every writer even after a failure and joins the errors.
func (w *FanoutWriter) Write(ctx context.Context, event Event) error {
	var errs []error

	for _, writer := range w.writers {
		if writer == nil {
			continue
		}

		if err := writer.Write(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func buildAttrs(event Event) []any {
	attrs := make([]any, 0, 24)
	attrs = appendIf(attrs, "audit_id", event.ID)
	attrs = appendIf(attrs, "kind", event.Kind)
	attrs = appendIf(attrs, "action", event.Action)
	attrs = appendIf(attrs, "resource", event.Resource)
	attrs = appendIf(attrs, "resource_id", event.ResourceID)
	attrs = appendIf(attrs, "actor_id", event.ActorID)
	attrs = appendIf(attrs, "result", string(event.Result))
	attrs = appendIf(attrs, "trace_id", event.TraceID)

	if !event.Timestamp.IsZero() {
		attrs = append(attrs, "timestamp", event.Timestamp)
	}

	if event.Duration > 0 {
		attrs = append(attrs, "duration", event.Duration)
	}

	if len(event.Metadata) > 0 {
		attrs = append(attrs, "metadata", event.Metadata)
	}

	return appendIf(attrs, "error", event.Error)
}

func appendIf(attrs []any, key, value string) []any {
	if value == "" {
		return attrs
	}

	return append(attrs, key, value)
}
