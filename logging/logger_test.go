package logging_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/next-trace/scg-shared-kernel/config"
	"github.com/next-trace/scg-shared-kernel/logging"
)

func TestNewWithWriter_JSONAndTrace(t *testing.T) {
	var buf bytes.Buffer

	logger := logging.NewWithWriter(&buf, "orders", config.LogConfig{Level: "info", Format: "json"})

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(t.Context(), "op")

	logger.With("k", "v").InfoContext(ctx, "hello")
	logger.DebugContext(ctx, "hidden")
	span.End()

	out := buf.String()
	for _, want := range []string{`"service":"orders"`, `"trace_id":"` + span.SpanContext().TraceID().String(), `"timestamp"`, `"k":"v"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %s", want, out)
		}
	}

	if strings.Contains(out, "hidden") {
		t.Fatalf("debug record must be filtered: %s", out)
	}
}

func TestNewWithWriter_Text(t *testing.T) {
	var buf bytes.Buffer

	logging.NewWithWriter(&buf, "", config.LogConfig{Level: "debug", Format: "text"}).Debug("plain")

	if !strings.Contains(buf.String(), "msg=plain") {
		t.Fatalf("out=%s", buf.String())
	}
}

func TestNew_FileRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kernel.log")

	logging.New("svc", config.LogConfig{Level: "info", File: path, MaxSize: 1}).Info("to file")

	data, err := os.ReadFile(path)
	if err != nil || !strings.Contains(string(data), "to file") {
		t.Fatalf("file log: %v %s", err, data)
	}
}

func TestParseLevel(t *testing.T) {
	if logging.ParseLevel("WARN").String() != "WARN" || logging.ParseLevel("nope").String() != "INFO" {
		t.Fatalf("unexpected level mapping")
	}
}

func TestGormLogger(t *testing.T) {
	var buf bytes.Buffer

	gl := logging.NewGormLogger(logging.NewWithWriter(&buf, "", config.LogConfig{Level: "debug"}), time.Millisecond)

	sql := func() (string, int64) { return "SELECT 1", 1 }

	gl.Trace(context.Background(), time.Now(), sql, errors.New("db down"))
	gl.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	gl.Trace(context.Background(), time.Now().Add(time.Hour), sql, nil)

	out := buf.String()
	for _, want := range []string{"gorm query failed", "gorm slow query", `"msg":"gorm query"`, `"component":"gorm"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %s", want, out)
		}
	}
}
