package audit_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/next-trace/scg-shared-kernel/audit"
	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
)

func TestLogWriter(t *testing.T) {
	var buf bytes.Buffer

	w := audit.NewLogWriter(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := w.Write(t.Context(), audit.Event{Action: "orders.create", Result: audit.ResultFailure, Error: "boom"})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"level":"ERROR"`) || !strings.Contains(out, `"action":"orders.create"`) {
		t.Fatalf("log=%s", out)
	}

	if strings.Contains(out, "resource_id") {
		t.Fatalf("empty fields must be omitted: %s", out)
	}
}

func TestFanoutWriter_CallsAllAndJoins(t *testing.T) {
	e1 := errors.New("e1")
	e2 := errors.New("e2")

	var calls int

	w := audit.NewFanoutWriter(
		audit.WriterFunc(func(context.Context, audit.Event) error { calls++; return e1 }),
		nil,
		audit.WriterFunc(func(context.Context, audit.Event) error { calls++; return nil }),
		audit.WriterFunc(func(context.Context, audit.Event) error { calls++; return e2 }),
	)

	err := w.Write(t.Context(), audit.Event{})
	if !errors.Is(err, e1) || !errors.Is(err, e2) {
		t.Fatalf("err=%v", err)
	}

	if calls != 3 {
		t.Fatalf("calls=%d", calls)
	}
}

type capturePub struct {
	evt  cbus.IntegrationEvent
	opts cbus.PublishOptions
}

func (c *capturePub) PublishIntegration(_ context.Context, e cbus.IntegrationEvent, o cbus.PublishOptions) error {
	c.evt, c.opts = e, o
	return nil
}

func TestPublisherWriter(t *testing.T) {
	if err := (&audit.PublisherWriter{}).Write(t.Context(), audit.Event{}); !errors.Is(err, audit.ErrPublisherUnavailable) {
		t.Fatalf("want ErrPublisherUnavailable, got %v", err)
	}

	pub := &capturePub{}

	err := audit.NewPublisherWriter(pub).Write(t.Context(), audit.Event{Action: "orders.delete", ResourceID: "o-1"})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	rec, ok := pub.evt.(audit.Recorded)
	if !ok || rec.Topic() != audit.TopicRecorded || rec.Action != "orders.delete" {
		t.Fatalf("evt=%#v", pub.evt)
	}

	if pub.opts.Key != "o-1" {
		t.Fatalf("key=%q", pub.opts.Key)
	}
}
