package nats_test

import (
	"context"
	"errors"
	"testing"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/next-trace/scg-shared-kernel/adapters/nats"
	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
)

type call struct {
	subject string
	data    []byte
	headers map[string]string
}

type fakeClient struct {
	calls []call
	err   error
}

func (f *fakeClient) Publish(subject string, data []byte, headers map[string]string) error {
	f.calls = append(f.calls, call{subject, data, headers})
	return f.err
}

type cmd struct{ ID string }

type ev struct{ Name string }

type integ struct{ T string }

func (i integ) Topic() string { return i.T }

type stamp struct{}

func (stamp) Inject(_ context.Context, h map[string]string) { h["traceparent"] = "00-1" }

func TestNATS_EnqueueCommand_And_PublishIntegration(t *testing.T) {
	fc := &fakeClient{}
	ad := nats.New(fc)
	ad.Propagator = stamp{}

	qo := cbus.QueueOptions{Queue: "jobs", DelaySeconds: 3, Headers: map[string]string{"h1": "v1"}}
	if err := ad.EnqueueCommand(t.Context(), cmd{ID: "1"}, qo); err != nil {
		t.Fatalf("enqueue cmd: %v", err)
	}

	c := fc.calls[0]
	if c.subject != "cmd.jobs" || len(c.data) == 0 {
		t.Fatalf("call = %+v", c)
	}

	if c.headers["h1"] != "v1" || c.headers[cbus.HeaderDelay] != "3" || c.headers["traceparent"] != "00-1" {
		t.Fatalf("headers = %+v", c.headers)
	}

	po := cbus.PublishOptions{TopicOverride: "orders", Key: "k", Headers: map[string]string{"ph": "pv"}}
	if err := ad.PublishIntegration(t.Context(), integ{T: "unused"}, po); err != nil {
		t.Fatalf("publish: %v", err)
	}

	p := fc.calls[1]
	if p.subject != "orders" || p.headers["key"] != "k" || p.headers["ph"] != "pv" {
		t.Fatalf("publish = %+v", p)
	}
}

func TestNATS_NilClient(t *testing.T) {
	ad := nats.New(nil)

	if err := ad.EnqueueCommand(t.Context(), cmd{}, cbus.QueueOptions{}); !errors.Is(err, berr.ErrEnqueueFailed) {
		t.Fatalf("enqueue err = %v", err)
	}

	if err := ad.EnqueueListener(t.Context(), ev{}, "H", cbus.QueueOptions{}); !errors.Is(err, berr.ErrEnqueueFailed) {
		t.Fatalf("listener err = %v", err)
	}

	if err := ad.PublishIntegration(t.Context(), integ{T: "t"}, cbus.PublishOptions{}); !errors.Is(err, berr.ErrPublishFailed) {
		t.Fatalf("publish err = %v", err)
	}
}

func TestNATS_ErrorWrapping(t *testing.T) {
	boom := errors.New("boom")

	err := nats.New(&fakeClient{err: boom}).EnqueueCommand(t.Context(), cmd{}, cbus.QueueOptions{})
	if !errors.Is(err, berr.ErrEnqueueFailed) || !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}

	err = nats.New(&fakeClient{err: context.Canceled}).PublishIntegration(t.Context(), integ{T: "t"}, cbus.PublishOptions{})
	if err != context.Canceled {
		t.Fatalf("want bare context.Canceled, got %v", err)
	}
}

func TestNATS_ListenerSubjects(t *testing.T) {
	fc := &fakeClient{}
	ad := nats.New(fc)

	if err := ad.EnqueueListener(t.Context(), ev{}, "Audit", cbus.QueueOptions{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := ad.EnqueueListener(t.Context(), ev{}, "Audit", cbus.QueueOptions{Queue: "Q"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if fc.calls[0].subject != "listener.ev.Audit" || fc.calls[1].subject != "cmd.Q" {
		t.Fatalf("subjects = %q %q", fc.calls[0].subject, fc.calls[1].subject)
	}
}

func TestNewWithNATS_EmptyURL(t *testing.T) {
	if _, _, err := nats.NewWithNATS(nats.Config{}); !errors.Is(err, berr.ErrPublishFailed) {
		t.Fatalf("err = %v", err)
	}
}

type fakeConn struct {
	subject, queue string
	cb             natsgo.MsgHandler
	ready          chan struct{}
}

func (f *fakeConn) QueueSubscribe(subject, queue string, cb natsgo.MsgHandler) (*natsgo.Subscription, error) {
	f.subject, f.queue, f.cb = subject, queue, cb
	close(f.ready)

	return &natsgo.Subscription{}, nil
}

type recorder struct {
	got chan map[string]string
	ctx chan context.Context
}

func (r *recorder) Handle(ctx context.Context, h map[string]string, _ []byte) error {
	r.got <- h
	r.ctx <- ctx

	return errors.New("dropped")
}

type ctxKey struct{}

type extractor struct{}

func (extractor) Extract(ctx context.Context, h map[string]string) context.Context {
	return context.WithValue(ctx, ctxKey{}, h["traceparent"])
}

func TestNATS_Subscriber(t *testing.T) {
	conn := &fakeConn{ready: make(chan struct{})}
	rec := &recorder{got: make(chan map[string]string, 1), ctx: make(chan context.Context, 1)}

	s := nats.NewSubscriber(conn, "cmd.billing", "billing-workers", rec, nats.WithExtractor(extractor{}))
	if s.Name() != "nats:cmd.billing" {
		t.Fatalf("name = %q", s.Name())
	}

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)

	go func() { done <- s.Run(ctx) }()

	<-conn.ready

	if conn.subject != "cmd.billing" || conn.queue != "billing-workers" {
		t.Fatalf("subscribed %q %q", conn.subject, conn.queue)
	}

	msg := natsgo.NewMsg("cmd.billing")
	msg.Header.Set(cbus.HeaderMessageType, "billing.Charge")
	msg.Header.Set("traceparent", "00-xyz")
	msg.Data = []byte(`{}`)
	conn.cb(msg)

	h := <-rec.got
	if h[cbus.HeaderMessageType] != "billing.Charge" {
		t.Fatalf("headers = %v", h)
	}

	if got := (<-rec.ctx).Value(ctxKey{}); got != "00-xyz" {
		t.Fatalf("extracted = %v", got)
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run err = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("subscriber did not stop")
	}
}
