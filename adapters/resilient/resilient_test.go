package resilient_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"

	"github.com/next-trace/scg-shared-kernel/adapters/inmemory"
	"github.com/next-trace/scg-shared-kernel/adapters/resilient"
	"github.com/next-trace/scg-shared-kernel/config"
	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
)

type cmd struct{}

func TestResilient_OpensAfterFailures(t *testing.T) {
	inner := inmemory.New()
	inner.FailWith(errors.New("connection refused"))

	reg := prometheus.NewRegistry()
	ad := resilient.New("rabbit", inner, config.BreakerConfig{
		MinRequests:  3,
		FailureRatio: 0.5,
		Timeout:      time.Hour,
	}, resilient.WithRegisterer(reg))

	for range 3 {
		if err := ad.EnqueueCommand(t.Context(), cmd{}, cbus.QueueOptions{}); err == nil || errors.Is(err, berr.ErrCircuitOpen) {
			t.Fatalf("want transport error, got %v", err)
		}
	}

	if ad.State() != gobreaker.StateOpen {
		t.Fatalf("state = %v", ad.State())
	}

	inner.FailWith(nil)

	if err := ad.EnqueueCommand(t.Context(), cmd{}, cbus.QueueOptions{}); !errors.Is(err, berr.ErrCircuitOpen) {
		t.Fatalf("err = %v", err)
	}

	if len(inner.Commands()) != 0 {
		t.Fatalf("open breaker let a call through")
	}

	if n, err := testutil.GatherAndCount(reg, "servicebus_circuit_breaker_state"); err != nil || n != 1 {
		t.Fatalf("gauge series = %d, %v", n, err)
	}
}

func TestResilient_ContextErrorsDoNotTrip(t *testing.T) {
	inner := inmemory.New()
	inner.FailWith(context.Canceled)

	ad := resilient.New("nats", inner, config.BreakerConfig{MinRequests: 1, FailureRatio: 0.1, Timeout: time.Hour})

	for range 5 {
		if err := ad.EnqueueCommand(t.Context(), cmd{}, cbus.QueueOptions{}); !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v", err)
		}
	}

	if ad.State() != gobreaker.StateClosed {
		t.Fatalf("state = %v", ad.State())
	}
}

func TestResilient_RegistersGaugeOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	resilient.New("a", inmemory.New(), config.BreakerConfig{}, resilient.WithRegisterer(reg))
	resilient.New("b", inmemory.New(), config.BreakerConfig{}, resilient.WithRegisterer(reg))

	if n, err := testutil.GatherAndCount(reg, "servicebus_circuit_breaker_state"); err != nil || n != 2 {
		t.Fatalf("gauge series = %d, %v", n, err)
	}
}
