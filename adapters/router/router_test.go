package router_test

import (
	"errors"
	"testing"

	"github.com/next-trace/scg-shared-kernel/adapters/inmemory"
	"github.com/next-trace/scg-shared-kernel/adapters/router"
	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
)

type cmd struct{}

type evt struct{}

func (evt) Topic() string { return "t" }

func TestRouter_DefaultAndNamed(t *testing.T) {
	primary, reports := inmemory.New(), inmemory.New()
	r := router.New("primary").Register("primary", primary).Register("reports", reports)

	if err := r.EnqueueCommand(t.Context(), cmd{}, cbus.QueueOptions{}); err != nil {
		t.Fatalf("default: %v", err)
	}

	if err := r.EnqueueCommand(t.Context(), cmd{}, cbus.QueueOptions{Connection: "reports"}); err != nil {
		t.Fatalf("named: %v", err)
	}

	if err := r.EnqueueListener(t.Context(), evt{}, "H", cbus.QueueOptions{Connection: "reports"}); err != nil {
		t.Fatalf("listener: %v", err)
	}

	if err := r.PublishIntegration(t.Context(), evt{}, cbus.PublishOptions{}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(primary.Commands()) != 1 || len(primary.Events()) != 1 {
		t.Fatalf("primary = %d commands %d events", len(primary.Commands()), len(primary.Events()))
	}

	if len(reports.Commands()) != 1 || len(reports.Listeners()) != 1 {
		t.Fatalf("reports = %d commands %d listeners", len(reports.Commands()), len(reports.Listeners()))
	}

	if got := r.Names(); len(got) != 2 || got[0] != "primary" {
		t.Fatalf("names = %v", got)
	}
}

func TestRouter_UnknownConnection(t *testing.T) {
	r := router.New("")

	if err := r.EnqueueCommand(t.Context(), cmd{}, cbus.QueueOptions{Connection: "nope"}); !errors.Is(err, berr.ErrAsyncNotConfigured) {
		t.Fatalf("err = %v", err)
	}

	if err := r.PublishIntegration(t.Context(), evt{}, cbus.PublishOptions{}); !errors.Is(err, berr.ErrAsyncNotConfigured) {
		t.Fatalf("default err = %v", err)
	}
}
