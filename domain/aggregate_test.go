package domain_test

import (
	"testing"

	"github.com/next-trace/scg-shared-kernel/domain"
)

type orderPlaced struct{ ID string }

type order struct {
	domain.AggregateRoot
	ID string
}

func TestAggregateRoot(t *testing.T) {
	o := &order{ID: "o-1"}
	o.Raise(orderPlaced{ID: "o-1"})
	o.Raise(orderPlaced{ID: "o-1b"})

	var src domain.EventSource = o

	evts := src.Events()
	if len(evts) != 2 || evts[1].(orderPlaced).ID != "o-1b" {
		t.Fatalf("events=%v", evts)
	}

	evts[0] = nil
	if src.Events()[0] == nil {
		t.Fatalf("Events must return a copy")
	}

	src.ClearEvents()

	if len(src.Events()) != 0 {
		t.Fatalf("events not cleared")
	}
}
