package servicebus_test

import (
	"context"
	"errors"
	"testing"

	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
	"github.com/next-trace/scg-shared-kernel/servicebus"
)

type shipOrder struct {
	OrderID string `json:"order_id"`
}

func (shipOrder) MessageName() string { return "orders.ship" }

type orderShipped struct {
	OrderID string `json:"order_id"`
}

type notifyCustomer struct{ got *[]string }

func (n notifyCustomer) Handle(ctx context.Context, e orderShipped) error {
	*n.got = append(*n.got, "notify:"+e.OrderID)
	return nil
}

type ptrCmd struct{ N int }

func Test_TypeRegistry_NamesAndDecode(t *testing.T) {
	r := servicebus.NewTypeRegistry()

	if name := r.RegisterOf(shipOrder{}); name != "orders.ship" {
		t.Fatalf("named message: %q", name)
	}

	if name := r.RegisterOf(&ptrCmd{}); name != "*servicebus_test.ptrCmd" {
		t.Fatalf("pointer message: %q", name)
	}

	v, err := r.Decode("orders.ship", []byte(`{"order_id":"o-1"}`))
	if err != nil || v.(shipOrder).OrderID != "o-1" {
		t.Fatalf("decode: %v v=%#v", err, v)
	}

	p, err := r.Decode("*servicebus_test.ptrCmd", []byte(`{"N":3}`))
	if err != nil || p.(*ptrCmd).N != 3 {
		t.Fatalf("decode ptr: %v v=%#v", err, p)
	}

	if _, err := r.Decode("nope", nil); !errors.Is(err, berr.ErrUnknownMessageType) {
		t.Fatalf("want ErrUnknownMessageType, got %v", err)
	}

	if _, err := r.Decode("orders.ship", []byte("{")); !errors.Is(err, berr.ErrSerializationFailed) {
		t.Fatalf("want ErrSerializationFailed, got %v", err)
	}

	if got := servicebus.MessageName(shipOrder{}); got != "orders.ship" {
		t.Fatalf("MessageName=%q", got)
	}
}

func Test_Receiver_CommandAndListener(t *testing.T) {
	b := servicebus.New(nil, nil, nil)

	var got []string

	_ = b.BindCommandOf(shipOrder{}, func(ctx context.Context, v any) error {
		got = append(got, "ship:"+v.(shipOrder).OrderID)
		return nil
	})
	_ = servicebus.BindDomainEvent[orderShipped](b, notifyCustomer{got: &got})

	rcv := servicebus.NewReceiver(b)

	err := rcv.Handle(t.Context(), map[string]string{cbus.HeaderMessageType: "orders.ship"}, []byte(`{"order_id":"o-9"}`))
	if err != nil {
		t.Fatalf("handle command: %v", err)
	}

	headers := map[string]string{
		cbus.HeaderMessageType: "servicebus_test.orderShipped",
		cbus.HeaderListener:    "servicebus_test.notifyCustomer",
	}
	if err := rcv.Handle(t.Context(), headers, []byte(`{"order_id":"o-9"}`)); err != nil {
		t.Fatalf("handle listener: %v", err)
	}

	if len(got) != 2 || got[0] != "ship:o-9" || got[1] != "notify:o-9" {
		t.Fatalf("got=%v", got)
	}

	headers[cbus.HeaderListener] = "someone.else"
	if err := rcv.Handle(t.Context(), headers, []byte(`{}`)); !errors.Is(err, berr.ErrHandlerNotFound) {
		t.Fatalf("want ErrHandlerNotFound, got %v", err)
	}

	if err := rcv.Handle(t.Context(), map[string]string{}, nil); !errors.Is(err, berr.ErrUnknownMessageType) {
		t.Fatalf("want ErrUnknownMessageType, got %v", err)
	}
}
