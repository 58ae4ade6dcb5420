package bus_test

import (
	"context"
	"testing"

	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
)

func TestCommitHooks_DrainInOrder(t *testing.T) {
	if _, ok := cbus.CommitHooksFrom(t.Context()); ok {
		t.Fatalf("expected no hooks on a bare context")
	}

	hooks := &cbus.CommitHooks{}
	ctx := cbus.WithCommitHooks(t.Context(), hooks)

	got, ok := cbus.CommitHooksFrom(ctx)
	if !ok || got != hooks {
		t.Fatalf("hooks not found in context")
	}

	var order []int
	hooks.Add(func(context.Context) error { order = append(order, 1); return nil })
	hooks.Add(func(context.Context) error { order = append(order, 2); return nil })

	for _, fn := range hooks.Drain() {
		_ = fn(ctx)
	}

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("order=%v", order)
	}

	if left := hooks.Drain(); len(left) != 0 {
		t.Fatalf("drain should reset, got %d", len(left))
	}
}
