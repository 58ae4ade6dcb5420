package bus

import (
	"context"
	"sync"
)

// Context is re-exported for convenience in handler signatures.
// It avoids importing context in user packages when referencing bus types.
type Context = context.Context

// HeaderPropagator abstracts injecting tracing context into headers.
// Implementations may bridge to OpenTelemetry or any other propagation standard.
// Implementors should mutate the provided headers map by inserting keys that
// carry the context across process boundaries. Implementations must be safe for concurrent use.
type HeaderPropagator interface {
	Inject(ctx context.Context, headers map[string]string)
}

// NopHeaderPropagator is a no-op implementation useful for tests or when tracing is disabled.
type NopHeaderPropagator struct{}

func (NopHeaderPropagator) Inject(ctx context.Context, headers map[string]string) {
	_ = ctx
	_ = headers
}

// CommitHooks collects work to run once the surrounding transaction has committed.
// A unit of work installs one per transaction; it is discarded on rollback.
type CommitHooks struct {
	mu    sync.Mutex
	hooks []func(ctx context.Context) error
}

// Add registers fn to run after commit, in registration order.
func (h *CommitHooks) Add(fn func(ctx context.Context) error) {
	h.mu.Lock()
	h.hooks = append(h.hooks, fn)
	h.mu.Unlock()
}

// Drain returns the registered hooks and resets the list.
func (h *CommitHooks) Drain() []func(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := h.hooks
	h.hooks = nil

	return out
}

type commitHooksKey struct{}

// WithCommitHooks returns a context carrying hooks.
func WithCommitHooks(ctx context.Context, hooks *CommitHooks) context.Context {
	return context.WithValue(ctx, commitHooksKey{}, hooks)
}

// CommitHooksFrom returns the hooks installed by an active unit of work, if any.
func CommitHooksFrom(ctx context.Context) (*CommitHooks, bool) {
	h, ok := ctx.Value(commitHooksKey{}).(*CommitHooks)
	return h, ok && h != nil
}
