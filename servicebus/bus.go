package servicebus

// revive:disable:max-public-structs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
)

// HandlerFunc is the untyped shape every bound handler is reduced to.
// Commands without a result return a nil value.
type HandlerFunc func(ctx context.Context, req any) (any, error)

// Middleware wraps handler execution. Middlewares are executed in registration order.
type Middleware func(next HandlerFunc) HandlerFunc

// CommandMiddleware wraps command handlers.
type CommandMiddleware = Middleware

// QueryMiddleware wraps query handlers.
type QueryMiddleware = Middleware

// Bus is a thin in-process mediator with an internal binder.
// It supports synchronous command/query handling and domain event publication,
// and integrates with async adapters for command enqueueing and integration events.
//
// Bus is concurrency-safe and contains no global state.
type Bus struct {
	mu sync.RWMutex

	cmd map[reflect.Type]HandlerFunc
	qry map[reflect.Type]HandlerFunc
	dom map[reflect.Type][]domainEntry

	// fallbacks keyed by interface, consulted in registration order
	cmdFallback []fallbackEntry
	qryFallback []fallbackEntry

	// global middleware executed in registration order
	cmdMW []Middleware
	qryMW []Middleware

	sequential bool
	types      *TypeRegistry
	closers    []func() error

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	enq    cbus.JobEnqueuer
	pub    cbus.EventPublisher
	logger *slog.Logger
}

type domainEntry struct {
	call func(ctx context.Context, e any) error
	raw  any // original handler, for QueueableListener detection
	name string
}

type fallbackEntry struct {
	iface reflect.Type
	call  HandlerFunc
}

// BusOption configures a Bus instance.
type BusOption func(*Bus)

// New constructs a new Bus with optional enqueuer, publisher and logger.
func New(jobs cbus.JobEnqueuer, pub cbus.EventPublisher, logger *slog.Logger, opts ...BusOption) *Bus {
	b := &Bus{
		cmd:    make(map[reflect.Type]HandlerFunc),
		qry:    make(map[reflect.Type]HandlerFunc),
		dom:    make(map[reflect.Type][]domainEntry),
		types:  NewTypeRegistry(),
		enq:    jobs,
		pub:    pub,
		logger: logger,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// WithCommandMiddleware registers global command middleware.
func WithCommandMiddleware(mw ...Middleware) BusOption {
	return func(b *Bus) { b.cmdMW = append(b.cmdMW, mw...) }
}

// WithQueryMiddleware registers global query middleware.
func WithQueryMiddleware(mw ...Middleware) BusOption {
	return func(b *Bus) { b.qryMW = append(b.qryMW, mw...) }
}

// WithMiddleware registers middleware on both the command and the query pipeline.
func WithMiddleware(mw ...Middleware) BusOption {
	return func(b *Bus) {
		b.cmdMW = append(b.cmdMW, mw...)
		b.qryMW = append(b.qryMW, mw...)
	}
}

// WithSequentialNotifications makes PublishDomain invoke handlers one after the other
// in registration order instead of concurrently.
func WithSequentialNotifications() BusOption {
	return func(b *Bus) { b.sequential = true }
}

// WithTypeRegistry shares a TypeRegistry, e.g. between a producer and a consumer bus.
func WithTypeRegistry(r *TypeRegistry) BusOption {
	return func(b *Bus) {
		if r != nil {
			b.types = r
		}
	}
}

// WithCloser registers a cleanup run by Close, in reverse registration order.
func WithCloser(fn func() error) BusOption {
	return func(b *Bus) { b.closers = append(b.closers, fn) }
}

// Types returns the registry of message names known to the bus.
func (b *Bus) Types() *TypeRegistry { return b.types }

func (b *Bus) log() *slog.Logger {
	if b.logger != nil {
		return b.logger
	}

	return slog.Default()
}

// BindCommandOf registers a handler for a specific command type.
// Provide a zero value of the command type via sample.
func (b *Bus) BindCommandOf(sample any, handler func(ctx context.Context, cmd any) error) error {
	return b.bindExact(KindCommand, reflect.TypeOf(sample), func(ctx context.Context, v any) (any, error) {
		return nil, handler(ctx, v)
	})
}

// BindQueryOf registers a handler for a specific query type returning any result.
func (b *Bus) BindQueryOf(sample any, handler func(ctx context.Context, q any) (any, error)) error {
	return b.bindExact(KindQuery, reflect.TypeOf(sample), handler)
}

// BindDomainEventOf registers a domain event handler for a specific event type.
// For queueable listeners, prefer BindDomainEventRaw with a raw handler that implements QueueableListener.
func (b *Bus) BindDomainEventOf(sample any, handler func(ctx context.Context, e any) error) error {
	return b.BindDomainEventRaw(sample, handler, handler)
}

// BindDomainEventRaw registers a domain event handler providing a raw handler object and a callable.
// The raw object is used for QueueableListener detection and name resolution when enqueuing.
func (b *Bus) BindDomainEventRaw(sample, raw any, call func(ctx context.Context, e any) error) error {
	return b.bindDomain(reflect.TypeOf(sample), domainEntry{call: call, raw: raw, name: listenerName(raw)})
}

// BindCommand registers a handler for command type C. Duplicate bindings are rejected.
func BindCommand[C cbus.Command](b *Bus, h cbus.CommandHandler[C]) error {
	return b.bindExact(KindCommand, reflect.TypeFor[C](), func(ctx context.Context, v any) (any, error) {
		c, ok := v.(C)
		if !ok {
			return nil, fmt.Errorf("dispatch %s: %w", typeString(v), berr.ErrHandlerTypeMismatch)
		}

		return nil, h.Handle(ctx, c)
	})
}

// BindCommandResult registers a handler for command type C producing R. Use Send to read the result.
func BindCommandResult[C cbus.Command, R any](b *Bus, h cbus.CommandResultHandler[C, R]) error {
	return b.bindExact(KindCommand, reflect.TypeFor[C](), func(ctx context.Context, v any) (any, error) {
		c, ok := v.(C)
		if !ok {
			return nil, fmt.Errorf("dispatch %s: %w", typeString(v), berr.ErrHandlerTypeMismatch)
		}

		return h.Handle(ctx, c)
	})
}

// BindQuery registers a handler for query type Q producing R. Duplicate bindings are rejected.
func BindQuery[Q cbus.Query, R any](b *Bus, h cbus.QueryHandler[Q, R]) error {
	return b.bindExact(KindQuery, reflect.TypeFor[Q](), func(ctx context.Context, v any) (any, error) {
		q, ok := v.(Q)
		if !ok {
			return nil, fmt.Errorf("ask %s: %w", typeString(v), berr.ErrHandlerTypeMismatch)
		}

		return h.Handle(ctx, q)
	})
}

// BindDomainEvent registers a domain event handler. Multiple handlers are allowed.
func BindDomainEvent[E cbus.DomainEvent](b *Bus, h cbus.DomainEventHandler[E]) error {
	entry := domainEntry{
		call: func(ctx context.Context, v any) error {
			e, ok := v.(E)
			if !ok {
				return fmt.Errorf("publish domain %s: %w", typeString(v), berr.ErrHandlerTypeMismatch)
			}

			return h.Handle(ctx, e)
		},
		raw:  h,
		name: listenerName(h),
	}

	return b.bindDomain(reflect.TypeFor[E](), entry)
}

// BindCommandFallback registers h for every command whose type implements the interface I
// and has no exact handler. Fallbacks are tried in registration order.
func BindCommandFallback[I any](b *Bus, h HandlerFunc) error {
	return b.bindFallback(KindCommand, reflect.TypeFor[I](), h)
}

// BindQueryFallback registers h for every query whose type implements the interface I
// and has no exact handler. Fallbacks are tried in registration order.
func BindQueryFallback[I any](b *Bus, h HandlerFunc) error {
	return b.bindFallback(KindQuery, reflect.TypeFor[I](), h)
}

func (b *Bus) bindExact(kind Kind, t reflect.Type, h HandlerFunc) error {
	label := "bind " + string(kind)
	if t == nil || t.Kind() == reflect.Interface {
		return fmt.Errorf("%s %v: concrete type required: %w", label, t, berr.ErrHandlerTypeMismatch)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	table := b.cmd
	if kind == KindQuery {
		table = b.qry
	}

	if _, exists := table[t]; exists {
		return fmt.Errorf("%s %s: %w", label, t.String(), berr.ErrHandlerExists)
	}

	table[t] = h
	b.types.Register(t)

	return nil
}

func (b *Bus) bindFallback(kind Kind, iface reflect.Type, h HandlerFunc) error {
	if iface == nil || iface.Kind() != reflect.Interface {
		return fmt.Errorf("bind %s fallback %v: interface type required: %w", kind, iface, berr.ErrHandlerTypeMismatch)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entry := fallbackEntry{iface: iface, call: h}
	if kind == KindQuery {
		b.qryFallback = append(b.qryFallback, entry)
	} else {
		b.cmdFallback = append(b.cmdFallback, entry)
	}

	return nil
}

func (b *Bus) bindDomain(t reflect.Type, entry domainEntry) error {
	if t == nil || t.Kind() == reflect.Interface {
		return fmt.Errorf("bind domain event %v: concrete type required: %w", t, berr.ErrHandlerTypeMismatch)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.dom[t] = append(b.dom[t], entry)
	b.types.Register(t)

	return nil
}

// resolve must be called with b.mu held for reading.
func resolve(table map[reflect.Type]HandlerFunc, fallbacks []fallbackEntry, t reflect.Type) (HandlerFunc, bool) {
	if t == nil {
		return nil, false
	}

	if f, ok := table[t]; ok {
		return f, true
	}

	for _, fb := range fallbacks {
		if t.Implements(fb.iface) {
			return fb.call, true
		}
	}

	return nil, false
}

// Dispatch dispatches a command. If the command implements Queueable and a JobEnqueuer is configured,
// it is enqueued; otherwise it executes synchronously via DispatchSync.
// Queued commands that report AfterCommit are held until the active unit of work commits.
func (b *Bus) Dispatch(ctx context.Context, cmd cbus.Command) error {
	if b.closed.Load() {
		return fmt.Errorf("dispatch %s: %w", typeString(cmd), berr.ErrBusClosed)
	}

	if q, ok := cmd.(cbus.Queueable); ok && b.enq != nil {
		qo := b.queueOptions(cmd, q.QueueName(), q.Delay())
		enqueue := func(ctx context.Context) error { return b.enq.EnqueueCommand(ctx, cmd, qo) }

		if deferUntilCommit(ctx, cmd, enqueue) {
			b.log().DebugContext(ctx, "command enqueue deferred until commit", "command", typeString(cmd))
			return nil
		}

		return enqueue(ctx)
	}

	return b.DispatchSync(ctx, cmd)
}

// DispatchSync executes the command handler synchronously (with middleware).
func (b *Bus) DispatchSync(ctx context.Context, cmd cbus.Command) error {
	_, err := b.execCommand(ctx, cmd)
	return err
}

// DispatchNow is an alias for DispatchSync.
func (b *Bus) DispatchNow(ctx context.Context, cmd cbus.Command) error {
	return b.DispatchSync(ctx, cmd)
}

// DispatchWithMiddleware executes a command with additional per-call middleware.
// Per-call middleware runs inside the global chain.
func (b *Bus) DispatchWithMiddleware(ctx context.Context, cmd cbus.Command, mws ...Middleware) error {
	_, err := b.execCommand(ctx, cmd, mws...)
	return err
}

// Send executes a command synchronously and returns the handler's result.
// A command bound without a result yields the zero value of R.
func Send[C cbus.Command, R any](ctx context.Context, b *Bus, cmd C) (R, error) {
	var zero R

	res, err := b.execCommand(ctx, cmd)
	if err != nil {
		return zero, err
	}

	if res == nil {
		return zero, nil
	}

	r, ok := res.(R)
	if !ok {
		return zero, fmt.Errorf("send %s: %w", typeString(cmd), berr.ErrHandlerTypeMismatch)
	}

	return r, nil
}

// Ask executes a query handler synchronously and returns an untyped result.
func (b *Bus) Ask(ctx context.Context, q any) (any, error) {
	return b.execQuery(ctx, q)
}

// Ask executes a query handler synchronously and returns the result.
func Ask[Q cbus.Query, R any](ctx context.Context, b *Bus, q Q) (R, error) {
	var zero R

	res, err := b.execQuery(ctx, q)
	if err != nil {
		return zero, err
	}

	r, ok := res.(R)
	if !ok {
		return zero, fmt.Errorf("ask %s: %w", typeString(q), berr.ErrHandlerTypeMismatch)
	}

	return r, nil
}

func (b *Bus) execCommand(ctx context.Context, cmd any, extra ...Middleware) (any, error) {
	if b.closed.Load() {
		return nil, fmt.Errorf("dispatch %s: %w", typeString(cmd), berr.ErrBusClosed)
	}

	b.mu.RLock()
	f, ok := resolve(b.cmd, b.cmdFallback, reflect.TypeOf(cmd))
	chain := make([]Middleware, 0, len(b.cmdMW)+len(extra))
	chain = append(chain, b.cmdMW...)
	b.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("dispatch %s: %w", typeString(cmd), berr.ErrHandlerNotFound)
	}

	chain = append(chain, extra...)

	return compose(f, chain)(withKind(ctx, KindCommand), cmd)
}

func (b *Bus) execQuery(ctx context.Context, q any) (any, error) {
	if b.closed.Load() {
		return nil, fmt.Errorf("ask %s: %w", typeString(q), berr.ErrBusClosed)
	}

	b.mu.RLock()
	f, ok := resolve(b.qry, b.qryFallback, reflect.TypeOf(q))
	chain := append([]Middleware(nil), b.qryMW...)
	b.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("ask %s: %w", typeString(q), berr.ErrHandlerNotFound)
	}

	return compose(f, chain)(withKind(ctx, KindQuery), q)
}

// compose builds the chain so the first middleware runs first.
func compose(final HandlerFunc, chain []Middleware) HandlerFunc {
	for i := len(chain) - 1; i >= 0; i-- {
		final = chain[i](final)
	}

	return final
}

// queueOptions rounds the delay up to whole seconds so a short delay is never dropped.
func (b *Bus) queueOptions(msg any, queue string, delay time.Duration) cbus.QueueOptions {
	qo := cbus.QueueOptions{
		Queue:        queue,
		DelaySeconds: delaySeconds(delay),
		Headers:      map[string]string{cbus.HeaderMessageType: MessageName(msg)},
	}

	if oc, ok := msg.(cbus.OnConnection); ok {
		qo.Connection = oc.Connection()
	}

	return qo
}

func delaySeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}

	return int((d + time.Second - 1) / time.Second)
}

func deferUntilCommit(ctx context.Context, msg any, fn func(ctx context.Context) error) bool {
	ac, ok := msg.(cbus.AfterCommit)
	if !ok || !ac.AfterCommit() {
		return false
	}

	hooks, ok := cbus.CommitHooksFrom(ctx)
	if !ok {
		return false
	}

	hooks.Add(fn)

	return true
}

func listenerName(raw any) string {
	return typeString(raw)
}

// Close marks the bus closed and runs registered closers. It is safe to call more than once.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		b.closed.Store(true)

		var errs []error

		for i := len(b.closers) - 1; i >= 0; i-- {
			if err := b.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}

		b.closeErr = errors.Join(errs...)
	})

	return b.closeErr
}

var _ cbus.Bus = (*Bus)(nil)
