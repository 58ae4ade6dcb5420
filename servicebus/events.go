package servicebus

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/sourcegraph/conc/pool"

	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
)

// PublishDomain publishes a domain event to all handlers bound for its type.
// Handlers run concurrently and are all awaited; there is no ordering guarantee unless
// the bus was built WithSequentialNotifications. Any handler error fails the publish;
// all errors are joined. Handlers that implement QueueableListener are enqueued when a
// JobEnqueuer is configured.
func (b *Bus) PublishDomain(ctx context.Context, e cbus.DomainEvent) error {
	if b.closed.Load() {
		return fmt.Errorf("publish domain %s: %w", typeString(e), berr.ErrBusClosed)
	}

	b.mu.RLock()
	entries := append([]domainEntry(nil), b.dom[reflect.TypeOf(e)]...)
	sequential := b.sequential
	b.mu.RUnlock()

	if len(entries) == 0 {
		return nil
	}

	if sequential || len(entries) == 1 {
		var errs []error

		for _, ent := range entries {
			if err := b.handleDomainEntry(ctx, e, ent); err != nil {
				errs = append(errs, err)
			}
		}

		return b.logPublishErr(ctx, e, errors.Join(errs...))
	}

	p := pool.New().WithContext(ctx)
	for _, ent := range entries {
		p.Go(func(ctx context.Context) error {
			return b.handleDomainEntry(ctx, e, ent)
		})
	}

	return b.logPublishErr(ctx, e, p.Wait())
}

func (b *Bus) logPublishErr(ctx context.Context, e cbus.DomainEvent, err error) error {
	if err != nil {
		b.log().ErrorContext(ctx, "domain event handlers failed", "event", typeString(e), "error", err)
	}

	return err
}

func (b *Bus) handleDomainEntry(
	ctx context.Context,
	event cbus.DomainEvent,
	entry domainEntry,
) error {
	// If no enqueuer, invoke synchronously.
	if b.enq == nil {
		return entry.call(ctx, event)
	}

	ql, ok := entry.raw.(cbus.QueueableListener)
	if !ok {
		return entry.call(ctx, event)
	}

	qo := b.queueOptions(event, ql.QueueName(), ql.Delay())
	qo.Headers[cbus.HeaderListener] = entry.name

	if oc, ok := entry.raw.(cbus.OnConnection); ok {
		qo.Connection = oc.Connection()
	}

	enqueue := func(ctx context.Context) error {
		return b.enq.EnqueueListener(ctx, event, entry.name, qo)
	}

	if deferUntilCommit(ctx, entry.raw, enqueue) {
		return nil
	}

	return enqueue(ctx)
}

// PublishIntegration publishes an integration event via the configured EventPublisher.
// Events that report AfterCommit are held until the active unit of work commits.
func (b *Bus) PublishIntegration(ctx context.Context, e cbus.IntegrationEvent, opts cbus.PublishOptions) error {
	if b.closed.Load() {
		return fmt.Errorf("publish integration %T: %w", e, berr.ErrBusClosed)
	}

	if b.pub == nil {
		return fmt.Errorf("publish integration %T: %w", e, berr.ErrAsyncNotConfigured)
	}

	publish := func(ctx context.Context) error { return b.pub.PublishIntegration(ctx, e, opts) }

	if deferUntilCommit(ctx, e, publish) {
		b.log().DebugContext(ctx, "integration event deferred until commit", "event", typeString(e))
		return nil
	}

	return publish(ctx)
}
