package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gorm.io/gorm"

	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
	"github.com/next-trace/scg-shared-kernel/domain"
)

// DomainPublisher delivers domain events after commit. *servicebus.Bus implements it.
type DomainPublisher interface {
	PublishDomain(ctx context.Context, e cbus.DomainEvent) error
}

type txState struct {
	tx    *gorm.DB
	hooks *cbus.CommitHooks

	mu      sync.Mutex
	sources []domain.EventSource
}

func (s *txState) track(src domain.EventSource) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.sources {
		if existing == src {
			return
		}
	}

	s.sources = append(s.sources, src)
}

type txKey struct{}

func txFrom(ctx context.Context) (*txState, bool) {
	s, ok := ctx.Value(txKey{}).(*txState)
	return s, ok && s != nil
}

// Track registers src for domain event dispatch when the active unit of work commits.
// Outside a unit of work it does nothing and the events stay on src.
func Track(ctx context.Context, src domain.EventSource) {
	if s, ok := txFrom(ctx); ok && src != nil {
		s.track(src)
	}
}

// Conn returns the transaction of the active unit of work, or db, bound to ctx.
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if s, ok := txFrom(ctx); ok {
		return s.tx.WithContext(ctx)
	}

	return db.WithContext(ctx)
}

// UnitOfWork runs work in a database transaction and dispatches the domain events
// of tracked aggregates once it has committed.
type UnitOfWork struct {
	db     *gorm.DB
	pub    DomainPublisher
	logger *slog.Logger
}

// NewUnitOfWork returns a UnitOfWork. pub may be nil, in which case raised events
// stay on their aggregates.
func NewUnitOfWork(db *gorm.DB, pub DomainPublisher, logger *slog.Logger) *UnitOfWork {
	if logger == nil {
		logger = slog.Default()
	}

	return &UnitOfWork{db: db, pub: pub, logger: logger}
}

// DB returns the connection for ctx: the active transaction if any.
func (u *UnitOfWork) DB(ctx context.Context) *gorm.DB { return Conn(ctx, u.db) }

// Do runs fn in a transaction. A nested Do joins the outer transaction.
// fn's error or a panic rolls back; tracked events and commit hooks are dropped.
// After commit the tracked aggregates' events are published in raise order, then
// the commit hooks run. Their errors are joined and returned wrapped in ErrAfterCommit;
// the data stays committed.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFrom(ctx); ok {
		return fn(ctx)
	}

	state := &txState{hooks: &cbus.CommitHooks{}}

	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state.tx = tx

		txCtx := context.WithValue(ctx, txKey{}, state)
		txCtx = cbus.WithCommitHooks(txCtx, state.hooks)

		return fn(txCtx)
	})
	if err != nil {
		state.hooks.Drain()

		for _, src := range state.sources {
			src.ClearEvents()
		}

		return err
	}

	return u.afterCommit(ctx, state)
}

func (u *UnitOfWork) afterCommit(ctx context.Context, state *txState) error {
	var errs []error

	if u.pub != nil {
		for _, src := range state.sources {
			events := src.Events()
			src.ClearEvents()

			for _, e := range events {
				if err := u.pub.PublishDomain(ctx, e); err != nil {
					errs = append(errs, err)
				}
			}
		}
	}

	for _, hook := range state.hooks.Drain() {
		if err := hook(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		u.logger.ErrorContext(ctx, "post-commit dispatch failed", "error", err)

		return fmt.Errorf("%w: %w", berr.ErrAfterCommit, err)
	}

	return nil
}
