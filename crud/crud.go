// Package crud provides generic Create, Update, Delete, Get and List requests for
// any persisted entity, served by fallback handlers on the bus. A handler bound for
// a concrete request such as Create[Order] takes precedence over the fallback.
package crud

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
	"github.com/next-trace/scg-shared-kernel/persistence"
)

// Store is the repository surface the generic handlers need.
// *persistence.Repository[T] implements it.
type Store[T any] interface {
	Create(ctx context.Context, entity *T) error
	Update(ctx context.Context, entity *T) error
	Delete(ctx context.Context, id any) error
	FindByID(ctx context.Context, id any) (*T, error)
	List(ctx context.Context, page persistence.Page, scopes ...persistence.Scope) (persistence.PageResult[T], error)
}

// Repositories maps entity types to their stores.
type Repositories struct {
	mu     sync.RWMutex
	stores map[reflect.Type]any
}

// NewRepositories returns an empty registry.
func NewRepositories() *Repositories {
	return &Repositories{stores: make(map[reflect.Type]any)}
}

// Use registers the store serving entity T, replacing any previous one.
func Use[T any](r *Repositories, store Store[T]) {
	r.mu.Lock()
	r.stores[reflect.TypeFor[T]()] = store
	r.mu.Unlock()
}

func storeFor[T any](r *Repositories) (Store[T], error) {
	r.mu.RLock()
	s, ok := r.stores[reflect.TypeFor[T]()]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no repository for %s: %w", reflect.TypeFor[T](), berr.ErrHandlerNotFound)
	}

	return s.(Store[T]), nil
}

// Operation is implemented by every generic request.
type Operation interface {
	execute(ctx context.Context, r *Repositories) (any, error)
}

// CommandOperation is a state changing generic request.
type CommandOperation interface {
	Operation
	command()
}

// QueryOperation is a read only generic request.
type QueryOperation interface {
	Operation
	query()
}

type identifiable interface{ SetID(id string) }

type identified interface{ EntityID() string }

type stamped interface {
	Created() (time.Time, string)
	SetCreated(at time.Time, by string)
}

func resourceOf[T any]() string { return reflect.TypeFor[T]().Name() }

// Create inserts Entity. The JSON body of the request is the entity itself.
// The result is the stored *T.
type Create[T any] struct {
	Entity *T `validate:"required"`
}

// UnmarshalJSON decodes the body into Entity.
func (c *Create[T]) UnmarshalJSON(b []byte) error {
	c.Entity = new(T)
	return json.Unmarshal(b, c.Entity)
}

// AuditResource implements audit.Auditable. The ID is known once the entity is stored.
func (c Create[T]) AuditResource() (string, string) {
	if e, ok := any(c.Entity).(identified); ok && c.Entity != nil {
		return resourceOf[T](), e.EntityID()
	}

	return resourceOf[T](), ""
}

func (Create[T]) command() {}

func (c Create[T]) execute(ctx context.Context, r *Repositories) (any, error) {
	s, err := storeFor[T](r)
	if err != nil {
		return nil, err
	}

	if c.Entity == nil {
		return nil, fmt.Errorf("create %s: missing entity: %w", resourceOf[T](), berr.ErrValidation)
	}

	if err := s.Create(ctx, c.Entity); err != nil {
		return nil, err
	}

	return c.Entity, nil
}

// Update replaces the entity with ID. The JSON body is the entity; ID usually
// comes from the route. A missing entity yields ErrNotFound. The result is the stored *T.
type Update[T any] struct {
	ID     string `uri:"id" validate:"required"`
	Entity *T     `validate:"required"`
}

// UnmarshalJSON decodes the body into Entity.
func (u *Update[T]) UnmarshalJSON(b []byte) error {
	u.Entity = new(T)
	return json.Unmarshal(b, u.Entity)
}

// AuditResource implements audit.Auditable.
func (u Update[T]) AuditResource() (string, string) { return resourceOf[T](), u.ID }

func (Update[T]) command() {}

func (u Update[T]) execute(ctx context.Context, r *Repositories) (any, error) {
	s, err := storeFor[T](r)
	if err != nil {
		return nil, err
	}

	if u.Entity == nil {
		return nil, fmt.Errorf("update %s: missing entity: %w", resourceOf[T](), berr.ErrValidation)
	}

	current, err := s.FindByID(ctx, u.ID)
	if err != nil {
		return nil, err
	}

	if e, ok := any(u.Entity).(identifiable); ok {
		e.SetID(u.ID)
	}

	// Save writes every column; the stored creation stamp wins over the body.
	if prev, ok := any(current).(stamped); ok {
		if next, ok := any(u.Entity).(stamped); ok {
			next.SetCreated(prev.Created())
		}
	}

	if err := s.Update(ctx, u.Entity); err != nil {
		return nil, err
	}

	return u.Entity, nil
}

// Delete removes the entity with ID.
type Delete[T any] struct {
	ID string `uri:"id" json:"id" validate:"required"`
}

// AuditResource implements audit.Auditable.
func (d Delete[T]) AuditResource() (string, string) { return resourceOf[T](), d.ID }

func (Delete[T]) command() {}

func (d Delete[T]) execute(ctx context.Context, r *Repositories) (any, error) {
	s, err := storeFor[T](r)
	if err != nil {
		return nil, err
	}

	return nil, s.Delete(ctx, d.ID)
}

// Get loads the entity with ID. The result is *T.
type Get[T any] struct {
	ID string `uri:"id" json:"id" validate:"required"`
}

func (Get[T]) query() {}

func (g Get[T]) execute(ctx context.Context, r *Repositories) (any, error) {
	s, err := storeFor[T](r)
	if err != nil {
		return nil, err
	}

	return s.FindByID(ctx, g.ID)
}

// List loads one page of entities. The result is persistence.PageResult[T].
type List[T any] struct {
	persistence.Page
}

func (List[T]) query() {}

func (l List[T]) execute(ctx context.Context, r *Repositories) (any, error) {
	s, err := storeFor[T](r)
	if err != nil {
		return nil, err
	}

	return s.List(ctx, l.Page)
}
