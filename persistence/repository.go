package persistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
	"github.com/next-trace/scg-shared-kernel/domain"
)

// Scope narrows a query, e.g. a filter or an ordering.
type Scope = func(*gorm.DB) *gorm.DB

// Repository is a generic gorm repository for entity T. It uses the transaction of
// the active unit of work when there is one and tracks aggregates it saves.
type Repository[T any] struct {
	db       *gorm.DB
	idColumn string
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*repoOptions)

type repoOptions struct{ idColumn string }

// WithIDColumn overrides the primary key column used by FindByID, Delete and Exists.
func WithIDColumn(col string) RepositoryOption {
	return func(o *repoOptions) { o.idColumn = col }
}

// NewRepository returns a repository for T.
func NewRepository[T any](db *gorm.DB, opts ...RepositoryOption) *Repository[T] {
	o := repoOptions{idColumn: "id"}
	for _, opt := range opts {
		opt(&o)
	}

	return &Repository[T]{db: db, idColumn: o.idColumn}
}

// DB returns the connection for ctx.
func (r *Repository[T]) DB(ctx context.Context) *gorm.DB { return Conn(ctx, r.db) }

func (r *Repository[T]) track(ctx context.Context, entity *T) {
	if src, ok := any(entity).(domain.EventSource); ok {
		Track(ctx, src)
	}
}

// Create inserts entity.
func (r *Repository[T]) Create(ctx context.Context, entity *T) error {
	if err := r.DB(ctx).Create(entity).Error; err != nil {
		return translate(err, "create %T", entity)
	}

	r.track(ctx, entity)

	return nil
}

// Update saves every field of entity.
func (r *Repository[T]) Update(ctx context.Context, entity *T) error {
	if err := r.DB(ctx).Save(entity).Error; err != nil {
		return translate(err, "update %T", entity)
	}

	r.track(ctx, entity)

	return nil
}

// Delete removes the entity with id; soft deleting when T has a gorm.DeletedAt field.
func (r *Repository[T]) Delete(ctx context.Context, id any) error {
	res := r.DB(ctx).Where(r.idColumn+" = ?", id).Delete(new(T))
	if res.Error != nil {
		return translate(res.Error, "delete %T %v", new(T), id)
	}

	if res.RowsAffected == 0 {
		return fmt.Errorf("delete %T %v: %w", new(T), id, berr.ErrNotFound)
	}

	return nil
}

// FindByID returns the entity with id or ErrNotFound.
func (r *Repository[T]) FindByID(ctx context.Context, id any) (*T, error) {
	var entity T
	if err := r.DB(ctx).Where(r.idColumn+" = ?", id).Take(&entity).Error; err != nil {
		return nil, translate(err, "find %T %v", &entity, id)
	}

	return &entity, nil
}

// List returns one page of entities matching scopes.
func (r *Repository[T]) List(ctx context.Context, page Page, scopes ...Scope) (PageResult[T], error) {
	page = page.Normalize()
	result := PageResult[T]{Page: page.Number, PageSize: page.Size, Items: []T{}}

	query := func() *gorm.DB { return r.DB(ctx).Model(new(T)).Scopes(scopes...) }

	if err := query().Count(&result.Total).Error; err != nil {
		return result, translate(err, "count %T", new(T))
	}

	if result.Total == 0 {
		return result, nil
	}

	if err := query().Offset(page.Offset()).Limit(page.Size).Find(&result.Items).Error; err != nil {
		return result, translate(err, "list %T", new(T))
	}

	return result, nil
}

// Count returns the number of entities matching scopes.
func (r *Repository[T]) Count(ctx context.Context, scopes ...Scope) (int64, error) {
	var n int64
	if err := r.DB(ctx).Model(new(T)).Scopes(scopes...).Count(&n).Error; err != nil {
		return 0, translate(err, "count %T", new(T))
	}

	return n, nil
}

// Exists reports whether an entity with id exists.
func (r *Repository[T]) Exists(ctx context.Context, id any) (bool, error) {
	n, err := r.Count(ctx, func(db *gorm.DB) *gorm.DB { return db.Where(r.idColumn+" = ?", id) })
	return n > 0, err
}

func translate(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", msg, berr.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey), errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%s: %w", msg, errors.Join(berr.ErrConflict, err))
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}
