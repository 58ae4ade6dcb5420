package crud_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"gorm.io/gorm"

	"github.com/next-trace/scg-shared-kernel/config"
	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
	"github.com/next-trace/scg-shared-kernel/crud"
	"github.com/next-trace/scg-shared-kernel/persistence"
	"github.com/next-trace/scg-shared-kernel/security"
	"github.com/next-trace/scg-shared-kernel/servicebus"
)

type product struct {
	persistence.Model

	Name  string `json:"name"`
	Price int    `json:"price"`
}

type supplier struct {
	persistence.Model

	Name string
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)) }

func setup(t *testing.T) (*servicebus.Bus, *gorm.DB) {
	t.Helper()

	db, err := persistence.Open(config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          ":memory:",
		MaxIdleConns: 1,
		MaxOpenConns: 1,
	}, quiet())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := db.AutoMigrate(&product{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	repos := crud.NewRepositories()
	crud.Use[product](repos, persistence.NewRepository[product](db))

	b := servicebus.New(nil, nil, quiet())
	if err := crud.Bind(b, repos); err != nil {
		t.Fatalf("bind: %v", err)
	}

	return b, db
}

func TestCRUD_Lifecycle(t *testing.T) {
	b, _ := setup(t)
	ctx := security.WithPrincipal(t.Context(), &security.Principal{Subject: "u-1"})

	created, err := servicebus.Send[crud.Create[product], *product](ctx, b, crud.Create[product]{Entity: &product{Name: "lamp", Price: 30}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if created.ID == "" || created.CreatedBy != "u-1" {
		t.Fatalf("created = %+v", created)
	}

	got, err := servicebus.Ask[crud.Get[product], *product](ctx, b, crud.Get[product]{ID: created.ID})
	if err != nil || got.Name != "lamp" {
		t.Fatalf("get = %+v, %v", got, err)
	}

	updated, err := servicebus.Send[crud.Update[product], *product](ctx, b, crud.Update[product]{
		ID:     created.ID,
		Entity: &product{Name: "desk lamp", Price: 35},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if updated.ID != created.ID {
		t.Fatalf("update id = %q", updated.ID)
	}

	got, err = servicebus.Ask[crud.Get[product], *product](ctx, b, crud.Get[product]{ID: created.ID})
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if got.Name != "desk lamp" || got.Price != 35 {
		t.Fatalf("after update = %+v", got)
	}

	if got.CreatedBy != "u-1" || got.CreatedAt.IsZero() {
		t.Fatalf("creation stamp lost: %+v", got.Model)
	}

	page, err := servicebus.Ask[crud.List[product], persistence.PageResult[product]](ctx, b, crud.List[product]{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if page.Total != 1 || len(page.Items) != 1 || page.PageSize != persistence.DefaultPageSize {
		t.Fatalf("page = %+v", page)
	}

	if err := b.Dispatch(ctx, crud.Delete[product]{ID: created.ID}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := b.Ask(ctx, crud.Get[product]{ID: created.ID}); !errors.Is(err, berr.ErrNotFound) {
		t.Fatalf("get after delete err = %v", err)
	}

	if err := b.Dispatch(ctx, crud.Delete[product]{ID: created.ID}); !errors.Is(err, berr.ErrNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
}

func TestCRUD_UpdateMissing(t *testing.T) {
	b, _ := setup(t)

	_, err := servicebus.Send[crud.Update[product], *product](t.Context(), b, crud.Update[product]{ID: "nope", Entity: &product{}})
	if !errors.Is(err, berr.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestCRUD_MissingEntity(t *testing.T) {
	b, _ := setup(t)

	if err := b.Dispatch(t.Context(), crud.Create[product]{}); !errors.Is(err, berr.ErrValidation) {
		t.Fatalf("err = %v", err)
	}
}

func TestCRUD_UnregisteredEntity(t *testing.T) {
	b, _ := setup(t)

	if _, err := b.Ask(t.Context(), crud.Get[supplier]{ID: "x"}); !errors.Is(err, berr.ErrHandlerNotFound) {
		t.Fatalf("get err = %v", err)
	}

	if err := b.Dispatch(t.Context(), crud.Create[supplier]{Entity: &supplier{}}); !errors.Is(err, berr.ErrHandlerNotFound) {
		t.Fatalf("create err = %v", err)
	}
}

type customCreate struct{ calls int }

func (h *customCreate) Handle(_ context.Context, c crud.Create[product]) (*product, error) {
	h.calls++
	c.Entity.Name = "custom:" + c.Entity.Name

	return c.Entity, nil
}

func TestCRUD_ExactHandlerOverridesFallback(t *testing.T) {
	b, db := setup(t)

	h := &customCreate{}
	if err := servicebus.BindCommandResult[crud.Create[product], *product](b, h); err != nil {
		t.Fatalf("bind: %v", err)
	}

	got, err := servicebus.Send[crud.Create[product], *product](t.Context(), b, crud.Create[product]{Entity: &product{Name: "chair"}})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if h.calls != 1 || got.Name != "custom:chair" {
		t.Fatalf("calls=%d got=%+v", h.calls, got)
	}

	var n int64
	if err := db.Model(&product{}).Count(&n).Error; err != nil || n != 0 {
		t.Fatalf("rows = %d, %v", n, err)
	}

	// Other operations on the same entity still reach the fallback.
	page, err := servicebus.Ask[crud.List[product], persistence.PageResult[product]](t.Context(), b, crud.List[product]{})
	if err != nil || page.Total != 0 {
		t.Fatalf("list = %+v, %v", page, err)
	}
}

func TestCreate_UnmarshalJSON(t *testing.T) {
	var c crud.Create[product]
	if err := json.Unmarshal([]byte(`{"name":"sofa","price":900}`), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if c.Entity == nil || c.Entity.Name != "sofa" || c.Entity.Price != 900 {
		t.Fatalf("entity = %+v", c.Entity)
	}

	resource, id := c.AuditResource()
	if resource != "product" || id != "" {
		t.Fatalf("audit resource = %q %q", resource, id)
	}
}

func TestCRUD_CreationStampIgnoresBody(t *testing.T) {
	b, _ := setup(t)
	owner := security.WithPrincipal(t.Context(), &security.Principal{Subject: "u-1"})

	var c crud.Create[product]
	if err := json.Unmarshal([]byte(`{"name":"desk","created_at":"2001-01-01T00:00:00Z","created_by":"mallory"}`), &c); err != nil {
		t.Fatalf("unmarshal create: %v", err)
	}

	created, err := servicebus.Send[crud.Create[product], *product](owner, b, c)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	stored, err := servicebus.Ask[crud.Get[product], *product](owner, b, crud.Get[product]{ID: created.ID})
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if stored.CreatedAt.Year() == 2001 || stored.CreatedBy != "u-1" {
		t.Fatalf("create kept client stamp: %+v", stored.Model)
	}

	var u crud.Update[product]
	if err := json.Unmarshal([]byte(`{"name":"desk","created_at":"2001-01-01T00:00:00Z","created_by":"mallory"}`), &u); err != nil {
		t.Fatalf("unmarshal update: %v", err)
	}

	u.ID = created.ID
	editor := security.WithPrincipal(t.Context(), &security.Principal{Subject: "u-2"})

	if _, err := servicebus.Send[crud.Update[product], *product](editor, b, u); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := servicebus.Ask[crud.Get[product], *product](owner, b, crud.Get[product]{ID: created.ID})
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if !got.CreatedAt.Equal(stored.CreatedAt) || got.CreatedBy != "u-1" {
		t.Fatalf("created before=%v/%s after=%v/%s", stored.CreatedAt, stored.CreatedBy, got.CreatedAt, got.CreatedBy)
	}

	if got.UpdatedBy != "u-2" {
		t.Fatalf("updated_by = %q", got.UpdatedBy)
	}
}

func TestCreate_AuditResourceAfterStore(t *testing.T) {
	b, _ := setup(t)
	c := crud.Create[product]{Entity: &product{Name: "chair"}}

	if err := b.Dispatch(t.Context(), c); err != nil {
		t.Fatalf("create: %v", err)
	}

	resource, id := c.AuditResource()
	if resource != "product" || id == "" || id != c.Entity.ID {
		t.Fatalf("audit resource = %q %q", resource, id)
	}
}
