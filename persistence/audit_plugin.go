package persistence

import (
	"fmt"
	"reflect"
	"time"

	"gorm.io/gorm"

	"github.com/next-trace/scg-shared-kernel/domain"
	"github.com/next-trace/scg-shared-kernel/security"
)

// AuditPlugin stamps domain.Auditable entities with the acting principal on create and update.
type AuditPlugin struct {
	now func() time.Time
}

// NewAuditPlugin returns the plugin using wall clock UTC time.
func NewAuditPlugin() *AuditPlugin {
	return &AuditPlugin{now: func() time.Time { return time.Now().UTC() }}
}

// Name implements gorm.Plugin.
func (p *AuditPlugin) Name() string { return "kernel:audit" }

// Initialize implements gorm.Plugin.
func (p *AuditPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Create().Before("gorm:create").Register("kernel:audit_create", p.onCreate); err != nil {
		return fmt.Errorf("register audit create callback: %w", err)
	}

	if err := db.Callback().Update().Before("gorm:update").Register("kernel:audit_update", p.onUpdate); err != nil {
		return fmt.Errorf("register audit update callback: %w", err)
	}

	return nil
}

func (p *AuditPlugin) onCreate(db *gorm.DB) {
	p.stamp(db, func(a domain.Auditable, at time.Time, by string) {
		a.SetCreated(at, by)
		a.SetUpdated(at, by)
	})
}

func (p *AuditPlugin) onUpdate(db *gorm.DB) {
	p.stamp(db, func(a domain.Auditable, at time.Time, by string) { a.SetUpdated(at, by) })
}

func (p *AuditPlugin) stamp(db *gorm.DB, fn func(a domain.Auditable, at time.Time, by string)) {
	if db.Error != nil || db.Statement.Schema == nil {
		return
	}

	at := p.now()
	by := security.SubjectFrom(db.Statement.Context)

	visit := func(v reflect.Value) {
		for v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return
			}

			v = v.Elem()
		}

		if !v.CanAddr() {
			return
		}

		if a, ok := v.Addr().Interface().(domain.Auditable); ok {
			fn(a, at, by)
		}
	}

	rv := db.Statement.ReflectValue
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			visit(rv.Index(i))
		}
	case reflect.Struct:
		visit(rv)
	default:
	}
}

var _ gorm.Plugin = (*AuditPlugin)(nil)
