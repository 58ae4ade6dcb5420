package persistence

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/next-trace/scg-shared-kernel/domain"
)

// Model is the base every persisted entity embeds. IDs are UUID strings assigned
// on create. Deletes are soft.
type Model struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	CreatedBy string         `gorm:"size:128" json:"created_by,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
	UpdatedBy string         `gorm:"size:128" json:"updated_by,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate assigns an ID when none is set.
func (m *Model) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	return nil
}

// EntityID returns the primary key.
func (m *Model) EntityID() string { return m.ID }

// SetID sets the primary key.
func (m *Model) SetID(id string) { m.ID = id }

// Created returns the creation stamp.
func (m *Model) Created() (time.Time, string) { return m.CreatedAt, m.CreatedBy }

// SetCreated implements domain.Auditable. It overwrites any stamp the caller supplied.
func (m *Model) SetCreated(at time.Time, by string) {
	m.CreatedAt = at
	m.CreatedBy = by
}

// SetUpdated implements domain.Auditable.
func (m *Model) SetUpdated(at time.Time, by string) {
	m.UpdatedAt = at
	m.UpdatedBy = by
}

var _ domain.Auditable = (*Model)(nil)
