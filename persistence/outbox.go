package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
)

// OutboxStatus is the delivery state of an outbox row.
type OutboxStatus int8

const (
	OutboxPending OutboxStatus = iota
	OutboxSent
	OutboxFailed
)

// OutboxMessage is an integration event stored with the business data that produced it.
type OutboxMessage struct {
	ID            string       `gorm:"primaryKey;size:36"`
	Topic         string       `gorm:"size:255;not null;index"`
	Key           string       `gorm:"size:255"`
	Type          string       `gorm:"size:255"`
	Connection    string       `gorm:"size:64"`
	Payload       []byte       `gorm:"not null"`
	Headers       string       `gorm:"type:text"`
	Status        OutboxStatus `gorm:"index"`
	Attempts      int
	NextAttemptAt time.Time `gorm:"index"`
	LastError     string    `gorm:"type:text"`
	CreatedAt     time.Time
	SentAt        *time.Time
}

// TableName implements gorm's tabler.
func (OutboxMessage) TableName() string { return "kernel_outbox" }

// Outbox stores integration events in the ambient transaction for later relay.
// It implements cbus.EventPublisher so a Bus can publish through it.
type Outbox struct {
	db   *gorm.DB
	prop cbus.HeaderPropagator
}

// NewOutbox returns an Outbox writing through db. prop may be nil.
func NewOutbox(db *gorm.DB, prop cbus.HeaderPropagator) *Outbox {
	if prop == nil {
		prop = cbus.NopHeaderPropagator{}
	}

	return &Outbox{db: db, prop: prop}
}

// Migrate creates the outbox table.
func (o *Outbox) Migrate(ctx context.Context) error {
	return o.db.WithContext(ctx).AutoMigrate(&OutboxMessage{})
}

// Add persists evt. Inside a unit of work the row commits or rolls back with it.
func (o *Outbox) Add(ctx context.Context, evt cbus.IntegrationEvent, opts cbus.PublishOptions) error {
	topic := evt.Topic()
	if opts.TopicOverride != "" {
		topic = opts.TopicOverride
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("outbox %s: %w", topic, errors.Join(berr.ErrSerializationFailed, err))
	}

	headers := make(map[string]string, len(opts.Headers)+2)
	maps.Copy(headers, opts.Headers)
	o.prop.Inject(ctx, headers)

	rawHeaders, err := json.Marshal(headers)
	if err != nil {
		return fmt.Errorf("outbox %s headers: %w", topic, errors.Join(berr.ErrSerializationFailed, err))
	}

	now := time.Now().UTC()
	msg := &OutboxMessage{
		ID:            uuid.NewString(),
		Topic:         topic,
		Key:           opts.Key,
		Type:          fmt.Sprintf("%T", evt),
		Connection:    opts.Connection,
		Payload:       payload,
		Headers:       string(rawHeaders),
		Status:        OutboxPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}

	if err := Conn(ctx, o.db).Create(msg).Error; err != nil {
		return fmt.Errorf("outbox %s: %w", topic, err)
	}

	return nil
}

// PublishIntegration implements cbus.EventPublisher.
func (o *Outbox) PublishIntegration(ctx context.Context, evt cbus.IntegrationEvent, opts cbus.PublishOptions) error {
	return o.Add(ctx, evt, opts)
}

// RelayedEvent is an outbox row replayed as an integration event. It marshals to
// the stored payload unchanged.
type RelayedEvent struct {
	ID      string
	Name    string
	topic   string
	payload json.RawMessage
}

// Topic implements cbus.IntegrationEvent.
func (e RelayedEvent) Topic() string { return e.topic }

// MarshalJSON returns the original payload.
func (e RelayedEvent) MarshalJSON() ([]byte, error) { return e.payload, nil }

// Payload returns the stored JSON.
func (e RelayedEvent) Payload() []byte { return e.payload }

var _ cbus.EventPublisher = (*Outbox)(nil)
