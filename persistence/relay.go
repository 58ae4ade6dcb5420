package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
	"github.com/next-trace/scg-shared-kernel/tracing"
)

// RelayOptions tunes a Relay. Zero values take defaults.
type RelayOptions struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration
	Logger     *slog.Logger
	Propagator *tracing.Propagator
	Clock      func() time.Time
}

// Relay publishes pending outbox rows. It runs as a hosted background service.
type Relay struct {
	db   *gorm.DB
	pub  cbus.EventPublisher
	opts RelayOptions
}

// NewRelay returns a Relay delivering to pub.
func NewRelay(db *gorm.DB, pub cbus.EventPublisher, opts RelayOptions) *Relay {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}

	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}

	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}

	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}

	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = time.Hour
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Propagator == nil {
		opts.Propagator = tracing.NewPropagator(nil)
	}

	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	opts.Logger = opts.Logger.With("module", "outbox")

	return &Relay{db: db, pub: pub, opts: opts}
}

// Name identifies the relay in the host.
func (r *Relay) Name() string { return "outbox-relay" }

// Run polls until ctx ends.
func (r *Relay) Run(ctx context.Context) error {
	r.opts.Logger.InfoContext(ctx, "outbox relay started", "interval", r.opts.Interval)

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
			r.opts.Logger.ErrorContext(ctx, "outbox poll failed", "error", err)
		}

		select {
		case <-ctx.Done():
			r.opts.Logger.InfoContext(ctx, "outbox relay stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessOnce publishes one batch of due rows and returns how many were sent.
func (r *Relay) ProcessOnce(ctx context.Context) (int, error) {
	now := r.opts.Clock().UTC()

	var batch []OutboxMessage

	err := r.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", OutboxPending, now).
		Order("created_at ASC, id ASC").
		Limit(r.opts.BatchSize).
		Find(&batch).Error
	if err != nil {
		return 0, fmt.Errorf("fetch outbox batch: %w", err)
	}

	sent := 0

	for i := range batch {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}

		if r.deliver(ctx, &batch[i], now) {
			sent++
		}
	}

	return sent, nil
}

func (r *Relay) deliver(ctx context.Context, msg *OutboxMessage, now time.Time) bool {
	headers := map[string]string{}
	if msg.Headers != "" {
		if err := json.Unmarshal([]byte(msg.Headers), &headers); err != nil {
			r.opts.Logger.WarnContext(ctx, "outbox headers unreadable", "id", msg.ID, "error", err)
		}
	}

	pctx := r.opts.Propagator.Extract(ctx, headers)

	evt := RelayedEvent{ID: msg.ID, Name: msg.Type, topic: msg.Topic, payload: msg.Payload}
	opts := cbus.PublishOptions{Key: msg.Key, Connection: msg.Connection, Headers: headers}

	err := r.pub.PublishIntegration(pctx, evt, opts)
	if err == nil {
		r.update(ctx, msg, map[string]any{
			"status":   OutboxSent,
			"attempts": msg.Attempts + 1,
			"sent_at":  now,
		})

		return true
	}

	attempts := msg.Attempts + 1
	updates := map[string]any{
		"attempts":        attempts,
		"last_error":      err.Error(),
		"next_attempt_at": now.Add(r.backoff(attempts)),
	}

	if attempts >= r.opts.MaxRetries {
		updates["status"] = OutboxFailed
		r.opts.Logger.ErrorContext(pctx, "outbox message failed permanently", "id", msg.ID, "topic", msg.Topic, "error", err)
	} else {
		r.opts.Logger.WarnContext(pctx, "outbox publish failed, will retry", "id", msg.ID, "attempts", attempts, "error", err)
	}

	r.update(ctx, msg, updates)

	return false
}

func (r *Relay) update(ctx context.Context, msg *OutboxMessage, updates map[string]any) {
	err := r.db.WithContext(ctx).Model(&OutboxMessage{}).Where("id = ?", msg.ID).Updates(updates).Error
	if err != nil {
		r.opts.Logger.ErrorContext(ctx, "outbox status update failed", "id", msg.ID, "error", err)
	}
}

// backoff doubles per attempt up to MaxBackoff.
func (r *Relay) backoff(attempts int) time.Duration {
	d := r.opts.Backoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= r.opts.MaxBackoff {
			return r.opts.MaxBackoff
		}
	}

	return d
}
