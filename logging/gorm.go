package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormLogger routes gorm's logs to slog. Statements are logged at debug level,
// slow ones at warn and failing ones at error.
type GormLogger struct {
	logger        *slog.Logger
	SlowThreshold time.Duration
}

// NewGormLogger returns a gorm logger writing to l.
func NewGormLogger(l *slog.Logger, slowThreshold time.Duration) *GormLogger {
	if l == nil {
		l = slog.Default()
	}

	return &GormLogger{logger: l.With("component", "gorm"), SlowThreshold: slowThreshold}
}

// LogMode keeps the slog level in charge.
func (l *GormLogger) LogMode(logger.LogLevel) logger.Interface { return l }

// Info implements logger.Interface.
func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	l.logger.InfoContext(ctx, fmt.Sprintf(msg, data...))
}

// Warn implements logger.Interface.
func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	l.logger.WarnContext(ctx, fmt.Sprintf(msg, data...))
}

// Error implements logger.Interface.
func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	l.logger.ErrorContext(ctx, fmt.Sprintf(msg, data...))
}

// Trace implements logger.Interface.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []any{slog.String("sql", sql), slog.Duration("elapsed", elapsed)}
	if rows != -1 {
		fields = append(fields, slog.Int64("rows", rows))
	}

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		l.logger.ErrorContext(ctx, "gorm query failed", append(fields, slog.Any("error", err))...)
	case l.SlowThreshold > 0 && elapsed > l.SlowThreshold:
		l.logger.WarnContext(ctx, "gorm slow query", fields...)
	default:
		l.logger.DebugContext(ctx, "gorm query", fields...)
	}
}

var _ logger.Interface = (*GormLogger)(nil)
