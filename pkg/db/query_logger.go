package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/tipjar-backend/pkg/logger"
)

// queryLogger routes GORM's trace hook into the service logger. Only slow
// statements and real failures are reported; record-not-found is expected
// control flow for repositories.
type queryLogger struct {
	logg  *logger.Logger
	slow  time.Duration
	level gormlogger.LogLevel
}

func newQueryLogger(logg *logger.Logger, slow time.Duration) gormlogger.Interface {
	if logg == nil {
		return gormlogger.Discard
	}
	return &queryLogger{logg: logg, slow: slow, level: gormlogger.Warn}
}

func (l *queryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *queryLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.logg.Info(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *queryLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.logg.Warn(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *queryLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.logg.Error(ctx, "db.error", fmt.Errorf(msg, args...))
	}
}

func (l *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && !errors.Is(err, context.Canceled)
	slow := l.slow > 0 && elapsed > l.slow
	if !failed && !slow && l.level < gormlogger.Info {
		return
	}

	query, rows := fc()
	fields := map[string]any{
		"query":      query,
		"rows":       rows,
		"durationMs": elapsed.Milliseconds(),
	}
	ctx = l.logg.WithFields(ctx, fields)
	switch {
	case failed && l.level >= gormlogger.Error:
		l.logg.Error(ctx, "db.query_failed", err)
	case slow && l.level >= gormlogger.Warn:
		l.logg.Warn(ctx, "db.slow_query")
	case l.level >= gormlogger.Info:
		l.logg.Debug(ctx, "db.query")
	}
}
