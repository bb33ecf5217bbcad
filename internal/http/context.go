package http

import (
	"context"
	"log/slog"

	"github.com/example/session-planner/internal/application"
	"github.com/example/session-planner/internal/logging"
)

type contextKey string

const scheduleKeyContextKey contextKey = "schedule_key"

// ContextWithScheduleKey injects the event and schedule resolved from the request path.
func ContextWithScheduleKey(ctx context.Context, key application.ScheduleKey) context.Context {
	return context.WithValue(ctx, scheduleKeyContextKey, key)
}

// ScheduleKeyFromContext extracts a schedule key previously associated with the context.
func ScheduleKeyFromContext(ctx context.Context) (application.ScheduleKey, bool) {
	key, ok := ctx.Value(scheduleKeyContextKey).(application.ScheduleKey)
	return key, ok
}

// ContextWithLogger returns a derived context carrying the request scoped logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext returns the request scoped logger, if any.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}
