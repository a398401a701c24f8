package log

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

const loggerKey contextKey = "logger"

// NewContext returns ctx carrying logger, typically one already bound to a
// request id.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger stored by NewContext, or one over the
// default slog logger.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey).(*Logger); ok {
		return logger
	}
	return &Logger{Logger: slog.Default(), component: "unknown"}
}

// StatusLevel maps an HTTP status to the level its completion is logged at.
func StatusLevel(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// LogHTTPEnd logs the completion of a request.
func (l *Logger) LogHTTPEnd(ctx context.Context, r *http.Request, status int, durationMs int64, clientIP string) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent()).
		WithHTTPResponse(status, durationMs, status < 400).
		WithClientIP(clientIP)
	l.Log(ctx, StatusLevel(status), "HTTP request completed", fields.ToSlice()...)
}

// LogError logs err with its kind and the operation that failed.
func (l *Logger) LogError(ctx context.Context, msg string, err error, operation string) {
	fields := NewFields().WithError(err).WithOperation(operation)
	l.ErrorContext(ctx, msg, fields.ToSlice()...)
}
