// Package logging provides structured logging utilities for AI modules.
package logging

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

// Logger provides structured logging with per-component fields.
type Logger struct {
	mu      sync.RWMutex
	handler slog.Handler
	fields  map[string]any
}

var defaultLogger *Logger

func init() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	defaultLogger = NewLogger(handler)
}

// Default returns the process-wide default logger.
func Default() *Logger {
	return defaultLogger
}

// NewLogger creates a new logger with the given handler.
func NewLogger(h slog.Handler) *Logger {
	if h == nil {
		h = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		handler: h,
		fields:  make(map[string]any),
	}
}

// WithField returns a new logger with an additional field.
func (l *Logger) WithField(key string, value any) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	newLogger := &Logger{
		handler: l.handler,
		fields:  make(map[string]any, len(l.fields)+1),
	}
	for k, v := range l.fields {
		newLogger.fields[k] = v
	}
	newLogger.fields[key] = value
	return newLogger
}

// WithComponent returns a child logger scoped to a component name.
func (l *Logger) WithComponent(name string) *Logger {
	return l.WithField("component", name)
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if !l.handler.Enabled(ctx, level) {
		return
	}
	logger := slog.New(l.handler)

	l.mu.RLock()
	attrs := make([]any, 0, len(l.fields)*2+len(args))
	for k, v := range l.fields {
		attrs = append(attrs, k, v)
	}
	l.mu.RUnlock()

	attrs = append(attrs, args...)
	logger.Log(ctx, level, msg, attrs...)
}

func (l *Logger) Debug(msg string, args ...any) {
	l.log(context.Background(), slog.LevelDebug, msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.log(context.Background(), slog.LevelInfo, msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.log(context.Background(), slog.LevelWarn, msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.log(context.Background(), slog.LevelError, msg, args...)
}
