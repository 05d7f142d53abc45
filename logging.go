// logging.go: Pluggable logging for hosts, registries and pieces
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gopieces

import (
	"context"
	"sync"
)

type loggerContextKey string

const loggerKey loggerContextKey = "logger"

// Logger is the structured logging interface used across go-pieces.
//
// Arguments after the message are key-value pairs. Adapters for zap and
// logrus live in logging_adapters.go; anything else can be plugged in by
// implementing these five methods.
//
//	host, err := gopieces.NewHost(cfg, gopieces.WithLogger(gopieces.NewZapLogger(zl)))
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// With returns a logger that adds the given key-value pairs to every entry.
	With(args ...any) Logger
}

// NewLogger normalizes a logger argument.
//
// Supported types:
//   - Logger: used directly
//   - nil: NoOpLogger
//
// Anything else panics.
func NewLogger(logger any) Logger {
	switch l := logger.(type) {
	case Logger:
		return l
	case nil:
		return NewNoOpLogger()
	default:
		panic("unsupported logger type: expected Logger interface or nil")
	}
}

// NoOpLogger discards everything.
type NoOpLogger struct{}

// NewNoOpLogger creates a new no-operation logger.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) Debug(msg string, args ...any) {}
func (n *NoOpLogger) Info(msg string, args ...any)  {}
func (n *NoOpLogger) Warn(msg string, args ...any)  {}
func (n *NoOpLogger) Error(msg string, args ...any) {}

func (n *NoOpLogger) With(args ...any) Logger {
	return n
}

// TestLogger captures log entries so tests can assert on them.
//
// Loggers derived with With share the parent's buffer, so messages logged
// by a registry's scoped logger are visible on the logger the test created.
type TestLogger struct {
	shared *testLogBuffer
	fields []any

	// Messages is kept in sync with the shared buffer for direct inspection.
	Messages []TestLogMessage
}

type testLogBuffer struct {
	mu       sync.RWMutex
	messages []TestLogMessage
}

// TestLogMessage represents a captured log message for testing.
type TestLogMessage struct {
	Level   string
	Message string
	Args    []any
}

// NewTestLogger creates a new test logger.
func NewTestLogger() *TestLogger {
	return &TestLogger{shared: &testLogBuffer{}}
}

func (t *TestLogger) record(level, msg string, args []any) {
	all := make([]any, 0, len(t.fields)+len(args))
	all = append(all, t.fields...)
	all = append(all, args...)

	t.shared.mu.Lock()
	t.shared.messages = append(t.shared.messages, TestLogMessage{Level: level, Message: msg, Args: all})
	t.Messages = t.shared.messages
	t.shared.mu.Unlock()
}

func (t *TestLogger) Debug(msg string, args ...any) { t.record("DEBUG", msg, args) }
func (t *TestLogger) Info(msg string, args ...any)  { t.record("INFO", msg, args) }
func (t *TestLogger) Warn(msg string, args ...any)  { t.record("WARN", msg, args) }
func (t *TestLogger) Error(msg string, args ...any) { t.record("ERROR", msg, args) }

// With returns a logger writing into the same buffer with extra fields.
func (t *TestLogger) With(args ...any) Logger {
	fields := make([]any, 0, len(t.fields)+len(args))
	fields = append(fields, t.fields...)
	fields = append(fields, args...)
	return &TestLogger{shared: t.shared, fields: fields}
}

// Entries returns a copy of every captured message.
func (t *TestLogger) Entries() []TestLogMessage {
	t.shared.mu.RLock()
	defer t.shared.mu.RUnlock()
	out := make([]TestLogMessage, len(t.shared.messages))
	copy(out, t.shared.messages)
	return out
}

// HasMessage checks if the logger captured a message with the given level and text.
func (t *TestLogger) HasMessage(level, message string) bool {
	for _, msg := range t.Entries() {
		if msg.Level == level && msg.Message == message {
			return true
		}
	}
	return false
}

// Clear removes all captured messages.
func (t *TestLogger) Clear() {
	t.shared.mu.Lock()
	t.shared.messages = t.shared.messages[:0]
	t.Messages = t.shared.messages
	t.shared.mu.Unlock()
}

// DefaultLogger returns the logger used when none is configured.
func DefaultLogger() Logger {
	return NewNoOpLogger()
}

// LoggerFromContext extracts a logger from ctx, falling back to DefaultLogger.
//
// The host stores its piece-scoped logger in the context passed to Init and
// Run, so pieces can log without holding a logger of their own.
func LoggerFromContext(ctx context.Context) Logger {
	if ctx == nil {
		return DefaultLogger()
	}
	if logger, ok := ctx.Value(loggerKey).(Logger); ok {
		return logger
	}
	return DefaultLogger()
}

// ContextWithLogger adds a logger to the context.
func ContextWithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}
