// logging_adapters.go: Logger adapters for zap and logrus
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gopieces

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

// ZapLogger adapts a *zap.Logger to Logger through its sugared API.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger wraps l. A nil logger yields a no-op zap logger.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapLogger{sugar: l.Sugar()}
}

func (z *ZapLogger) Debug(msg string, args ...any) { z.sugar.Debugw(msg, args...) }
func (z *ZapLogger) Info(msg string, args ...any)  { z.sugar.Infow(msg, args...) }
func (z *ZapLogger) Warn(msg string, args ...any)  { z.sugar.Warnw(msg, args...) }
func (z *ZapLogger) Error(msg string, args ...any) { z.sugar.Errorw(msg, args...) }

func (z *ZapLogger) With(args ...any) Logger {
	return &ZapLogger{sugar: z.sugar.With(args...)}
}

// LogrusLogger adapts logrus to Logger.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger wraps l. A nil logger falls back to logrus.StandardLogger.
func NewLogrusLogger(l *logrus.Logger) *LogrusLogger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &LogrusLogger{entry: logrus.NewEntry(l)}
}

func (l *LogrusLogger) Debug(msg string, args ...any) { l.entry.WithFields(toFields(args)).Debug(msg) }
func (l *LogrusLogger) Info(msg string, args ...any)  { l.entry.WithFields(toFields(args)).Info(msg) }
func (l *LogrusLogger) Warn(msg string, args ...any)  { l.entry.WithFields(toFields(args)).Warn(msg) }
func (l *LogrusLogger) Error(msg string, args ...any) { l.entry.WithFields(toFields(args)).Error(msg) }

func (l *LogrusLogger) With(args ...any) Logger {
	return &LogrusLogger{entry: l.entry.WithFields(toFields(args))}
}

// toFields turns key-value pairs into logrus fields. A trailing key without
// a value is kept under "!BADKEY", matching slog.
func toFields(args []any) logrus.Fields {
	fields := make(logrus.Fields, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if i+1 >= len(args) {
			fields["!BADKEY"] = args[i]
			break
		}
		fields[key] = args[i+1]
	}
	return fields
}

// ParseLevel maps a config level name onto zap's levels. Unknown names give info.
func ParseLevel(level string) zap.AtomicLevel {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return lvl
}
