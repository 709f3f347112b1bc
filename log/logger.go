// Copyright 2019 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package log is the structured logger used throughout the replica: every
// thread (input, output, worker, batching, checkpoint, execution, §5) logs
// through a Logger carrying its own "component"/"thread" context so a single
// log stream can be filtered down to one subsystem.
package log

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"
)

const errorKey = "LOG_ERROR"

const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelCrit  = slog.Level(12)
)

// Logger writes key/value pairs to a Handler.
type Logger interface {
	// With returns a new Logger that has this logger's attributes plus the given attributes.
	With(ctx ...interface{}) Logger
	// New is an alias for With.
	New(ctx ...interface{}) Logger

	// Log logs a message at the specified level with context key/value pairs.
	Log(level slog.Level, msg string, ctx ...interface{})

	// Trace logs a message at the trace level with context key/value pairs.
	Trace(msg string, ctx ...interface{})
	// Debug logs a message at the debug level with context key/value pairs.
	Debug(msg string, ctx ...interface{})
	// Info logs a message at the info level with context key/value pairs.
	Info(msg string, ctx ...interface{})
	// Warn logs a message at the warn level with context key/value pairs.
	Warn(msg string, ctx ...interface{})
	// Error logs a message at the error level with context key/value pairs.
	Error(msg string, ctx ...interface{})
	// Crit logs a message at the crit level with context key/value pairs, and exits.
	Crit(msg string, ctx ...interface{})

	// Write logs a message at the specified level.
	Write(level slog.Level, msg string, attrs ...any)

	// Handler returns the underlying handler of the logger.
	Handler() slog.Handler

	// Enabled reports whether l emits log records at the given context and level.
	Enabled(ctx context.Context, level slog.Level) bool
}

type logger struct {
	inner *slog.Logger
}

// NewLogger returns a logger with the specified handler set.
func NewLogger(h slog.Handler) Logger {
	return &logger{
		inner: slog.New(h),
	}
}

func (l *logger) Handler() slog.Handler {
	return l.inner.Handler()
}

// Write logs a message at the specified level.
func (l *logger) Write(level slog.Level, msg string, attrs ...any) {
	if !l.inner.Enabled(context.Background(), level) {
		return
	}
	normalizedAttrs := normalize(attrs)
	l.write(msg, level, normalizedAttrs)
}

func (l *logger) Log(level slog.Level, msg string, attrs ...any) {
	l.Write(level, msg, attrs...)
}

func (l *logger) write(msg string, level slog.Level, attrs []any) {
	var pcs [1]uintptr
	// skip runtime.Callers, this function, Write, and the exported
	// Trace/Debug/.../Log method that called it.
	runtime.Callers(4, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(attrs...)
	l.inner.Handler().Handle(context.Background(), r)
}

func (l *logger) Enabled(ctx context.Context, level slog.Level) bool {
	return l.inner.Enabled(ctx, level)
}

func (l *logger) With(ctx ...interface{}) Logger {
	return &logger{l.inner.With(normalize(ctx)...)}
}

func (l *logger) New(ctx ...interface{}) Logger {
	return l.With(ctx...)
}

// Trace log a message at the trace level with context key/value pairs.
func (l *logger) Trace(msg string, ctx ...interface{}) {
	l.Write(LevelTrace, msg, ctx...)
}

// Debug logs a message at the debug level with context key/value pairs.
func (l *logger) Debug(msg string, ctx ...interface{}) {
	l.Write(LevelDebug, msg, ctx...)
}

// Info logs a message at the info level with context key/value pairs.
func (l *logger) Info(msg string, ctx ...interface{}) {
	l.Write(LevelInfo, msg, ctx...)
}

// Warn logs a message at the warn level with context key/value pairs.
func (l *logger) Warn(msg string, ctx ...interface{}) {
	l.Write(LevelWarn, msg, ctx...)
}

// Error logs a message at the error level with context key/value pairs.
func (l *logger) Error(msg string, ctx ...interface{}) {
	l.Write(LevelError, msg, ctx...)
}

// Crit logs a message at the crit level with context key/value pairs, and exits.
func (l *logger) Crit(msg string, ctx ...interface{}) {
	l.Write(LevelCrit, msg, ctx...)
	os.Exit(1)
}

// normalize ensures the ctx key/value pairs are lined up properly, and
// converts any errors to strings.
func normalize(ctx []interface{}) []interface{} {
	// If a Ctx was passed in as the first argument, unwrap it.
	if len(ctx) == 1 {
		if ctxMap, ok := ctx[0].(map[string]interface{}); ok {
			ctx = ctxMapToList(ctxMap)
		}
	}
	// ctx needs to be even because it's a series of key/value pairs
	// no one wants to check for a bad ctx, so instead we add a single
	// value after an odd ctx, to make it even.
	if len(ctx)%2 != 0 {
		ctx = append(ctx, nil, errorKey, "Normalized odd number of arguments by adding nil")
	}
	return ctx
}

func ctxMapToList(ctxMap map[string]interface{}) []interface{} {
	ctx := make([]interface{}, 0, len(ctxMap)*2)
	for k, v := range ctxMap {
		ctx = append(ctx, k, v)
	}
	return ctx
}
