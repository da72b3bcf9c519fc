// Package log provides a context aware zap logger.
//
// The process wide logger starts as a human readable development logger.
// Structured switches it to JSON output for batch environments.
package log

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey struct{}

var (
	mu     sync.RWMutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger = mustBuild(false)
)

func mustBuild(structured bool) *zap.Logger {
	var cfg zap.Config
	if structured {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.DisableStacktrace = true
	}
	cfg.Level = level
	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return l
}

// Structured switches the process logger to JSON encoding.
func Structured() {
	l := mustBuild(true)
	mu.Lock()
	logger = l
	mu.Unlock()
}

// SetLevel changes the minimum enabled level of every logger.
func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

// Replace installs l as the process logger. Used by tests to capture output.
func Replace(l *zap.Logger) func() {
	mu.Lock()
	prev := logger
	logger = l
	mu.Unlock()
	return func() {
		mu.Lock()
		logger = prev
		mu.Unlock()
	}
}

// With returns a context whose logger carries the extra fields.
func With(ctx context.Context, fields ...zap.Field) context.Context {
	return context.WithValue(ctx, ctxKey{}, append(ctxFields(ctx), fields...))
}

func ctxFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	f, _ := ctx.Value(ctxKey{}).([]zap.Field)
	return append([]zap.Field(nil), f...)
}

// Logger returns the process logger enriched with the fields stored in ctx.
func Logger(ctx context.Context) *zap.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if f := ctxFields(ctx); len(f) > 0 {
		return l.With(f...)
	}
	return l
}
