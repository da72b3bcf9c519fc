package log

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	defer Replace(zap.New(core))()

	ctx := With(context.Background(), zap.String("run", "abc"))
	child := With(ctx, zap.Int("points", 64))
	Logger(child).Info("sampled")
	Logger(ctx).Info("started")

	entries := logs.All()
	assert.Len(t, entries, 2)
	assert.Equal(t, map[string]interface{}{"run": "abc", "points": int64(64)}, entries[0].ContextMap())
	assert.Equal(t, map[string]interface{}{"run": "abc"}, entries[1].ContextMap())
}

func TestLoggerWithoutFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	defer Replace(zap.New(core))()

	Logger(context.Background()).Debug("hidden")
	Logger(context.Background()).Warn("shown")
	assert.Equal(t, 1, logs.Len())
}
