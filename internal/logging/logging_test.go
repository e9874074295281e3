package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContext(t *testing.T) {
	custom := zap.NewNop()
	ctx := WithLogger(context.Background(), custom)
	assert.Same(t, custom, FromContext(ctx))
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	undo := zap.ReplaceGlobals(zap.New(core))
	defer undo()

	FromContext(context.Background()).Info("plain")
	assert.Equal(t, 1, logs.Len())
}

func TestWithBot(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := WithLogger(context.Background(), zap.New(core))

	ctx = With(ctx, zap.String(RequestIDKey, "req-1"))
	ctx = WithBot(ctx, 7)
	FromContext(ctx).Info("update handled")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, int64(7), fields[BotIDKey])
	assert.Equal(t, "req-1", fields[RequestIDKey])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("nonsense"))
}

func TestNewFileSink(t *testing.T) {
	path := t.TempDir() + "/remnabot.log"
	logger := New(Options{Level: "debug", File: path})
	logger.Debug("hello", zap.Int64(BotIDKey, 1))
	_ = logger.Sync()
	assert.FileExists(t, path)
}

func TestInitInstallsGlobal(t *testing.T) {
	defer zap.ReplaceGlobals(zap.NewNop())

	logger := Init(Options{Level: "warn"})
	assert.Same(t, logger, zap.L())
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
}
