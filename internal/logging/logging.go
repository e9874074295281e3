// Package logging builds the process logger and carries request and tenant
// scoped loggers through context.Context.
package logging

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Field names shared by every component.
const (
	BotIDKey     = "bot_id"
	RequestIDKey = "request_id"
)

type ctxKey struct{}

type Options struct {
	Level string // debug, info, warn or error; anything else means info
	File  string // JSON log file rotated by lumberjack, empty disables it
}

func parseLevel(s string) zapcore.Level {
	l, err := zapcore.ParseLevel(s)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// New builds a logger writing colored lines to stdout and, when o.File is
// set, JSON lines to a rotated file.
func New(o Options) *zap.Logger {
	level := zap.NewAtomicLevelAt(parseLevel(o.Level))

	console := zap.NewProductionEncoderConfig()
	console.EncodeTime = zapcore.ISO8601TimeEncoder
	console.EncodeLevel = zapcore.CapitalColorLevelEncoder
	console.CallerKey = ""
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(console), zapcore.Lock(os.Stdout), level),
	}

	if o.File != "" {
		sink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     15, // days
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), sink, level))
	}
	return zap.New(zapcore.NewTee(cores...))
}

// Init builds the process logger and installs it as zap's global logger,
// which FromContext falls back to.
func Init(o Options) *zap.Logger {
	logger := New(o)
	zap.ReplaceGlobals(logger)
	return logger
}

func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger carried by ctx, or the global logger.
func FromContext(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
			return logger
		}
	}
	return zap.L()
}

// With returns a ctx whose logger adds fields to every entry.
func With(ctx context.Context, fields ...zap.Field) context.Context {
	return WithLogger(ctx, FromContext(ctx).With(fields...))
}

// WithBot tags later log entries of ctx with the tenant bot.
func WithBot(ctx context.Context, botID int64) context.Context {
	return With(ctx, zap.Int64(BotIDKey, botID))
}
