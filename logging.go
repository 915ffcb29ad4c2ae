package mediate

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging surface the mediator writes through. Its methods
// mirror the field-based zap logger; hosts already on zap wrap theirs with
// NewZapLogger.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	With(fields ...zap.Field) Logger
}

type zapLogger struct {
	l *zap.Logger
}

// NewNoopLogger returns a logger that discards everything. It is the
// default.
func NewNoopLogger() Logger {
	return &zapLogger{l: zap.NewNop()}
}

// NewZapLogger wraps an existing zap logger.
func NewZapLogger(l *zap.Logger) Logger {
	return &zapLogger{l: l}
}

// NewLogger builds a zap logger. Format is "json" or "console"; level is
// any zap level name ("debug", "info", ...).
func NewLogger(format, level string) (Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("mediate: parse log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	switch format {
	case "json", "":
		cfg.Encoding = "json"
	case "console":
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("mediate: unknown log format %q", format)
	}

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{l: l}, nil
}

func (z *zapLogger) Debug(msg string, fields ...zap.Field) { z.l.Debug(msg, fields...) }
func (z *zapLogger) Info(msg string, fields ...zap.Field)  { z.l.Info(msg, fields...) }
func (z *zapLogger) Warn(msg string, fields ...zap.Field)  { z.l.Warn(msg, fields...) }
func (z *zapLogger) Error(msg string, fields ...zap.Field) { z.l.Error(msg, fields...) }

func (z *zapLogger) With(fields ...zap.Field) Logger {
	return &zapLogger{l: z.l.With(fields...)}
}

// loggingBehaviorFactory logs every dispatch with its outcome and duration.
// Successes log at debug so a production logger stays quiet on the happy
// path; failures log at error.
func loggingBehaviorFactory(l Logger) BehaviorFactory {
	return func(requestType, responseType reflect.Type) AnyBehavior {
		name := requestType.String()
		return AnyBehaviorFunc(func(ctx context.Context, req any, next Next[any]) (any, error) {
			start := time.Now()
			l.Debug("dispatching request", zap.String("request", name))

			res, err := next(ctx)
			elapsed := time.Since(start)
			if err != nil {
				l.Error("request failed",
					zap.String("request", name),
					zap.Duration("duration", elapsed),
					zap.Error(err),
				)
				return nil, err
			}

			l.Debug("request handled",
				zap.String("request", name),
				zap.Duration("duration", elapsed),
			)
			return res, nil
		})
	}
}
