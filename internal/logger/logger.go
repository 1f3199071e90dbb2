// Package logger provides the structured logging interface used across webarchive.
package logger

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is implemented by the zap logger and by NoOpLogger.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	// With returns a child logger that adds fields to every entry.
	With(fields ...Field) Logger
	// Sync flushes buffered entries.
	Sync() error
}

// Field is a key-value pair attached to a log entry.
type Field = zap.Field

type zapLogger struct {
	z *zap.Logger
}

// New builds a logger from cfg. Production output is JSON; development
// output is console text without sampling.
func New(cfg Config) (Logger, error) {
	cfg.SetDefaults()

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = cfg.OutputPaths
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	z, err := zc.Build(zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return &zapLogger{z: z}, nil
}

func (l *zapLogger) Debug(msg string, fields ...Field) { l.z.Debug(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }
func (l *zapLogger) With(fields ...Field) Logger       { return &zapLogger{z: l.z.With(fields...)} }
func (l *zapLogger) Sync() error                       { return l.z.Sync() }

// Generic fields.
var (
	String   = zap.String
	Int      = zap.Int
	Int64    = zap.Int64
	Bool     = zap.Bool
	Duration = zap.Duration
	Time     = zap.Time
	Any      = zap.Any
	Strings  = zap.Strings
)

// Error adds err under "error".
func Error(err error) Field { return zap.Error(err) }

// URL adds the "url" of a captured or replayed request.
func URL(val string) Field { return zap.String("url", val) }

// URI adds a storage "uri".
func URI(val string) Field { return zap.String("uri", val) }

// Status adds an HTTP "status" code.
func Status(code int) Field { return zap.Int("status", code) }

// Locator adds a record "locator" (file@offset+length).
func Locator(loc fmt.Stringer) Field { return zap.Stringer("locator", loc) }

// Elapsed adds "duration" measured from start.
func Elapsed(start time.Time) Field { return zap.Duration("duration", time.Since(start)) }
