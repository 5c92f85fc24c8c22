// Package logger provides a simple, clean logging interface.
package logger

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Constants for logging operations.
const (
	callerSkipFrames = 1 // Skip the zapLogger method so callers are reported

	defaultMaxSizeMB  = 100
	defaultMaxBackups = 5
	defaultMaxAgeDays = 28
)

// Logger defines the logging interface.
type Logger interface {
	// Context-aware variants
	Info(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	Debug(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Fatal(ctx context.Context, msg string, fields ...Field)

	Named(name string) Logger
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// Field constructors.
func String(key, val string) Field                 { return Field{Key: key, Value: val} }
func Int(key string, val int) Field                { return Field{Key: key, Value: val} }
func Float64(key string, val float64) Field        { return Field{Key: key, Value: val} }
func Duration(key string, val time.Duration) Field { return Field{Key: key, Value: val} }
func Any(key string, val interface{}) Field        { return Field{Key: key, Value: val} }
func Error(err error) Field                        { return Field{Key: "error", Value: err} }

// requestIDKey carries the request id placed on the context by the HTTP layer.
type requestIDKey struct{}

// WithRequestID returns a context that makes every log line carry request_id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID extracts the request id from ctx, if any.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// zapLogger implements Logger using zap.
type zapLogger struct {
	z *zap.Logger
}

func (l *zapLogger) Named(name string) Logger {
	return &zapLogger{z: l.z.Named(name)}
}

func (l *zapLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.z.Info(msg, convertFields(ctx, fields)...)
}

func (l *zapLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.z.Error(msg, convertFields(ctx, fields)...)
}

func (l *zapLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.z.Debug(msg, convertFields(ctx, fields)...)
}

func (l *zapLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.z.Warn(msg, convertFields(ctx, fields)...)
}

func (l *zapLogger) Fatal(ctx context.Context, msg string, fields ...Field) {
	l.z.Fatal(msg, convertFields(ctx, fields)...)
}

// convertFields converts our Field type to zap fields.
func convertFields(ctx context.Context, fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+1)
	if id := RequestID(ctx); id != "" {
		out = append(out, zap.String("request_id", id))
	}
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			out = append(out, zap.NamedError(f.Key, err))
			continue
		}
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

// Options controls how Init builds the global logger.
type Options struct {
	// Format is "json" or "console".
	Format string
	// File, when set, receives log output through a rotating writer in
	// addition to stdout.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Option mutates Options.
type Option func(*Options)

// WithFormat selects the encoder: json or console.
func WithFormat(format string) Option {
	return func(o *Options) {
		if format != "" {
			o.Format = format
		}
	}
}

// WithFile enables the rotating file sink.
func WithFile(path string, maxSizeMB, maxBackups, maxAgeDays int) Option {
	return func(o *Options) {
		o.File = path
		if maxSizeMB > 0 {
			o.MaxSizeMB = maxSizeMB
		}
		if maxBackups > 0 {
			o.MaxBackups = maxBackups
		}
		if maxAgeDays > 0 {
			o.MaxAgeDays = maxAgeDays
		}
	}
}

var (
	mu       sync.RWMutex
	global   Logger
	base     *zap.Logger
	levelVar = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	rotator  *lumberjack.Logger
)

// Init initializes the global logger.
func Init(opts ...Option) error {
	o := Options{
		Format:     "console",
		MaxSizeMB:  defaultMaxSizeMB,
		MaxBackups: defaultMaxBackups,
		MaxAgeDays: defaultMaxAgeDays,
	}
	for _, opt := range opts {
		opt(&o)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch strings.ToLower(o.Format) {
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	case "console", "text":
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return fmt.Errorf("unknown log format: %s", o.Format)
	}

	// Default to info; can be changed with SetLevel*/SetLevelString.
	levelVar.SetLevel(zapcore.InfoLevel)

	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stdout)}
	var rot *lumberjack.Logger
	if o.File != "" {
		rot = &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    o.MaxSizeMB,
			MaxBackups: o.MaxBackups,
			MaxAge:     o.MaxAgeDays,
		}
		sinks = append(sinks, zapcore.AddSync(rot))
	}

	core := zapcore.NewCore(enc, zapcore.NewMultiWriteSyncer(sinks...), levelVar)
	z := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(callerSkipFrames))

	mu.Lock()
	defer mu.Unlock()
	if rotator != nil {
		_ = rotator.Close()
	}
	rotator = rot
	base = z
	global = &zapLogger{z: z}
	return nil
}

// Get returns the global logger.
func Get() Logger {
	mu.RLock()
	defer mu.RUnlock()
	if global == nil {
		// Don't auto-initialize with production settings
		// The logger should be explicitly initialized by the application
		panic("logger not initialized. Call logger.Init() first")
	}
	return global
}

// Named creates a named logger.
func Named(name string) Logger {
	return Get().Named(name)
}

// Nop returns a logger that discards everything. Components use it when no
// logger was injected.
func Nop() Logger {
	return &zapLogger{z: zap.NewNop()}
}

// Sync flushes buffered log entries.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if base == nil {
		return nil
	}
	// stdout cannot be fsync'ed on most platforms; ignore that particular failure.
	if err := base.Sync(); err != nil && !strings.Contains(err.Error(), "invalid argument") &&
		!strings.Contains(err.Error(), "inappropriate ioctl") {
		return err
	}
	return nil
}

// SetLevel updates the current logging level for the global logger.
func SetLevel(level zapcore.Level) { levelVar.SetLevel(level) }

// Level reports the current logging level.
func Level() zapcore.Level { return levelVar.Level() }

// SetLevelString parses and sets the logging level.
// Accepts: debug, info, warn/warning, error (case-insensitive).
func SetLevelString(level string) error {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		SetLevel(zapcore.DebugLevel)
	case "", "info":
		SetLevel(zapcore.InfoLevel)
	case "warn", "warning":
		SetLevel(zapcore.WarnLevel)
	case "error":
		SetLevel(zapcore.ErrorLevel)
	default:
		return fmt.Errorf("unknown log level: %s", level)
	}
	return nil
}
