package logger

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Re-export zapcore types for use in other packages
type (
	Field = zapcore.Field
	Level = zapcore.Level
)

// Re-export zapcore constants
const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
	FatalLevel = zapcore.FatalLevel
)

// Logger interface defines the logging methods
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)
	With(fields ...Field) Logger
	Sync() error
}

// loggerImpl implements the Logger interface
type loggerImpl struct {
	zapLogger *zap.Logger
}

// Global logger instance
var globalLogger Logger

// Initialize the global logger
func Init(logger *zap.Logger) {
	globalLogger = &loggerImpl{zapLogger: logger}
}

// InitDefault initializes the production JSON logger
func InitDefault() {
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	zapLogger, err := config.Build(zap.AddCaller(), zap.AddCallerSkip(2))
	if err != nil {
		// Fallback to basic logger
		zapLogger = zap.NewExample()
	}

	Init(zapLogger)
	zap.ReplaceGlobals(zapLogger)
}

// InitConsole initializes a human-readable logger for interactive runs
func InitConsole(level Level) {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		level,
	)

	zapLogger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2))
	Init(zapLogger)
	zap.ReplaceGlobals(zapLogger)
}

// Get the global logger
func L() Logger {
	if globalLogger == nil {
		// Initialize with default logger if not already initialized
		InitDefault()
	}
	return globalLogger
}

// Context key for trace ID
type contextKey string

const traceIDKey contextKey = "trace_id"

// WithTraceID adds trace ID to context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GetTraceIDFromContext extracts trace ID from context
func GetTraceIDFromContext(ctx context.Context) (string, bool) {
	traceID, ok := ctx.Value(traceIDKey).(string)
	return traceID, ok
}

// Package-level convenience functions

func Debug(ctx context.Context, msg string, fields ...Field) {
	if traceID, ok := GetTraceIDFromContext(ctx); ok {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	L().Debug(msg, fields...)
}

func Info(ctx context.Context, msg string, fields ...Field) {
	if traceID, ok := GetTraceIDFromContext(ctx); ok {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	L().Info(msg, fields...)
}

func Warn(ctx context.Context, msg string, fields ...Field) {
	if traceID, ok := GetTraceIDFromContext(ctx); ok {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	L().Warn(msg, fields...)
}

func Error(ctx context.Context, msg string, fields ...Field) {
	if traceID, ok := GetTraceIDFromContext(ctx); ok {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	L().Error(msg, fields...)
}

func Fatal(ctx context.Context, msg string, fields ...Field) {
	if traceID, ok := GetTraceIDFromContext(ctx); ok {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	L().Fatal(msg, fields...)
}

func With(fields ...Field) Logger {
	return L().With(fields...)
}

func Sync() error {
	return L().Sync()
}

// Field creation functions
func String(key string, val string) Field {
	return zap.String(key, val)
}

func Int(key string, val int) Field {
	return zap.Int(key, val)
}

func Int64(key string, val int64) Field {
	return zap.Int64(key, val)
}

func Bool(key string, val bool) Field {
	return zap.Bool(key, val)
}

func Any(key string, val interface{}) Field {
	return zap.Any(key, val)
}

func ErrorField(err error) Field {
	return zap.Error(err)
}

func Duration(key string, val time.Duration) Field {
	return zap.Duration(key, val)
}

// Implementation of Logger interface methods

func (l *loggerImpl) Debug(msg string, fields ...Field) {
	l.zapLogger.Debug(msg, fields...)
}

func (l *loggerImpl) Info(msg string, fields ...Field) {
	l.zapLogger.Info(msg, fields...)
}

func (l *loggerImpl) Warn(msg string, fields ...Field) {
	l.zapLogger.Warn(msg, fields...)
}

func (l *loggerImpl) Error(msg string, fields ...Field) {
	l.zapLogger.Error(msg, fields...)
}

func (l *loggerImpl) Fatal(msg string, fields ...Field) {
	l.zapLogger.Fatal(msg, fields...)
}

func (l *loggerImpl) With(fields ...Field) Logger {
	return &loggerImpl{zapLogger: l.zapLogger.With(fields...)}
}

func (l *loggerImpl) Sync() error {
	return l.zapLogger.Sync()
}
