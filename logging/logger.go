package logging

import (
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel 日志级别
type LogLevel int

const (
	LogLevelTrace LogLevel = iota
	LogLevelDebug
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelFatal
)

// String 返回日志级别的字符串表示
func (l LogLevel) String() string {
	switch l {
	case LogLevelTrace:
		return "TRACE"
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel 解析配置中的日志级别（大小写不敏感）
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LogLevelTrace, nil
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	case "fatal":
		return LogLevelFatal, nil
	default:
		return LogLevelInfo, fmt.Errorf("logging: unknown level %q", s)
	}
}

// zapLevel zap 没有 trace 级别，trace 与 debug 共用 DebugLevel
func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LogLevelTrace, LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelInfo:
		return zapcore.InfoLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.FatalLevel
	}
}

// Field 日志字段
type Field struct {
	Key   string
	Value any
}

// Logger 日志接口
type Logger interface {
	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)
	Log(level LogLevel, msg string, fields ...Field)
	WithFields(fields ...Field) Logger
	WithCategory(category string) Logger
}

// LoggerFactory 日志工厂接口
type LoggerFactory interface {
	CreateLogger(category string) Logger
	SetMinimumLevel(level LogLevel)
	Sync() error
}

// loggerFactory 基于 zap 的日志工厂
type loggerFactory struct {
	base         *zap.Logger
	minimumLevel *atomic.Int32
}

func (f *loggerFactory) CreateLogger(category string) Logger {
	return &zapLogger{
		base:         f.base,
		minimumLevel: f.minimumLevel,
		category:     category,
	}
}

func (f *loggerFactory) SetMinimumLevel(level LogLevel) {
	f.minimumLevel.Store(int32(level))
}

func (f *loggerFactory) Sync() error {
	return f.base.Sync()
}

// zapLogger Logger 的 zap 实现
// 级别过滤在这里完成，这样 trace 和 debug 可以分开控制
type zapLogger struct {
	base         *zap.Logger
	minimumLevel *atomic.Int32
	category     string
	fields       []Field
}

// NewZapLogger 用已有的 *zap.Logger 创建 Logger
func NewZapLogger(base *zap.Logger, level LogLevel) Logger {
	minLevel := &atomic.Int32{}
	minLevel.Store(int32(level))
	return &zapLogger{base: base, minimumLevel: minLevel}
}

func (l *zapLogger) Trace(msg string, fields ...Field) {
	l.Log(LogLevelTrace, msg, fields...)
}

func (l *zapLogger) Debug(msg string, fields ...Field) {
	l.Log(LogLevelDebug, msg, fields...)
}

func (l *zapLogger) Info(msg string, fields ...Field) {
	l.Log(LogLevelInfo, msg, fields...)
}

func (l *zapLogger) Warn(msg string, fields ...Field) {
	l.Log(LogLevelWarn, msg, fields...)
}

func (l *zapLogger) Error(msg string, fields ...Field) {
	l.Log(LogLevelError, msg, fields...)
}

func (l *zapLogger) Fatal(msg string, fields ...Field) {
	l.Log(LogLevelFatal, msg, fields...)
}

func (l *zapLogger) Log(level LogLevel, msg string, fields ...Field) {
	if level < LogLevel(l.minimumLevel.Load()) {
		return
	}

	zfs := make([]zap.Field, 0, len(l.fields)+len(fields)+1)
	if l.category != "" {
		zfs = append(zfs, zap.String("category", l.category))
	}
	if level == LogLevelTrace {
		zfs = append(zfs, zap.Bool("trace", true))
	}
	for _, f := range l.fields {
		zfs = append(zfs, toZapField(f))
	}
	for _, f := range fields {
		zfs = append(zfs, toZapField(f))
	}

	if ce := l.base.Check(level.zapLevel(), msg); ce != nil {
		ce.Write(zfs...)
	}
}

func (l *zapLogger) WithFields(fields ...Field) Logger {
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &zapLogger{
		base:         l.base,
		minimumLevel: l.minimumLevel,
		category:     l.category,
		fields:       merged,
	}
}

func (l *zapLogger) WithCategory(category string) Logger {
	return &zapLogger{
		base:         l.base,
		minimumLevel: l.minimumLevel,
		category:     category,
		fields:       l.fields,
	}
}

func toZapField(f Field) zap.Field {
	if err, ok := f.Value.(error); ok {
		return zap.NamedError(f.Key, err)
	}
	return zap.Any(f.Key, f.Value)
}
