package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ConsoleLoggerOptions 控制台日志选项
type ConsoleLoggerOptions struct {
	IncludeTimestamp bool
	TimestampFormat  string
	ColorOutput      bool
	Output           io.Writer
}

// LoggingBuilder 日志构建器
type LoggingBuilder struct {
	cores        []zapcore.Core
	minimumLevel LogLevel
	errs         []error
	mu           sync.RWMutex
}

// NewLoggingBuilder 创建日志构建器
func NewLoggingBuilder() *LoggingBuilder {
	return &LoggingBuilder{
		cores:        make([]zapcore.Core, 0),
		minimumLevel: LogLevelInfo,
	}
}

// SetMinimumLevel 设置最小日志级别
func (b *LoggingBuilder) SetMinimumLevel(level LogLevel) *LoggingBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.minimumLevel = level
	return b
}

// AddCore 添加自定义 zap core
func (b *LoggingBuilder) AddCore(core zapcore.Core) *LoggingBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cores = append(b.cores, core)
	return b
}

// AddConsole 添加控制台日志
func (b *LoggingBuilder) AddConsole(options ...ConsoleLoggerOptions) *LoggingBuilder {
	opts := ConsoleLoggerOptions{
		IncludeTimestamp: true,
		TimestampFormat:  "2006-01-02 15:04:05",
		ColorOutput:      true,
		Output:           os.Stdout,
	}
	if len(options) > 0 {
		opts = options[0]
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	cfg := encoderConfig()
	if opts.IncludeTimestamp {
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout(opts.TimestampFormat)
	} else {
		cfg.TimeKey = ""
	}
	if opts.ColorOutput {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	return b.AddCore(zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(opts.Output), zapcore.DebugLevel))
}

// AddJSON 添加 JSON 格式输出
func (b *LoggingBuilder) AddJSON(w io.Writer) *LoggingBuilder {
	cfg := encoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return b.AddCore(zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.AddSync(w), zapcore.DebugLevel))
}

// AddFile 添加文件日志（JSON 格式，追加写入）
func (b *LoggingBuilder) AddFile(path string) *LoggingBuilder {
	sink, _, err := zap.Open(path)
	if err != nil {
		b.mu.Lock()
		b.errs = append(b.errs, fmt.Errorf("logging: open %s: %w", path, err))
		b.mu.Unlock()
		return b
	}
	cfg := encoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return b.AddCore(zapcore.NewCore(zapcore.NewJSONEncoder(cfg), sink, zapcore.DebugLevel))
}

// Build 构建日志工厂
func (b *LoggingBuilder) Build() LoggerFactory {
	b.mu.RLock()
	defer b.mu.RUnlock()

	minLevel := &atomic.Int32{}
	minLevel.Store(int32(b.minimumLevel))

	base := zap.New(zapcore.NewTee(b.cores...))
	factory := &loggerFactory{base: base, minimumLevel: minLevel}

	for _, err := range b.errs {
		factory.CreateLogger("logging").Warn("Output disabled", Field{Key: "error", Value: err})
	}
	return factory
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.MessageKey = "message"
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}
