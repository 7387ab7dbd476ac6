package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gocrud/ioc/bean"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/logging"
)

// Application 应用程序接口
type Application interface {
	Run() error
	RunAsync(ctx context.Context) error
	Stop(ctx context.Context) error
	Context() *ApplicationContext
	Configuration() config.Configuration
	Logger() logging.Logger
	Environment() Environment
}

// ApplicationBuilder 应用程序构建器
type ApplicationBuilder struct {
	environment     string
	configBuilder   *config.ConfigurationBuilder
	loggingBuilder  *logging.LoggingBuilder
	options         []Option
	shutdownTimeout time.Duration
	placeholders    bool
	mu              sync.RWMutex
}

// NewApplicationBuilder 创建应用程序构建器
func NewApplicationBuilder() *ApplicationBuilder {
	return &ApplicationBuilder{
		configBuilder:  config.NewConfigurationBuilder(),
		loggingBuilder: logging.NewLoggingBuilder(),
		placeholders:   true,
	}
}

// UseEnvironment 设置环境，优先于配置项 ioc.environment
func (b *ApplicationBuilder) UseEnvironment(env string) *ApplicationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.environment = env
	return b
}

// ConfigureConfiguration 配置配置系统
func (b *ApplicationBuilder) ConfigureConfiguration(configure func(*config.ConfigurationBuilder)) *ApplicationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	if configure != nil {
		configure(b.configBuilder)
	}
	return b
}

// ConfigureLogging 配置日志系统
func (b *ApplicationBuilder) ConfigureLogging(configure func(*logging.LoggingBuilder)) *ApplicationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	if configure != nil {
		configure(b.loggingBuilder)
	}
	return b
}

// Configure 添加 Option（支持链式调用和可变参数）
func (b *ApplicationBuilder) Configure(opts ...Option) *ApplicationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.options = append(b.options, opts...)
	return b
}

// AddDefinitions 直接登记 bean 定义
func (b *ApplicationBuilder) AddDefinitions(defs ...*bean.Definition) *ApplicationBuilder {
	return b.Configure(func(rt *Runtime) error {
		rt.Define(defs...)
		return nil
	})
}

// AddSource 添加定义来源（例如 YAML 文件）
func (b *ApplicationBuilder) AddSource(sources ...DefinitionSource) *ApplicationBuilder {
	return b.Configure(func(rt *Runtime) error {
		rt.Context.AddSource(sources...)
		return nil
	})
}

// AddExtension 添加应用程序扩展
func (b *ApplicationBuilder) AddExtension(ext Extension) *ApplicationBuilder {
	validateExtension(ext)
	return b.Configure(extensionOption(ext))
}

// AddTask 添加一个简单的后台任务
func (b *ApplicationBuilder) AddTask(name string, task func(ctx context.Context) error) *ApplicationBuilder {
	return b.Configure(WithWorker(name, task))
}

// DisablePlaceholders 不解析定义中的 ${key:default}
func (b *ApplicationBuilder) DisablePlaceholders() *ApplicationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.placeholders = false
	return b
}

// UseShutdownTimeout 设置关闭超时，优先于配置项 ioc.shutdown_timeout
func (b *ApplicationBuilder) UseShutdownTimeout(timeout time.Duration) *ApplicationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shutdownTimeout = timeout
	return b
}

// Build 构建应用程序，容器在 Run 时刷新
func (b *ApplicationBuilder) Build() (Application, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cfg, err := b.configBuilder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build configuration: %w", err)
	}

	options, err := LoadContextOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s options: %w", ContextSection, err)
	}
	if b.environment != "" {
		options.Environment = b.environment
	}
	if b.shutdownTimeout > 0 {
		options.ShutdownTimeout = b.shutdownTimeout
	}
	if options.LogLevel != "" {
		level, err := logging.ParseLevel(options.LogLevel)
		if err != nil {
			return nil, err
		}
		b.loggingBuilder.SetMinimumLevel(level)
	}

	loggerFactory := b.loggingBuilder.Build()
	logger := loggerFactory.CreateLogger("Application")

	logger.Info("Building application",
		logging.Field{Key: "environment", Value: options.Environment})

	env := NewEnvironment(options.Environment, cfg)
	appCtx := NewApplicationContext(env, logger, options)
	if b.placeholders {
		appCtx.AddFactoryPostProcessor(NewPlaceholderConfigurer(env, logger))
	}

	rt := NewRuntime(appCtx, cfg)
	if err := rt.Apply(b.options...); err != nil {
		return nil, err
	}

	return &application{
		runtime:       rt,
		ctx:           appCtx,
		configuration: cfg,
		loggers:       loggerFactory,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}, nil
}

// application 应用程序实现
type application struct {
	runtime       *Runtime
	ctx           *ApplicationContext
	configuration config.Configuration
	loggers       logging.LoggerFactory
	logger        logging.Logger
	stopOnce      sync.Once
	stopCh        chan struct{}
	running       bool
	mu            sync.Mutex
}

// Run 运行应用程序（阻塞）
func (a *application) Run() error {
	return a.RunAsync(context.Background())
}

// RunAsync 刷新容器、启动托管服务，阻塞直到收到信号、Stop、ctx 取消或服务失败
func (a *application) RunAsync(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return errors.New("application is already running")
	}
	a.running = true
	a.mu.Unlock()

	defer func() {
		_ = a.loggers.Sync()
	}()

	a.logger.Info("Starting application",
		logging.Field{Key: "environment", Value: a.ctx.Environment().Name()},
		logging.Field{Key: "context", Value: a.ctx.ID()})

	if err := a.ctx.Refresh(); err != nil {
		return err
	}
	if err := a.runtime.Lifecycle.Start(ctx); err != nil {
		_ = a.ctx.Close()
		return err
	}

	errCh, err := a.ctx.Start(ctx)
	if err != nil {
		_ = a.ctx.Close()
		return err
	}

	a.logger.Info("Application started successfully")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		a.logger.Info("Received shutdown signal",
			logging.Field{Key: "signal", Value: sig.String()})
	case <-a.stopCh:
		a.logger.Info("Application stop requested")
	case <-a.runtime.Done():
		a.logger.Info("Runtime shutdown requested")
	case <-ctx.Done():
		a.logger.Info("Context cancelled")
	case err := <-errCh:
		a.logger.Error("Hosted service failed, stopping application",
			logging.Field{Key: "error", Value: err})
		runErr = err
	}

	a.logger.Info("Shutting down application")

	stopCtx, cancel := context.WithTimeout(context.Background(), a.ctx.options.ShutdownTimeout)
	defer cancel()
	if err := a.runtime.Lifecycle.Stop(stopCtx); err != nil {
		a.logger.Error("Lifecycle stop hooks failed", logging.Field{Key: "error", Value: err})
	}
	if err := a.ctx.Close(); err != nil {
		a.logger.Error("Failed to close application context", logging.Field{Key: "error", Value: err})
	}

	a.logger.Info("Application stopped")

	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
	return runErr
}

// Stop 请求停止应用程序
func (a *application) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() { close(a.stopCh) })
	return nil
}

func (a *application) Context() *ApplicationContext {
	return a.ctx
}

func (a *application) Configuration() config.Configuration {
	return a.configuration
}

func (a *application) Logger() logging.Logger {
	return a.logger
}

func (a *application) Environment() Environment {
	return a.ctx.Environment()
}
