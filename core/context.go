package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/gocrud/ioc/aop"
	"github.com/gocrud/ioc/bean"
	"github.com/gocrud/ioc/hosting"
	"github.com/gocrud/ioc/logging"
)

var (
	// ErrContextClosed 容器已关闭。
	ErrContextClosed = errors.New("core: application context is closed")
	// ErrNotRefreshed 容器尚未刷新。
	ErrNotRefreshed = errors.New("core: application context has not been refreshed")
)

// State 容器状态。
type State int

const (
	StateUninitialized State = iota
	StateRefreshing
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateRefreshing:
		return "REFRESHING"
	case StateActive:
		return "ACTIVE"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	factoryPostProcessorType = bean.TypeOf[bean.FactoryPostProcessor]()
	postProcessorType        = bean.TypeOf[bean.PostProcessor]()
	hostedServiceType        = bean.TypeOf[hosting.HostedService]()
)

// ApplicationContext 编排刷新与关闭：加载定义、运行工厂后置处理器、
// 登记后置处理器、创建切面与非延迟单例，关闭时销毁全部单例。
type ApplicationContext struct {
	id      string
	options ContextOptions
	logger  logging.Logger
	env     Environment

	mu      sync.RWMutex
	state   State
	factory *bean.Factory

	sources           []DefinitionSource
	processors        []bean.PostProcessor
	factoryProcessors []bean.FactoryPostProcessor
	autoProxy         *aop.AutoProxyCreator

	hosted    *hosting.HostedServiceManager
	runCancel context.CancelFunc
}

var _ bean.ListableBeanFactory = (*ApplicationContext)(nil)

// NewApplicationContext 创建未刷新的容器
func NewApplicationContext(env Environment, logger logging.Logger, options ContextOptions) *ApplicationContext {
	if logger == nil {
		logger = logging.NewNop()
	}
	if env == nil {
		env = NewEnvironment(options.Environment, nil)
	}
	id := uuid.NewString()
	return &ApplicationContext{
		id:      id,
		options: options,
		logger:  logger.WithCategory("ioc").WithFields(logging.Field{Key: "context", Value: id}),
		env:     env,
	}
}

// ID 返回容器的唯一标识
func (c *ApplicationContext) ID() string {
	return c.id
}

// State 返回当前状态
func (c *ApplicationContext) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Environment 返回运行环境
func (c *ApplicationContext) Environment() Environment {
	return c.env
}

// Logger 返回容器的日志记录器
func (c *ApplicationContext) Logger() logging.Logger {
	return c.logger
}

// AddSource 添加定义来源，下次刷新生效
func (c *ApplicationContext) AddSource(sources ...DefinitionSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources = append(c.sources, sources...)
}

// Register 以固定定义列表作为来源
func (c *ApplicationContext) Register(defs ...*bean.Definition) {
	c.AddSource(Definitions(defs))
}

// AddPostProcessor 添加编程式后置处理器，先于容器中发现的后置处理器
func (c *ApplicationContext) AddPostProcessor(processors ...bean.PostProcessor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processors = append(c.processors, processors...)
}

// AddFactoryPostProcessor 添加编程式工厂后置处理器，先于容器中发现的运行
func (c *ApplicationContext) AddFactoryPostProcessor(processors ...bean.FactoryPostProcessor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factoryProcessors = append(c.factoryProcessors, processors...)
}

// AutoProxy 返回自动代理创建器，首次调用时创建。
// 它在所有其他后置处理器之后登记。
func (c *ApplicationContext) AutoProxy() *aop.AutoProxyCreator {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.autoProxy == nil {
		c.autoProxy = aop.NewAutoProxyCreator(c.logger)
	}
	return c.autoProxy
}

// Refresh 用全新的工厂重建 bean 图。失败时销毁已创建的单例并回到 UNINITIALIZED。
func (c *ApplicationContext) Refresh() error {
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return ErrContextClosed
	case StateRefreshing:
		c.mu.Unlock()
		return errors.New("core: refresh already in progress")
	case StateActive:
		// 旧单例不会被销毁
		c.logger.Warn("Refreshing an active context, existing singletons are not destroyed")
	}

	factory := bean.NewFactory(
		bean.WithLogger(c.logger),
		bean.WithEnvironment(c.env),
	)
	previous := c.factory
	c.state = StateRefreshing
	c.factory = factory

	sources := append([]DefinitionSource(nil), c.sources...)
	processors := append([]bean.PostProcessor(nil), c.processors...)
	factoryProcessors := append([]bean.FactoryPostProcessor(nil), c.factoryProcessors...)
	autoProxy := c.autoProxy
	c.mu.Unlock()

	c.logger.Info("Refreshing application context")

	err := c.refresh(factory, sources, processors, factoryProcessors, autoProxy)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.logger.Error("Refresh failed, destroying created singletons", logging.Field{Key: "error", Value: err})
		if derr := factory.DestroySingletons(); derr != nil {
			c.logger.Error("Failed to destroy singletons", logging.Field{Key: "error", Value: derr})
		}
		c.factory = nil
		if previous != nil {
			c.logger.Warn("Previous singletons are discarded without destruction")
		}
		c.state = StateUninitialized
		return err
	}

	c.state = StateActive
	c.logger.Info("Application context refreshed",
		logging.Field{Key: "beans", Value: len(factory.BeanNames())},
		logging.Field{Key: "singletons", Value: len(factory.Singletons().Names())})
	return nil
}

func (c *ApplicationContext) refresh(
	factory *bean.Factory,
	sources []DefinitionSource,
	processors []bean.PostProcessor,
	factoryProcessors []bean.FactoryPostProcessor,
	autoProxy *aop.AutoProxyCreator,
) error {
	// (a) 加载定义
	for _, src := range sources {
		defs, err := src.Definitions()
		if err != nil {
			return fmt.Errorf("core: load definitions: %w", err)
		}
		for _, def := range defs {
			if err := factory.RegisterDefinition(def.Clone()); err != nil {
				return fmt.Errorf("core: register %q: %w", def.Name, err)
			}
		}
	}

	// (b) 容器感知处理器最先，其次是编程式后置处理器
	factory.AddPostProcessor(&contextAwareProcessor{ctx: c})
	for _, p := range processors {
		factory.AddPostProcessor(p)
	}

	// (c) 工厂后置处理器：编程式在前，容器中发现的在后
	for _, p := range factoryProcessors {
		if err := p.PostProcessBeanFactory(factory); err != nil {
			return fmt.Errorf("core: factory post-processor %T: %w", p, err)
		}
	}
	for _, name := range factory.BeanNamesForType(factoryPostProcessorType) {
		inst, err := factory.GetBean(name)
		if err != nil {
			return err
		}
		c.logger.Debug("Running factory post-processor", logging.Field{Key: "bean", Value: name})
		if err := inst.(bean.FactoryPostProcessor).PostProcessBeanFactory(factory); err != nil {
			return fmt.Errorf("core: factory post-processor %q: %w", name, err)
		}
	}

	// (d) 容器中发现的后置处理器，按发现顺序
	for _, name := range factory.BeanNamesForType(postProcessorType) {
		inst, err := factory.GetBean(name)
		if err != nil {
			return err
		}
		pp, ok := inst.(bean.PostProcessor)
		if !ok {
			continue
		}
		c.logger.Debug("Registering post-processor", logging.Field{Key: "bean", Value: name})
		factory.AddPostProcessor(pp)
	}
	if autoProxy != nil {
		autoProxy.SetBeanFactory(factory)
		factory.AddPostProcessor(autoProxy)
	}

	// (d′) 切面先于普通单例创建
	for _, name := range factory.BeanNamesForType(aop.AspectType()) {
		if _, err := factory.GetBean(name); err != nil {
			return err
		}
	}

	// (e) 非延迟单例
	if c.options.LazyInit {
		return nil
	}
	for _, name := range factory.BeanNames() {
		def, err := factory.Definition(name)
		if err != nil {
			return err
		}
		if !def.IsSingleton() || def.Lazy {
			continue
		}
		if _, err := factory.GetBean(name); err != nil {
			return err
		}
	}
	return nil
}

// Start 启动容器中的托管服务，返回的通道接收服务运行错误。
func (c *ApplicationContext) Start(ctx context.Context) (<-chan error, error) {
	c.mu.RLock()
	err := c.usableLocked()
	if err == nil && c.state != StateActive {
		err = ErrNotRefreshed
	}
	if err == nil && c.hosted != nil {
		err = errors.New("core: hosted services already started")
	}
	factory := c.factory
	c.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	// 托管服务可能是延迟 bean，创建时会回调容器，因此不持有锁
	manager := hosting.NewHostedServiceManager(c.logger)
	for _, name := range factory.BeanNamesForType(hostedServiceType) {
		inst, err := factory.GetBean(name)
		if err != nil {
			return nil, err
		}
		if svc, ok := inst.(hosting.HostedService); ok {
			manager.Add(name, svc)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hosted != nil {
		return nil, errors.New("core: hosted services already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.hosted = manager
	c.runCancel = cancel
	return manager.StartAll(runCtx), nil
}

// Stop 停止托管服务并等待其退出，没有启动时直接返回
func (c *ApplicationContext) Stop(ctx context.Context) error {
	c.mu.Lock()
	manager, cancel := c.hosted, c.runCancel
	c.hosted, c.runCancel = nil, nil
	c.mu.Unlock()

	if manager == nil {
		return nil
	}
	cancel()
	err := manager.StopAll(ctx)

	done := make(chan struct{})
	go func() {
		manager.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Warn("Timed out waiting for hosted services to exit")
	}
	return err
}

// Close 停止托管服务，销毁所有单例，进入 CLOSED。重复调用无效果。
func (c *ApplicationContext) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	if c.state == StateRefreshing {
		c.mu.Unlock()
		return errors.New("core: cannot close while refreshing")
	}
	c.mu.Unlock()

	c.logger.Info("Closing application context")

	timeout := c.options.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultContextOptions().ShutdownTimeout
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	stopErr := c.Stop(stopCtx)

	c.mu.Lock()
	factory := c.factory
	c.state = StateClosed
	c.mu.Unlock()

	var destroyErr error
	if factory != nil {
		destroyErr = factory.DestroySingletons()
		if destroyErr != nil {
			c.logger.Error("Errors while destroying singletons", logging.Field{Key: "error", Value: destroyErr})
		}
	}

	c.logger.Info("Application context closed")
	return multierr.Combine(stopErr, destroyErr)
}

// usableLocked 调用方持有 c.mu
func (c *ApplicationContext) usableLocked() error {
	switch c.state {
	case StateClosed:
		return ErrContextClosed
	case StateUninitialized:
		return ErrNotRefreshed
	}
	return nil
}

// beanFactory 刷新中与 ACTIVE 状态下返回当前工厂
func (c *ApplicationContext) beanFactory() (*bean.Factory, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.usableLocked(); err != nil {
		return nil, err
	}
	return c.factory, nil
}

// GetBean 获取 bean
func (c *ApplicationContext) GetBean(name string, args ...any) (any, error) {
	f, err := c.beanFactory()
	if err != nil {
		return nil, err
	}
	return f.GetBean(name, args...)
}

// GetBeanAs 获取 bean 并检查类型
func (c *ApplicationContext) GetBeanAs(name string, typ reflect.Type) (any, error) {
	f, err := c.beanFactory()
	if err != nil {
		return nil, err
	}
	return f.GetBeanAs(name, typ)
}

// GetBeansOfType 返回所有可赋值给 typ 的 bean
func (c *ApplicationContext) GetBeansOfType(typ reflect.Type) (map[string]any, error) {
	f, err := c.beanFactory()
	if err != nil {
		return nil, err
	}
	return f.GetBeansOfType(typ)
}

func (c *ApplicationContext) ContainsBean(name string) bool {
	f, err := c.beanFactory()
	return err == nil && f.ContainsBean(name)
}

func (c *ApplicationContext) IsSingleton(name string) (bool, error) {
	f, err := c.beanFactory()
	if err != nil {
		return false, err
	}
	return f.IsSingleton(name)
}

func (c *ApplicationContext) BeanNames() []string {
	f, err := c.beanFactory()
	if err != nil {
		return nil
	}
	return f.BeanNames()
}

func (c *ApplicationContext) BeanNamesForType(typ reflect.Type) []string {
	f, err := c.beanFactory()
	if err != nil {
		return nil
	}
	return f.BeanNamesForType(typ)
}

func (c *ApplicationContext) InitializedSingleton(name string) (any, bool) {
	f, err := c.beanFactory()
	if err != nil {
		return nil, false
	}
	return f.InitializedSingleton(name)
}
