package core

import (
	"reflect"
	"sync"

	"github.com/gocrud/ioc/aop"
	"github.com/gocrud/ioc/bean"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/logging"
)

// Option 定义了修改 Runtime 状态的函数签名
// 这是框架唯一的扩展点
type Option func(rt *Runtime) error

// Runtime 构建期的状态容器，Option 通过它向容器登记定义与处理器。
type Runtime struct {
	// Features 存放构建时特性 (web.Host 等)
	Features FeatureCollection

	// Context 正在配置的容器
	Context *ApplicationContext

	// Lifecycle 托管服务之外的启动/停止钩子
	Lifecycle *LifecycleEvents

	Configuration config.Configuration
	Logger        logging.Logger

	once       sync.Once
	shutdownCh chan struct{}
}

// NewRuntime 创建运行时
func NewRuntime(ctx *ApplicationContext, cfg config.Configuration) *Runtime {
	if cfg == nil {
		cfg = ctx.Environment().Configuration()
	}
	return &Runtime{
		Context:       ctx,
		Lifecycle:     NewLifecycle(),
		Configuration: cfg,
		Logger:        ctx.Logger(),
		shutdownCh:    make(chan struct{}),
	}
}

// Shutdown 请求应用退出，可以重复调用
func (rt *Runtime) Shutdown() {
	rt.once.Do(func() { close(rt.shutdownCh) })
}

// Done 返回一个通道，当应用需要退出时该通道会关闭
func (rt *Runtime) Done() <-chan struct{} {
	return rt.shutdownCh
}

// Define 登记 bean 定义
func (rt *Runtime) Define(defs ...*bean.Definition) {
	rt.Context.Register(defs...)
}

// AddPostProcessor 登记编程式后置处理器
func (rt *Runtime) AddPostProcessor(p ...bean.PostProcessor) {
	rt.Context.AddPostProcessor(p...)
}

// AddFactoryPostProcessor 登记编程式工厂后置处理器
func (rt *Runtime) AddFactoryPostProcessor(p ...bean.FactoryPostProcessor) {
	rt.Context.AddFactoryPostProcessor(p...)
}

// AddAdvisor 登记静态通知
func (rt *Runtime) AddAdvisor(advisors ...*aop.Advisor) {
	rt.Context.AutoProxy().AddAdvisor(advisors...)
}

// Apply 应用多个 Option
func (rt *Runtime) Apply(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(rt); err != nil {
			return err
		}
	}
	return nil
}

// FeatureCollection 是一个类型安全的特性集合
type FeatureCollection struct {
	features sync.Map
}

// Set 注册一个特性，以其动态类型为键
func (fc *FeatureCollection) Set(feature any) {
	fc.features.Store(reflect.TypeOf(feature), feature)
}

// Get 获取一个特性
func (fc *FeatureCollection) Get(typ reflect.Type) (any, bool) {
	return fc.features.Load(typ)
}

// GetFeature 泛型辅助函数，从 Runtime 获取特性
func GetFeature[T any](rt *Runtime) T {
	var zero T
	if val, ok := rt.Features.Get(bean.TypeOf[T]()); ok {
		return val.(T)
	}
	return zero
}
