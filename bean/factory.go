package bean

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/gocrud/ioc/logging"
)

// BeanFactory 按名称获取 bean。
type BeanFactory interface {
	// GetBean 获取 bean；args 仅在本次需要创建实例时覆盖构造参数
	GetBean(name string, args ...any) (any, error)
	// GetBeanAs 获取 bean 并检查其可赋值给 typ
	GetBeanAs(name string, typ reflect.Type) (any, error)
	ContainsBean(name string) bool
	IsSingleton(name string) (bool, error)
}

// ListableBeanFactory 可以按类型枚举 bean。
type ListableBeanFactory interface {
	BeanFactory
	// BeanNames 按注册顺序返回所有定义名称
	BeanNames() []string
	// BeanNamesForType 按注册顺序返回类型可赋值给 typ 的定义名称，不创建实例
	BeanNamesForType(typ reflect.Type) []string
	// GetBeansOfType 创建（如需要）并返回所有可赋值给 typ 的 bean
	GetBeansOfType(typ reflect.Type) (map[string]any, error)
	// InitializedSingleton 只返回已完全初始化的单例，不触发创建
	InitializedSingleton(name string) (any, bool)
}

// ConfigurableBeanFactory 供 FactoryPostProcessor 与容器编排使用。
type ConfigurableBeanFactory interface {
	ListableBeanFactory
	RegisterDefinition(def *Definition) error
	Definition(name string) (*Definition, error)
	AddPostProcessor(p PostProcessor)
	PostProcessors() []PostProcessor
	DestroySingletons() error
}

// FactoryOption 配置 Factory。
type FactoryOption func(*Factory)

// WithLogger 设置日志记录器。
func WithLogger(logger logging.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithEnvironment 设置注入给 EnvironmentAware 的环境。
func WithEnvironment(env Environment) FactoryOption {
	return func(f *Factory) {
		f.env = env
	}
}

// WithInstantiationStrategy 替换实例化策略。
func WithInstantiationStrategy(s InstantiationStrategy) FactoryOption {
	return func(f *Factory) {
		f.strategy = s
	}
}

// Factory 是构造与注入引擎：实例化、提前暴露、属性注入、感知回调、
// 初始化前后处理、初始化方法，以及单例登记与销毁。
type Factory struct {
	registry   *Registry
	singletons *SingletonCache
	strategy   InstantiationStrategy
	env        Environment
	logger     logging.Logger

	mu         sync.RWMutex
	processors []PostProcessor
}

var _ ConfigurableBeanFactory = (*Factory)(nil)

// NewFactory 创建空的 bean 工厂。
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		registry:   NewRegistry(),
		singletons: NewSingletonCache(),
		strategy:   SimpleInstantiationStrategy{},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Singletons 返回单例缓存。
func (f *Factory) Singletons() *SingletonCache {
	return f.singletons
}

// Environment 返回运行环境，可能为 nil。
func (f *Factory) Environment() Environment {
	return f.env
}

// RegisterDefinition 校验并注册定义。覆盖已有定义时丢弃旧单例。
func (f *Factory) RegisterDefinition(def *Definition) error {
	if def == nil {
		return fmt.Errorf("bean: nil definition")
	}
	if err := def.Validate(); err != nil {
		return err
	}
	replaced, err := f.registry.register(def)
	if err != nil {
		return err
	}
	if replaced {
		f.logger.Debug("Overriding bean definition", logging.Field{Key: "bean", Value: def.Name})
		if err := f.singletons.Remove(def.Name); err != nil {
			f.logger.Warn("Failed to destroy overridden singleton",
				logging.Field{Key: "bean", Value: def.Name},
				logging.Field{Key: "error", Value: err})
		}
	}
	return nil
}

// Definition 返回注册的定义，FactoryPostProcessor 可以直接修改它。
func (f *Factory) Definition(name string) (*Definition, error) {
	return f.registry.Lookup(name)
}

// AddPostProcessor 追加后置处理器，按追加顺序调用。
func (f *Factory) AddPostProcessor(p PostProcessor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processors = append(f.processors, p)
}

// PostProcessors 返回后置处理器的副本。
func (f *Factory) PostProcessors() []PostProcessor {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]PostProcessor, len(f.processors))
	copy(out, f.processors)
	return out
}

// GetBean 获取 bean，必要时创建。
func (f *Factory) GetBean(name string, args ...any) (any, error) {
	if len(args) == 0 {
		if inst, ok := f.singletons.Get(name); ok {
			return inst, nil
		}
	}
	run := newCreation()
	defer run.finish()
	return f.doGetBean(run, name, args)
}

// GetBeanAs 获取 bean 并检查类型。
func (f *Factory) GetBeanAs(name string, typ reflect.Type) (any, error) {
	return checkType(name, typ)(f.GetBean(name))
}

func checkType(name string, typ reflect.Type) func(any, error) (any, error) {
	return func(inst any, err error) (any, error) {
		if err != nil {
			return nil, err
		}
		if actual := reflect.TypeOf(inst); !actual.AssignableTo(typ) {
			return nil, &TypeMismatchError{Bean: name, Required: typ, Actual: actual}
		}
		return inst, nil
	}
}

// ContainsBean 报告是否存在定义。
func (f *Factory) ContainsBean(name string) bool {
	return f.registry.Contains(name)
}

// IsSingleton 报告定义是否为单例作用域。
func (f *Factory) IsSingleton(name string) (bool, error) {
	def, err := f.registry.Lookup(name)
	if err != nil {
		return false, err
	}
	return def.IsSingleton(), nil
}

// BeanNames 按注册顺序返回所有定义名称。
func (f *Factory) BeanNames() []string {
	return f.registry.Names()
}

// BeanNamesForType 已初始化的单例按实际类型匹配（可能是代理），其余按推断类型匹配。
func (f *Factory) BeanNamesForType(typ reflect.Type) []string {
	var names []string
	for _, name := range f.registry.Names() {
		if inst, ok := f.singletons.Get(name); ok {
			if reflect.TypeOf(inst).AssignableTo(typ) {
				names = append(names, name)
			}
			continue
		}
		def, err := f.registry.Lookup(name)
		if err != nil {
			continue
		}
		if t := f.predictType(def, 0); t != nil && t.AssignableTo(typ) {
			names = append(names, name)
		}
	}
	return names
}

// GetBeansOfType 包括 prototype，每次调用都会创建新的 prototype 实例。
func (f *Factory) GetBeansOfType(typ reflect.Type) (map[string]any, error) {
	return f.beansOfType(typ, f.GetBean)
}

func (f *Factory) beansOfType(typ reflect.Type, get func(string, ...any) (any, error)) (map[string]any, error) {
	result := make(map[string]any)
	for _, name := range f.BeanNamesForType(typ) {
		inst, err := get(name)
		if err != nil {
			return nil, err
		}
		// 推断类型匹配但实际被替换为不兼容的实例（例如代理）时跳过
		if reflect.TypeOf(inst).AssignableTo(typ) {
			result[name] = inst
		}
	}
	return result, nil
}

// InitializedSingleton 只读取缓存，不创建。
func (f *Factory) InitializedSingleton(name string) (any, bool) {
	return f.singletons.Get(name)
}

// DestroySingletons 销毁所有单例。
func (f *Factory) DestroySingletons() error {
	f.logger.Debug("Destroying singletons", logging.Field{Key: "count", Value: len(f.singletons.Names())})
	return f.singletons.DestroyAll()
}

// predictType 工厂 bean 方法的返回类型需要查工厂 bean 的定义
func (f *Factory) predictType(def *Definition, depth int) reflect.Type {
	if t := def.PredictedType(); t != nil {
		return t
	}
	if def.FactoryBean == "" || depth > 8 {
		return nil
	}

	var fbType reflect.Type
	if inst, ok := f.singletons.Get(def.FactoryBean); ok {
		fbType = reflect.TypeOf(inst)
	} else if fbDef, err := f.registry.Lookup(def.FactoryBean); err == nil {
		fbType = f.predictType(fbDef, depth+1)
	}
	if fbType == nil {
		return nil
	}
	if m, ok := fbType.MethodByName(def.FactoryMethod); ok && m.Type.NumOut() > 0 {
		return m.Type.Out(0)
	}
	return nil
}

// creation 一次公开 GetBean 调用对应的创建过程，沿递归显式传递。
type creation struct {
	inProgress map[string]bool
	stack      []string

	// 正在等待的其他创建过程，由 SingletonCache.mu 保护
	waiting *creation

	finished atomic.Bool
}

func newCreation() *creation {
	return &creation{inProgress: make(map[string]bool)}
}

func (r *creation) finish() {
	r.finished.Store(true)
}

func (r *creation) enter(name string) {
	r.inProgress[name] = true
	r.stack = append(r.stack, name)
}

func (r *creation) leave(name string) {
	delete(r.inProgress, name)
	r.stack = r.stack[:len(r.stack)-1]
}

// waitsFor 报告沿等待链能否到达 other
func (r *creation) waitsFor(other *creation) bool {
	for w := r; w != nil; w = w.waiting {
		if w == other {
			return true
		}
	}
	return false
}

func (r *creation) circular(name string) error {
	chain := []string{}
	start := 0
	for i, n := range r.stack {
		if n == name {
			start = i
			break
		}
	}
	chain = append(chain, r.stack[start:]...)
	chain = append(chain, name)
	return &CircularConstructorDependencyError{Bean: name, Chain: chain}
}

func (f *Factory) doGetBean(run *creation, name string, args []any) (any, error) {
	def, err := f.registry.Lookup(name)
	if err != nil {
		return nil, err
	}

	if def.Scope == ScopePrototype {
		if run.inProgress[name] {
			return nil, run.circular(name)
		}
		inst, _, err := f.createBean(run, name, def, args)
		return inst, err
	}

	for {
		inst, result, err := f.singletons.acquire(name, run)
		if err != nil {
			return nil, err
		}
		switch result {
		case acquireReady:
			return inst, nil
		case acquireEarly:
			f.logger.Debug("Returning early reference to singleton in creation",
				logging.Field{Key: "bean", Value: name})
			return inst, nil
		}

		inst, raw, err := f.createBean(run, name, def, args)
		if errors.Is(err, errTakenOver) {
			// 等待期间由另一个创建过程接手，丢弃本次实例后重新获取
			f.logger.Debug("Singleton was built by another creation, retrying",
				logging.Field{Key: "bean", Value: name})
			continue
		}
		if err != nil {
			f.singletons.release(name, run)
			return nil, err
		}
		if err := f.singletons.Finalize(name, inst, disposer(def, raw)); err != nil {
			f.singletons.release(name, run)
			return nil, err
		}
		return inst, nil
	}
}

// createBean 返回最终实例（可能被后置处理器替换）与原始实例
func (f *Factory) createBean(run *creation, name string, def *Definition, args []any) (any, any, error) {
	f.logger.Debug("Creating bean",
		logging.Field{Key: "bean", Value: name},
		logging.Field{Key: "scope", Value: def.Scope.String()})

	run.enter(name)
	defer run.leave(name)

	for _, dep := range def.DependsOn {
		if _, err := f.doGetBean(run, dep, nil); err != nil {
			return nil, nil, err
		}
	}

	raw, err := f.instantiate(run, name, def, args)
	if err != nil {
		return nil, nil, err
	}

	if def.Scope == ScopeSingleton {
		if !f.singletons.ownedBy(name, run) {
			return nil, nil, errTakenOver
		}
		if err := f.singletons.ExposeEarly(name, raw); err != nil {
			return nil, nil, err
		}
	}

	if err := f.populate(run, name, def, raw); err != nil {
		return nil, nil, err
	}

	f.invokeAware(run, name, raw)

	inst, err := f.initialize(name, def, raw)
	if err != nil {
		return nil, nil, err
	}
	return inst, raw, nil
}

func (f *Factory) initialize(name string, def *Definition, raw any) (any, error) {
	processors := f.PostProcessors()
	current := raw

	for _, p := range processors {
		next, err := p.PostProcessBeforeInitialization(current, name)
		if err != nil {
			return nil, &InitializationError{Bean: name, Phase: "before-initialization", Err: err}
		}
		if next != nil {
			current = next
		}
	}

	initializing, ok := current.(InitializingBean)
	if ok {
		if err := initializing.AfterPropertiesSet(); err != nil {
			return nil, &InitializationError{Bean: name, Phase: "initialization", Err: err}
		}
	}
	if def.InitMethod != "" && !(ok && def.InitMethod == "AfterPropertiesSet") {
		if err := callMethod(current, def.InitMethod); err != nil {
			return nil, &InitializationError{Bean: name, Phase: "init method " + def.InitMethod, Err: err}
		}
	}

	for _, p := range processors {
		next, err := p.PostProcessAfterInitialization(current, name)
		if err != nil {
			return nil, &InitializationError{Bean: name, Phase: "after-initialization", Err: err}
		}
		if next != nil {
			current = next
		}
	}
	return current, nil
}

// disposer 销毁回调作用在原始实例上；无销毁逻辑时返回 nil
func disposer(def *Definition, raw any) func() error {
	disposable, ok := raw.(DisposableBean)
	method := def.DestroyMethod
	if ok && method == "Destroy" {
		method = ""
	}
	if !ok && method == "" {
		return nil
	}
	return func() error {
		if ok {
			if err := disposable.Destroy(); err != nil {
				return err
			}
		}
		if method != "" {
			return callMethod(raw, method)
		}
		return nil
	}
}
