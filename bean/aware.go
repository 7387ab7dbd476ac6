package bean

import "reflect"

// Environment 暴露给 bean 的运行环境。
type Environment interface {
	Name() string
	Property(key string) (string, bool)
}

// EnvironmentAware 在属性注入后接收运行环境。
type EnvironmentAware interface {
	SetEnvironment(env Environment)
}

// NameAware 在属性注入后接收自己的 bean 名称。
type NameAware interface {
	SetBeanName(name string)
}

// FactoryAware 在属性注入后接收所属的 BeanFactory。
type FactoryAware interface {
	SetBeanFactory(factory BeanFactory)
}

// InitializingBean 在注入与感知回调完成后初始化，先于 InitMethod 调用。
type InitializingBean interface {
	AfterPropertiesSet() error
}

// DisposableBean 容器关闭时销毁，先于 DestroyMethod 调用。
type DisposableBean interface {
	Destroy() error
}

// invokeAware 依次注入环境、名称、工厂
func (f *Factory) invokeAware(run *creation, name string, raw any) {
	if a, ok := raw.(EnvironmentAware); ok && f.env != nil {
		a.SetEnvironment(f.env)
	}
	if a, ok := raw.(NameAware); ok {
		a.SetBeanName(name)
	}
	if a, ok := raw.(FactoryAware); ok {
		a.SetBeanFactory(&boundFactory{Factory: f, run: run})
	}
}

// boundFactory 交给 FactoryAware 的工厂句柄。
// 创建该 bean 的过程结束前，经句柄的查找沿用这个创建过程，
// 初始化代码因此能拿到上层仍在创建中的 bean 的早期引用；过程结束后与 Factory 相同。
// 创建过程不跨 goroutine 共享，初始化期间启动的 goroutine 应等 bean 创建完成后再使用句柄。
type boundFactory struct {
	*Factory
	run *creation
}

func (h *boundFactory) GetBean(name string, args ...any) (any, error) {
	if h.run.finished.Load() {
		return h.Factory.GetBean(name, args...)
	}
	if len(args) == 0 {
		if inst, ok := h.singletons.Get(name); ok {
			return inst, nil
		}
	}
	return h.doGetBean(h.run, name, args)
}

func (h *boundFactory) GetBeanAs(name string, typ reflect.Type) (any, error) {
	return checkType(name, typ)(h.GetBean(name))
}

func (h *boundFactory) GetBeansOfType(typ reflect.Type) (map[string]any, error) {
	return h.beansOfType(typ, h.GetBean)
}
