package core

import (
	"fmt"

	"github.com/gocrud/ioc/aop"
	"github.com/gocrud/ioc/bean"
)

// AddSingleton 登记名为 name 的单例，impl 可以是构造函数或实例，
// 其类型必须可赋值给 T
//
// 示例:
//
//	core.AddSingleton[UserService]("userService", NewUserService)
func AddSingleton[T any](name string, impl any, opts ...bean.Option) Option {
	return addBean[T](name, impl, append([]bean.Option{bean.WithSingleton()}, opts...))
}

// AddPrototype 登记名为 name 的 prototype bean，每次获取都创建新实例
//
// 示例:
//
//	core.AddPrototype[Worker]("worker", NewWorker)
func AddPrototype[T any](name string, impl any, opts ...bean.Option) Option {
	return addBean[T](name, impl, append([]bean.Option{bean.WithPrototype()}, opts...))
}

// AddBean 以 T 为实例类型登记 bean，使用隐式无参构造与属性/tag 注入
//
// 示例:
//
//	core.AddBean[*UserController]("userController")
func AddBean[T any](name string, opts ...bean.Option) Option {
	return func(rt *Runtime) error {
		rt.Define(bean.Define[T](name, opts...))
		return nil
	}
}

func addBean[T any](name string, impl any, opts []bean.Option) Option {
	return func(rt *Runtime) error {
		def, err := definitionFor(name, impl, opts)
		if err != nil {
			return err
		}
		want := bean.TypeOf[T]()
		if t := def.PredictedType(); t == nil || !t.AssignableTo(want) {
			return fmt.Errorf("core: bean %q of type %v is not assignable to %v", name, t, want)
		}
		rt.Define(def)
		return nil
	}
}

// WithProxy 为接口 I 注册装饰器，命中通知的实现以装饰器替换
//
// 示例:
//
//	core.WithProxy(func(p *aop.Proxy) UserRepository { return &userRepositoryProxy{p} })
func WithProxy[I any](create func(p *aop.Proxy) I) Option {
	return func(rt *Runtime) error {
		aop.RegisterProxy(rt.Context.AutoProxy(), create)
		return nil
	}
}

// WithAdvisor 登记静态通知
func WithAdvisor(advisors ...*aop.Advisor) Option {
	return func(rt *Runtime) error {
		rt.AddAdvisor(advisors...)
		return nil
	}
}
