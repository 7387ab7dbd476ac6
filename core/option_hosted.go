package core

import (
	"context"
	"fmt"
	"reflect"

	"github.com/gocrud/ioc/bean"
	"github.com/gocrud/ioc/hosting"
)

// WithHostedService 把托管服务登记为单例 bean。
// constructor 可以是构造函数（参数按类型装配）或结构体指针类型的实例。
// 容器 Start 时启动，Close 时停止。
func WithHostedService(name string, constructor any, opts ...bean.Option) Option {
	return func(rt *Runtime) error {
		def, err := definitionFor(name, constructor, opts)
		if err != nil {
			return fmt.Errorf("WithHostedService: %w", err)
		}
		if t := def.PredictedType(); t == nil || !t.Implements(hostedServiceType) {
			return fmt.Errorf("WithHostedService: %v does not implement hosting.HostedService", t)
		}
		rt.Define(def)
		return nil
	}
}

// WorkerFunc 定义简单的后台任务函数
// 这是一个阻塞函数，通过 ctx.Done() 判断退出。
type WorkerFunc func(ctx context.Context) error

// WithWorker 将一个阻塞的函数注册为托管服务 bean
func WithWorker(name string, fn WorkerFunc) Option {
	return func(rt *Runtime) error {
		rt.Define(bean.NewDefinition(name, nil, bean.WithFactory(func() *hosting.ServiceFunc {
			return hosting.NewServiceFunc(fn)
		})))
		return nil
	}
}

// definitionFor 函数作为构造函数，其他值作为现成实例
func definitionFor(name string, target any, opts []bean.Option) (*bean.Definition, error) {
	if target == nil {
		return nil, fmt.Errorf("bean %q: nil constructor", name)
	}
	t := reflect.TypeOf(target)
	if t.Kind() == reflect.Func {
		return bean.NewDefinition(name, nil, append([]bean.Option{bean.WithConstructor(target)}, opts...)...), nil
	}

	// 现成实例通过返回它的构造函数登记，类型保持为实例的动态类型
	v := reflect.ValueOf(target)
	ctor := reflect.MakeFunc(reflect.FuncOf(nil, []reflect.Type{t}, false), func([]reflect.Value) []reflect.Value {
		return []reflect.Value{v}
	})
	return bean.NewDefinition(name, t, append([]bean.Option{bean.WithConstructor(ctor.Interface())}, opts...)...), nil
}
