// Package bean 实现 bean 定义注册、单例缓存与构造/注入引擎。
//
// 单例在原始实例创建后立即提前暴露，属性之间的循环引用因此可以解析；
// 构造参数之间的循环引用无法解析，返回 *CircularConstructorDependencyError。
package bean

import (
	"fmt"
	"reflect"
)

// TypeOf 返回 T 的反射类型，T 可以是接口。
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Get 获取名为 name 的 bean 并断言为 T。
func Get[T any](f BeanFactory, name string) (T, error) {
	var zero T
	inst, err := f.GetBeanAs(name, TypeOf[T]())
	if err != nil {
		return zero, err
	}
	return inst.(T), nil
}

// MustGet 与 Get 相同，失败时 panic。
func MustGet[T any](f BeanFactory, name string) T {
	v, err := Get[T](f, name)
	if err != nil {
		panic(fmt.Sprintf("bean.MustGet failed: %v", err))
	}
	return v
}

// OfType 返回所有可赋值给 T 的 bean。
func OfType[T any](f ListableBeanFactory) (map[string]T, error) {
	beans, err := f.GetBeansOfType(TypeOf[T]())
	if err != nil {
		return nil, err
	}
	out := make(map[string]T, len(beans))
	for name, inst := range beans {
		out[name] = inst.(T)
	}
	return out, nil
}

// NamesOf 按注册顺序返回类型可赋值给 T 的 bean 名称。
func NamesOf[T any](f ListableBeanFactory) []string {
	return f.BeanNamesForType(TypeOf[T]())
}
