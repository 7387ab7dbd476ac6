package bean

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrBeanDestroyed 单例所在的缓存已经销毁。
var ErrBeanDestroyed = errors.New("bean: singleton has been destroyed")

// NotFoundError 没有匹配名称或类型的 bean 定义。
type NotFoundError struct {
	Name string
	Type reflect.Type
}

func (e *NotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("bean: no bean named %q is defined", e.Name)
	}
	return fmt.Sprintf("bean: no bean of type %v is defined", e.Type)
}

// InstantiationError 选择构造函数或调用构造函数/工厂方法失败。
type InstantiationError struct {
	Bean string
	Type reflect.Type
	Err  error
}

func (e *InstantiationError) Error() string {
	if e.Type != nil {
		return fmt.Sprintf("bean: failed to instantiate %q (%v): %v", e.Bean, e.Type, e.Err)
	}
	return fmt.Sprintf("bean: failed to instantiate %q: %v", e.Bean, e.Err)
}

func (e *InstantiationError) Unwrap() error { return e.Err }

// PropertyAssignmentError 属性不存在、不可写或类型不兼容。
type PropertyAssignmentError struct {
	Bean     string
	Property string
	Err      error
}

func (e *PropertyAssignmentError) Error() string {
	return fmt.Sprintf("bean: cannot set property %q on %q: %v", e.Property, e.Bean, e.Err)
}

func (e *PropertyAssignmentError) Unwrap() error { return e.Err }

// CircularConstructorDependencyError 重入了一个正在创建但尚未提前暴露的 bean。
// 通常是构造参数之间的环，或 prototype 之间的环。
type CircularConstructorDependencyError struct {
	Bean  string
	Chain []string
}

func (e *CircularConstructorDependencyError) Error() string {
	return fmt.Sprintf("bean: unresolvable circular reference to %q: %s", e.Bean, strings.Join(e.Chain, " -> "))
}

// TypeMismatchError GetBeanAs 得到的实例与要求的类型不符。
type TypeMismatchError struct {
	Bean     string
	Required reflect.Type
	Actual   reflect.Type
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("bean: %q is %v, not assignable to %v", e.Bean, e.Actual, e.Required)
}

// AmbiguousBeanError 按类型注入有多个候选且没有 primary。
type AmbiguousBeanError struct {
	Type       reflect.Type
	Candidates []string
}

func (e *AmbiguousBeanError) Error() string {
	return fmt.Sprintf("bean: %d beans of type %v (%s), mark one as primary", len(e.Candidates), e.Type, strings.Join(e.Candidates, ", "))
}

// InitializationError 初始化方法或后置处理器失败。
type InitializationError struct {
	Bean  string
	Phase string
	Err   error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("bean: %s of %q failed: %v", e.Phase, e.Bean, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }
