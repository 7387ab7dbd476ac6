// Package definition 从 YAML 文档加载 bean 定义。
//
// Go 无法按名称加载类型，文档中的 type 与 factory 通过 TypeRegistry 解析为
// 事先登记的类型、构造函数与工厂函数。
package definition

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/gocrud/ioc/bean"
)

type registeredType struct {
	typ   reflect.Type
	ctors []any
}

// TypeRegistry 类型别名与工厂函数注册表
type TypeRegistry struct {
	mu        sync.RWMutex
	types     map[string]registeredType
	factories map[string]any
}

// NewTypeRegistry 创建空的注册表
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		types:     make(map[string]registeredType),
		factories: make(map[string]any),
	}
}

// Register 以 alias 登记类型 T 及其候选构造函数
//
// 示例:
//
//	definition.Register[*UserService](registry, "UserService", NewUserService)
func Register[T any](r *TypeRegistry, alias string, ctors ...any) {
	r.RegisterType(alias, bean.TypeOf[T](), ctors...)
}

// RegisterType 以 alias 登记类型及其候选构造函数
func (r *TypeRegistry) RegisterType(alias string, typ reflect.Type, ctors ...any) {
	for _, ctor := range ctors {
		if t := reflect.TypeOf(ctor); t == nil || t.Kind() != reflect.Func {
			panic(fmt.Sprintf("definition: constructor for %q must be a function, got %T", alias, ctor))
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[alias] = registeredType{typ: typ, ctors: ctors}
}

// RegisterFactory 以 name 登记静态工厂函数
func (r *TypeRegistry) RegisterFactory(name string, fn any) {
	if t := reflect.TypeOf(fn); t == nil || t.Kind() != reflect.Func || t.NumOut() == 0 {
		panic(fmt.Sprintf("definition: factory %q must be a function returning a value, got %T", name, fn))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = fn
}

// Type 查找别名对应的类型与构造函数
func (r *TypeRegistry) Type(alias string) (reflect.Type, []any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.types[alias]
	return rt.typ, rt.ctors, ok
}

// Factory 查找工厂函数
func (r *TypeRegistry) Factory(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.factories[name]
	return fn, ok
}

// Aliases 返回已登记的类型别名，按字母序
func (r *TypeRegistry) Aliases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.types))
	for alias := range r.types {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}
