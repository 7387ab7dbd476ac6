package bean

import (
	"errors"
	"fmt"
	"reflect"
)

// Scope 定义了 bean 的生命周期。
type Scope int

const (
	// ScopeSingleton 每个容器一个实例，缓存在 SingletonCache 中。
	ScopeSingleton Scope = iota
	// ScopePrototype 每次 GetBean 创建一个新实例，不缓存。
	ScopePrototype
)

func (s Scope) String() string {
	switch s {
	case ScopeSingleton:
		return "singleton"
	case ScopePrototype:
		return "prototype"
	default:
		return fmt.Sprintf("Scope(%d)", int(s))
	}
}

// ParseScope 解析 "singleton" / "prototype"，空串视为 singleton。
func ParseScope(s string) (Scope, error) {
	switch s {
	case "", "singleton":
		return ScopeSingleton, nil
	case "prototype":
		return ScopePrototype, nil
	default:
		return ScopeSingleton, fmt.Errorf("bean: unknown scope %q", s)
	}
}

// Ref 是对另一个 bean 的符号引用，在构造或属性填充时才解析。
type Ref struct {
	Name string
}

// Reference 创建对名为 name 的 bean 的引用。
func Reference(name string) Ref {
	return Ref{Name: name}
}

// PropertyValue 一个待注入的属性，Value 是字面量或 Ref。
type PropertyValue struct {
	Name  string
	Value any
}

// Definition 描述如何创建、装配和销毁一个 bean。
type Definition struct {
	Name  string
	Type  reflect.Type // 实例类型，通常是 *T
	Scope Scope

	Lazy    bool // 刷新时不预先创建
	Primary bool // 按类型注入有多个候选时优先

	Properties      []PropertyValue // 按声明顺序注入
	ConstructorArgs []any           // 字面量或 Ref
	Constructors    []any           // 候选构造函数，按参数个数选择

	Factory       any    // 静态工厂函数
	FactoryBean   string // 工厂 bean 名称
	FactoryMethod string // 工厂 bean 上的方法名

	InitMethod    string
	DestroyMethod string
	DependsOn     []string
}

// NewDefinition 创建 bean 定义。
func NewDefinition(name string, typ reflect.Type, opts ...Option) *Definition {
	def := &Definition{
		Name:  name,
		Type:  typ,
		Scope: ScopeSingleton,
	}
	for _, opt := range opts {
		opt(def)
	}
	return def
}

// Define 以 T 作为实例类型创建 bean 定义，例如 Define[*UserService]("userService")。
func Define[T any](name string, opts ...Option) *Definition {
	return NewDefinition(name, TypeOf[T](), opts...)
}

// IsSingleton 报告是否为单例作用域。
func (d *Definition) IsSingleton() bool {
	return d.Scope == ScopeSingleton
}

// PredictedType 在不创建实例的情况下推断实例类型，无法推断时返回 nil。
// 工厂 bean 方法的返回类型由 Factory 在有注册表时推断。
func (d *Definition) PredictedType() reflect.Type {
	if d.Type != nil {
		return d.Type
	}
	if d.Factory != nil {
		if t := reflect.TypeOf(d.Factory); t.Kind() == reflect.Func && t.NumOut() > 0 {
			return t.Out(0)
		}
	}
	for _, ctor := range d.Constructors {
		if t := reflect.TypeOf(ctor); t != nil && t.Kind() == reflect.Func && t.NumOut() > 0 {
			return t.Out(0)
		}
	}
	return nil
}

// Validate 检查定义自身是否完整，不检查对其他 bean 的引用。
func (d *Definition) Validate() error {
	if d.Name == "" {
		return errors.New("bean: definition name is empty")
	}
	if d.Scope != ScopeSingleton && d.Scope != ScopePrototype {
		return fmt.Errorf("bean: definition %q has invalid scope %v", d.Name, d.Scope)
	}
	if d.Factory != nil && reflect.TypeOf(d.Factory).Kind() != reflect.Func {
		return fmt.Errorf("bean: definition %q factory is %T, not a function", d.Name, d.Factory)
	}
	for i, ctor := range d.Constructors {
		if t := reflect.TypeOf(ctor); t == nil || t.Kind() != reflect.Func || t.NumOut() == 0 {
			return fmt.Errorf("bean: definition %q constructor %d is not a function returning a value", d.Name, i)
		}
	}
	if (d.FactoryBean == "") != (d.FactoryMethod == "") {
		return fmt.Errorf("bean: definition %q must set both factory bean and factory method", d.Name)
	}
	if d.Type == nil && d.Factory == nil && d.FactoryBean == "" && len(d.Constructors) == 0 {
		return fmt.Errorf("bean: definition %q has no type, constructor or factory", d.Name)
	}
	return nil
}

func (d *Definition) String() string {
	return fmt.Sprintf("bean %q [%v, %v]", d.Name, d.PredictedType(), d.Scope)
}

// Clone 返回副本，切片各自独立，FactoryPostProcessor 修改副本不影响原定义。
func (d *Definition) Clone() *Definition {
	c := *d
	c.Properties = append([]PropertyValue(nil), d.Properties...)
	c.ConstructorArgs = append([]any(nil), d.ConstructorArgs...)
	c.Constructors = append([]any(nil), d.Constructors...)
	c.DependsOn = append([]string(nil), d.DependsOn...)
	return &c
}
