package bean

// Option 配置 bean 定义。
type Option func(*Definition)

// WithScope 设置 bean 的作用域。
func WithScope(scope Scope) Option {
	return func(d *Definition) {
		d.Scope = scope
	}
}

// WithSingleton 将作用域设置为 Singleton（默认）。
func WithSingleton() Option {
	return WithScope(ScopeSingleton)
}

// WithPrototype 将作用域设置为 Prototype。
func WithPrototype() Option {
	return WithScope(ScopePrototype)
}

// WithLazy 刷新时不预先创建。
func WithLazy() Option {
	return func(d *Definition) {
		d.Lazy = true
	}
}

// WithPrimary 按类型注入出现多个候选时优先选择该 bean。
func WithPrimary() Option {
	return func(d *Definition) {
		d.Primary = true
	}
}

// WithProperty 追加一个字面量属性（也可以直接传 Ref）。
func WithProperty(name string, value any) Option {
	return func(d *Definition) {
		d.Properties = append(d.Properties, PropertyValue{Name: name, Value: value})
	}
}

// WithRef 追加一个引用其他 bean 的属性。
func WithRef(name, beanName string) Option {
	return WithProperty(name, Reference(beanName))
}

// WithConstructor 设置候选构造函数。
func WithConstructor(fns ...any) Option {
	return func(d *Definition) {
		d.Constructors = append(d.Constructors, fns...)
	}
}

// WithArgs 设置构造参数，元素可以是 Ref。
func WithArgs(args ...any) Option {
	return func(d *Definition) {
		d.ConstructorArgs = args
	}
}

// WithFactory 使用静态工厂函数创建实例，参数来自 WithArgs。
func WithFactory(fn any) Option {
	return func(d *Definition) {
		d.Factory = fn
	}
}

// WithFactoryMethod 调用另一个 bean 的方法创建实例。
func WithFactoryMethod(beanName, method string) Option {
	return func(d *Definition) {
		d.FactoryBean = beanName
		d.FactoryMethod = method
	}
}

// WithInitMethod 属性注入完成后调用的方法名。
func WithInitMethod(method string) Option {
	return func(d *Definition) {
		d.InitMethod = method
	}
}

// WithDestroyMethod 容器关闭时调用的方法名。
func WithDestroyMethod(method string) Option {
	return func(d *Definition) {
		d.DestroyMethod = method
	}
}

// WithDependsOn 在创建该 bean 之前先创建 names。
func WithDependsOn(names ...string) Option {
	return func(d *Definition) {
		d.DependsOn = append(d.DependsOn, names...)
	}
}
