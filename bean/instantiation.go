package bean

import (
	"errors"
	"fmt"
	"reflect"
)

// InstantiationStrategy 负责调用选中的构造函数或工厂方法。
// ctor 无效时表示使用隐式无参构造（零值结构体指针）。
type InstantiationStrategy interface {
	Instantiate(def *Definition, ctor reflect.Value, args []reflect.Value) (any, error)
}

// SimpleInstantiationStrategy 默认策略：反射调用，检查 error 返回值与 nil 实例。
type SimpleInstantiationStrategy struct{}

func (SimpleInstantiationStrategy) Instantiate(def *Definition, ctor reflect.Value, args []reflect.Value) (any, error) {
	if !ctor.IsValid() {
		if def.Type == nil || def.Type.Kind() != reflect.Ptr || def.Type.Elem().Kind() != reflect.Struct {
			return nil, fmt.Errorf("implicit constructor requires a struct pointer type, got %v", def.Type)
		}
		return reflect.New(def.Type.Elem()).Interface(), nil
	}

	results := ctor.Call(args)
	if len(results) == 0 {
		return nil, errors.New("constructor returned no values")
	}
	if err := callResults(results[1:]); err != nil {
		return nil, fmt.Errorf("constructor failed: %w", err)
	}

	first := results[0]
	switch first.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if first.IsNil() {
			return nil, errors.New("constructor returned nil instance")
		}
	}
	return first.Interface(), nil
}

// instantiate 解析构造参数，按参数个数与类型选择构造函数并创建原始实例。
// 显式传入的 args 优先于定义中的 ConstructorArgs。
func (f *Factory) instantiate(run *creation, name string, def *Definition, explicit []any) (any, error) {
	rawArgs := def.ConstructorArgs
	if len(explicit) > 0 {
		rawArgs = explicit
	}

	// 参数中的引用在这里递归解析，构造器之间的环会在此被发现
	args := make([]any, len(rawArgs))
	for i, a := range rawArgs {
		v, err := f.resolveValue(run, a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	candidates, err := f.constructorCandidates(run, def)
	if err != nil {
		return nil, err
	}

	var (
		ctor     reflect.Value
		callArgs []reflect.Value
		lastErr  error
	)
	if len(candidates) == 0 {
		if len(args) > 0 {
			return nil, &InstantiationError{Bean: name, Type: def.Type,
				Err: fmt.Errorf("no constructor declared for %d argument(s)", len(args))}
		}
	} else {
		for _, c := range candidates {
			vals, err := matchArgs(c.Type(), args)
			if err != nil {
				lastErr = err
				continue
			}
			ctor, callArgs = c, vals
			break
		}
		if !ctor.IsValid() && len(args) == 0 && !candidates[0].Type().IsVariadic() {
			// 没有显式参数时，按类型装配第一个构造函数的参数
			vals, err := f.autowireArgs(run, name, candidates[0].Type())
			if err != nil {
				return nil, err
			}
			ctor, callArgs = candidates[0], vals
		}
		if !ctor.IsValid() {
			if lastErr == nil {
				lastErr = fmt.Errorf("no constructor takes %d argument(s)", len(args))
			}
			return nil, &InstantiationError{Bean: name, Type: def.Type, Err: lastErr}
		}
	}

	raw, err := f.strategy.Instantiate(def, ctor, callArgs)
	if err != nil {
		return nil, &InstantiationError{Bean: name, Type: def.Type, Err: err}
	}
	if def.Type != nil && !reflect.TypeOf(raw).AssignableTo(def.Type) {
		return nil, &InstantiationError{Bean: name, Type: def.Type,
			Err: fmt.Errorf("constructor produced %T", raw)}
	}
	return raw, nil
}

// constructorCandidates 工厂方法优先，其次静态工厂，最后是声明的构造函数
func (f *Factory) constructorCandidates(run *creation, def *Definition) ([]reflect.Value, error) {
	if def.FactoryBean != "" {
		fb, err := f.doGetBean(run, def.FactoryBean, nil)
		if err != nil {
			return nil, err
		}
		m := reflect.ValueOf(fb).MethodByName(def.FactoryMethod)
		if !m.IsValid() {
			return nil, &InstantiationError{Bean: def.Name, Type: def.Type,
				Err: fmt.Errorf("factory method %s not found on %T", def.FactoryMethod, fb)}
		}
		return []reflect.Value{m}, nil
	}
	if def.Factory != nil {
		return []reflect.Value{reflect.ValueOf(def.Factory)}, nil
	}

	out := make([]reflect.Value, 0, len(def.Constructors))
	for _, c := range def.Constructors {
		out = append(out, reflect.ValueOf(c))
	}
	return out, nil
}

// autowireArgs 每个形参按类型解析为唯一（或 primary）候选
func (f *Factory) autowireArgs(run *creation, name string, fnType reflect.Type) ([]reflect.Value, error) {
	vals := make([]reflect.Value, fnType.NumIn())
	for i := range vals {
		v, _, err := f.resolveByType(run, name, fnType.In(i), false)
		if err != nil {
			return nil, err
		}
		vals[i] = reflect.ValueOf(v)
	}
	return vals, nil
}

// matchArgs 参数个数必须相等，每个参数必须能转换为形参类型
func matchArgs(fnType reflect.Type, args []any) ([]reflect.Value, error) {
	if fnType.IsVariadic() || fnType.NumIn() != len(args) {
		return nil, fmt.Errorf("constructor %v takes %d argument(s), got %d", fnType, fnType.NumIn(), len(args))
	}
	vals := make([]reflect.Value, len(args))
	for i, a := range args {
		v, err := convertValue(a, fnType.In(i))
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		vals[i] = v
	}
	return vals, nil
}
