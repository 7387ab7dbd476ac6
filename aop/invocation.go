package aop

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// ErrEmptyInterceptorChain 构建调用时拦截器列表为空。
// 没有通知的方法由代理直接转发，不会创建 Invocation。
var ErrEmptyInterceptorChain = errors.New("aop: interceptor chain is empty")

// Interceptor 调用链上的一个环节。
type Interceptor interface {
	Invoke(inv *Invocation) ([]any, error)
}

// InterceptorFunc 用函数实现 Interceptor。
type InterceptorFunc func(inv *Invocation) ([]any, error)

func (fn InterceptorFunc) Invoke(inv *Invocation) ([]any, error) {
	return fn(inv)
}

// Invocation 一次方法调用的上下文，只在本次调用中使用，不可跨调用共享。
type Invocation struct {
	target any
	method Method
	fn     reflect.Value
	args   []any

	chain  []Interceptor // 末尾是调用目标方法的拦截器
	cursor int
}

// NewInvocation 构建调用，interceptors 为空时返回 ErrEmptyInterceptorChain。
func NewInvocation(target any, method Method, fn reflect.Value, args []any, interceptors []Interceptor) (*Invocation, error) {
	if len(interceptors) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyInterceptorChain, method)
	}
	chain := make([]Interceptor, 0, len(interceptors)+1)
	chain = append(chain, interceptors...)
	chain = append(chain, targetInvoker{})

	return &Invocation{
		target: target,
		method: method,
		fn:     fn,
		args:   args,
		chain:  chain,
	}, nil
}

// Proceed 调用链上的下一个拦截器，最后一个调用目标方法。
// 在目标之后再次调用 Proceed 会重新调用目标。
func (inv *Invocation) Proceed() ([]any, error) {
	if inv.cursor >= len(inv.chain) {
		inv.cursor = len(inv.chain) - 1
	}
	next := inv.chain[inv.cursor]
	inv.cursor++
	return next.Invoke(inv)
}

// Target 返回被代理的原始实例。
func (inv *Invocation) Target() any {
	return inv.target
}

// Method 返回被调用的方法。
func (inv *Invocation) Method() Method {
	return inv.method
}

// Arguments 返回参数，修改会影响后续环节与目标调用。
func (inv *Invocation) Arguments() []any {
	return inv.args
}

// SetArgument 替换第 i 个参数。
func (inv *Invocation) SetArgument(i int, v any) {
	inv.args[i] = v
}

// Context 返回第一个 context.Context 参数，没有时返回 context.Background()。
func (inv *Invocation) Context() context.Context {
	if i := inv.contextIndex(); i >= 0 {
		if ctx, ok := inv.args[i].(context.Context); ok && ctx != nil {
			return ctx
		}
	}
	return context.Background()
}

// SetContext 替换第一个 context.Context 参数，方法没有该参数时返回 false。
func (inv *Invocation) SetContext(ctx context.Context) bool {
	i := inv.contextIndex()
	if i < 0 {
		return false
	}
	inv.args[i] = ctx
	return true
}

func (inv *Invocation) contextIndex() int {
	t := inv.method.Type
	for i := 0; i < t.NumIn() && i < len(inv.args); i++ {
		if t.In(i) == contextType {
			return i
		}
	}
	return -1
}

// targetInvoker 调用链的终点
type targetInvoker struct{}

func (targetInvoker) Invoke(inv *Invocation) ([]any, error) {
	return callTarget(inv.fn, inv.args)
}

// callTarget 反射调用目标方法；可变参数方法的最后一个参数须为切片
func callTarget(fn reflect.Value, args []any) ([]any, error) {
	ft := fn.Type()
	if len(args) != ft.NumIn() {
		return nil, fmt.Errorf("aop: %v called with %d argument(s)", ft, len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, a := range args {
		pt := ft.In(i)
		if a == nil {
			in[i] = reflect.Zero(pt)
			continue
		}
		v := reflect.ValueOf(a)
		switch {
		case v.Type().AssignableTo(pt):
		case v.Type().ConvertibleTo(pt):
			v = v.Convert(pt)
		default:
			return nil, fmt.Errorf("aop: argument %d of %v: %T is not assignable to %v", i, ft, a, pt)
		}
		in[i] = v
	}

	var out []reflect.Value
	if ft.IsVariadic() {
		out = fn.CallSlice(in)
	} else {
		out = fn.Call(in)
	}

	results := make([]any, len(out))
	for i, v := range out {
		results[i] = v.Interface()
	}

	var err error
	if n := len(out); n > 0 && ft.Out(n-1) == errorType && !out[n-1].IsNil() {
		err = out[n-1].Interface().(error)
	}
	return results, err
}
