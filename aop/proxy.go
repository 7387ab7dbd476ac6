package aop

import (
	"fmt"
	"reflect"
)

// Proxy 持有目标实例以及每个方法的拦截器链。
// Go 不能在运行时合成实现接口的类型，因此代理通过手写的装饰器类型对外暴露，
// 装饰器的每个方法调用 Proxy.Invoke，见 RegisterProxy。
type Proxy struct {
	name       string
	target     any
	targetType reflect.Type
	methods    map[string]*proxyMethod
}

type proxyMethod struct {
	method Method
	fn     reflect.Value
	chain  []Interceptor
}

// NewProxy 为 target 的每个导出方法构建拦截器链，没有匹配通知的方法直接转发。
func NewProxy(name string, target any, advisors []*Advisor) (*Proxy, error) {
	if target == nil {
		return nil, fmt.Errorf("aop: cannot proxy nil bean %q", name)
	}

	t := reflect.TypeOf(target)
	v := reflect.ValueOf(target)
	p := &Proxy{
		name:       name,
		target:     target,
		targetType: t,
		methods:    make(map[string]*proxyMethod, t.NumMethod()),
	}

	var applicable []*Advisor
	for _, a := range advisors {
		if a.pointcut().MatchesType(t) {
			applicable = append(applicable, a)
		}
	}
	applicable = SortAdvisors(applicable)

	for i := 0; i < t.NumMethod(); i++ {
		fn := v.Method(i)
		pm := &proxyMethod{
			method: Method{Name: t.Method(i).Name, Type: fn.Type(), Owner: t},
			fn:     fn,
		}
		for _, a := range applicable {
			if !a.pointcut().MatchesMethod(pm.method) {
				continue
			}
			ic, err := a.Interceptor()
			if err != nil {
				return nil, err
			}
			pm.chain = append(pm.chain, ic)
		}
		p.methods[pm.method.Name] = pm
	}
	return p, nil
}

// Name 返回被代理 bean 的名称。
func (p *Proxy) Name() string {
	return p.name
}

// Target 返回原始实例。
func (p *Proxy) Target() any {
	return p.target
}

// Advised 报告方法上是否有通知。
func (p *Proxy) Advised(method string) bool {
	pm, ok := p.methods[method]
	return ok && len(pm.chain) > 0
}

// Invoke 通过拦截器链调用方法，返回与方法签名一致的结果。
// 链上产生的错误写入最后一个 error 返回值；方法不返回 error 时 panic。
func (p *Proxy) Invoke(method string, args ...any) []any {
	pm, ok := p.methods[method]
	if !ok {
		panic(fmt.Sprintf("aop: %v has no method %s", p.targetType, method))
	}

	var (
		results []any
		err     error
	)
	if len(pm.chain) == 0 {
		results, err = callTarget(pm.fn, args)
	} else {
		inv, ierr := NewInvocation(p.target, pm.method, pm.fn, args, pm.chain)
		if ierr != nil {
			panic(ierr)
		}
		results, err = inv.Proceed()
	}
	return normalizeResults(pm.method, results, err)
}

// normalizeResults 结果个数与签名不符（例如通知短路）时用零值填充
func normalizeResults(m Method, results []any, err error) []any {
	n := m.Type.NumOut()
	out := make([]any, n)
	if len(results) == n {
		copy(out, results)
	}
	if err != nil {
		if !m.ReturnsError() {
			panic(fmt.Errorf("aop: %s cannot return error: %w", m, err))
		}
		out[n-1] = err
	}
	return out
}

// Call 调用没有返回值或只返回 error 的方法。
func Call(p *Proxy, method string, args ...any) error {
	res := p.Invoke(method, args...)
	if len(res) == 0 {
		return nil
	}
	err, _ := res[len(res)-1].(error)
	return err
}

// Call1 调用返回一个值的方法。
func Call1[R any](p *Proxy, method string, args ...any) R {
	res := p.Invoke(method, args...)
	return result[R](res, 0)
}

// Call2 调用返回两个值的方法，常见形式为 (T, error)。
func Call2[R1, R2 any](p *Proxy, method string, args ...any) (R1, R2) {
	res := p.Invoke(method, args...)
	return result[R1](res, 0), result[R2](res, 1)
}

// Call3 调用返回三个值的方法。
func Call3[R1, R2, R3 any](p *Proxy, method string, args ...any) (R1, R2, R3) {
	res := p.Invoke(method, args...)
	return result[R1](res, 0), result[R2](res, 1), result[R3](res, 2)
}

func result[R any](res []any, i int) R {
	var zero R
	if i >= len(res) || res[i] == nil {
		return zero
	}
	return res[i].(R)
}
