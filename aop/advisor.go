package aop

import (
	"fmt"
	"sort"
)

// AdviceKind 通知类型。
type AdviceKind int

const (
	Before AdviceKind = iota
	After
	AfterReturning
	Around
)

func (k AdviceKind) String() string {
	switch k {
	case Before:
		return "Before"
	case After:
		return "After"
	case AfterReturning:
		return "AfterReturning"
	case Around:
		return "Around"
	default:
		return fmt.Sprintf("AdviceKind(%d)", int(k))
	}
}

// BeforeFunc 在目标方法前执行，返回错误时不再调用目标。
type BeforeFunc func(inv *Invocation) error

// AfterFunc 在目标方法后执行，无论成功、失败或 panic。
type AfterFunc func(inv *Invocation, results []any, err error)

// AfterReturningFunc 仅在目标方法成功返回后执行。
type AfterReturningFunc func(inv *Invocation, results []any)

// AroundFunc 包裹目标方法，通过 inv.Proceed() 继续调用链；不调用则短路。
type AroundFunc func(inv *Invocation) ([]any, error)

// Advisor 把一段通知与一个切点绑定。
type Advisor struct {
	Aspect   string
	Kind     AdviceKind
	Pointcut Pointcut
	Advice   any

	seq int // 注册顺序，由 AutoProxyCreator 分配
}

// NewBefore 创建前置通知。
func NewBefore(pc Pointcut, fn BeforeFunc) *Advisor {
	return &Advisor{Kind: Before, Pointcut: pc, Advice: fn}
}

// NewAfter 创建后置（finally）通知。
func NewAfter(pc Pointcut, fn AfterFunc) *Advisor {
	return &Advisor{Kind: After, Pointcut: pc, Advice: fn}
}

// NewAfterReturning 创建返回通知。
func NewAfterReturning(pc Pointcut, fn AfterReturningFunc) *Advisor {
	return &Advisor{Kind: AfterReturning, Pointcut: pc, Advice: fn}
}

// NewAround 创建环绕通知。
func NewAround(pc Pointcut, fn AroundFunc) *Advisor {
	return &Advisor{Kind: Around, Pointcut: pc, Advice: fn}
}

// Named 设置所属切面名称。
func (a *Advisor) Named(aspect string) *Advisor {
	a.Aspect = aspect
	return a
}

func (a *Advisor) pointcut() Pointcut {
	if a.Pointcut == nil {
		return NewPointcut(nil, nil)
	}
	return a.Pointcut
}

// Interceptor 把通知包装为调用链上的拦截器。
func (a *Advisor) Interceptor() (Interceptor, error) {
	switch a.Kind {
	case Before:
		fn, ok := a.Advice.(BeforeFunc)
		if !ok {
			return nil, a.adviceError()
		}
		return InterceptorFunc(func(inv *Invocation) ([]any, error) {
			if err := fn(inv); err != nil {
				return nil, err
			}
			return inv.Proceed()
		}), nil

	case After:
		fn, ok := a.Advice.(AfterFunc)
		if !ok {
			return nil, a.adviceError()
		}
		return InterceptorFunc(func(inv *Invocation) (results []any, err error) {
			defer func() {
				if r := recover(); r != nil {
					fn(inv, nil, fmt.Errorf("aop: panic in %s: %v", inv.Method(), r))
					panic(r)
				}
				fn(inv, results, err)
			}()
			return inv.Proceed()
		}), nil

	case AfterReturning:
		fn, ok := a.Advice.(AfterReturningFunc)
		if !ok {
			return nil, a.adviceError()
		}
		return InterceptorFunc(func(inv *Invocation) ([]any, error) {
			results, err := inv.Proceed()
			if err == nil {
				fn(inv, results)
			}
			return results, err
		}), nil

	case Around:
		fn, ok := a.Advice.(AroundFunc)
		if !ok {
			return nil, a.adviceError()
		}
		return InterceptorFunc(fn), nil
	}
	return nil, fmt.Errorf("aop: unknown advice kind %v", a.Kind)
}

func (a *Advisor) adviceError() error {
	return fmt.Errorf("aop: %v advice of aspect %q has type %T", a.Kind, a.Aspect, a.Advice)
}

func (a *Advisor) String() string {
	return fmt.Sprintf("%s(%s#%d)", a.Kind, a.Aspect, a.seq)
}

// rank 调用链上的位置：after 类最外层，before 其次，around 最靠近目标
func (a *Advisor) rank() int {
	switch a.Kind {
	case After, AfterReturning:
		return 0
	case Before:
		return 1
	default:
		return 2
	}
}

// SortAdvisors 返回按调用链顺序排列的副本。
// 一次调用依次执行 before、around、目标，然后是 after 类通知；
// 同类之间按注册顺序执行，after 类因此在链上按注册顺序倒排。
func SortAdvisors(advisors []*Advisor) []*Advisor {
	type entry struct {
		advisor *Advisor
		index   int
	}
	entries := make([]entry, len(advisors))
	for i, a := range advisors {
		entries[i] = entry{advisor: a, index: i}
	}

	// 未经 AutoProxyCreator 登记的 advisor seq 相同，以传入顺序作为注册顺序
	earlier := func(x, y entry) bool {
		if x.advisor.seq != y.advisor.seq {
			return x.advisor.seq < y.advisor.seq
		}
		return x.index < y.index
	}

	sort.SliceStable(entries, func(i, j int) bool {
		ri, rj := entries[i].advisor.rank(), entries[j].advisor.rank()
		if ri != rj {
			return ri < rj
		}
		if ri == 0 {
			return earlier(entries[j], entries[i])
		}
		return earlier(entries[i], entries[j])
	})

	out := make([]*Advisor, len(entries))
	for i, e := range entries {
		out[i] = e.advisor
	}
	return out
}
