package aop

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------- 测试用类型 ----------

var errNegative = errors.New("negative operand")

type Calculator interface {
	Add(a, b int) (int, error)
	Name() string
}

type calculator struct {
	calls int
}

func (c *calculator) Add(a, b int) (int, error) {
	c.calls++
	if a < 0 || b < 0 {
		return 0, errNegative
	}
	return a + b, nil
}

func (c *calculator) Name() string { return "calculator" }

// calculatorProxy 手写的装饰器
type calculatorProxy struct {
	p *Proxy
}

func (c *calculatorProxy) Add(a, b int) (int, error) { return Call2[int, error](c.p, "Add", a, b) }
func (c *calculatorProxy) Name() string              { return Call1[string](c.p, "Name") }

type ctxKey struct{}

type contextService struct{}

func (s *contextService) Do(ctx context.Context, x string) (string, error) {
	v, _ := ctx.Value(ctxKey{}).(string)
	return v + ":" + x, nil
}

type joiner struct{}

func (j *joiner) Join(sep string, parts ...string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}

// ---------- 调用链顺序 ----------

// 测试通知执行顺序：before、around、目标、after 类
func TestProxy_AdviceOrder(t *testing.T) {
	var events []string
	record := func(s string) { events = append(events, s) }

	pc := Methods(Within[Calculator](), "Add")
	around := func(tag string) AroundFunc {
		return func(inv *Invocation) ([]any, error) {
			record(tag + ":pre")
			res, err := inv.Proceed()
			record(tag + ":post")
			return res, err
		}
	}

	advisors := []*Advisor{
		NewAfter(pc, func(inv *Invocation, results []any, err error) { record("after1") }),
		NewBefore(pc, func(inv *Invocation) error { record("before1"); return nil }),
		NewAround(pc, around("around1")),
		NewAfterReturning(pc, func(inv *Invocation, results []any) { record(fmt.Sprintf("returning:%v", results[0])) }),
		NewBefore(pc, func(inv *Invocation) error { record("before2"); return nil }),
		NewAround(pc, around("around2")),
	}

	target := &calculator{}
	p, err := NewProxy("calc", target, advisors)
	require.NoError(t, err)
	proxy := &calculatorProxy{p: p}

	sum, err := proxy.Add(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, sum)
	assert.Equal(t, []string{
		"before1", "before2",
		"around1:pre", "around2:pre",
		"around2:post", "around1:post",
		"after1", "returning:3",
	}, events)

	assert.True(t, p.Advised("Add"))
	assert.False(t, p.Advised("Name"))
	assert.Equal(t, "calculator", proxy.Name())
	assert.Same(t, target, p.Target())
}

// 测试 before 返回错误时不调用目标
func TestProxy_BeforeShortCircuit(t *testing.T) {
	denied := errors.New("denied")
	target := &calculator{}
	var afterErr error

	p, err := NewProxy("calc", target, []*Advisor{
		NewBefore(nil, func(inv *Invocation) error { return denied }),
		NewAfter(nil, func(inv *Invocation, results []any, err error) { afterErr = err }),
	})
	require.NoError(t, err)
	proxy := &calculatorProxy{p: p}

	sum, err := proxy.Add(1, 2)
	assert.ErrorIs(t, err, denied)
	assert.Zero(t, sum)
	assert.Zero(t, target.calls)
	assert.ErrorIs(t, afterErr, denied)
}

// 测试 around 不调用 Proceed 时直接返回自己的结果
func TestProxy_AroundShortCircuit(t *testing.T) {
	target := &calculator{}
	p, err := NewProxy("calc", target, []*Advisor{
		NewAround(Methods(NewPointcut(nil, nil), "Add"), func(inv *Invocation) ([]any, error) {
			return []any{42, nil}, nil
		}),
	})
	require.NoError(t, err)

	sum, err := (&calculatorProxy{p: p}).Add(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 42, sum)
	assert.Zero(t, target.calls)
}

// 测试目标返回的错误经过链传回调用方，返回通知不执行
func TestProxy_TargetError(t *testing.T) {
	returned := false
	var seen error
	p, err := NewProxy("calc", &calculator{}, []*Advisor{
		NewAfterReturning(nil, func(inv *Invocation, results []any) { returned = true }),
		NewAfter(nil, func(inv *Invocation, results []any, err error) { seen = err }),
	})
	require.NoError(t, err)

	_, err = (&calculatorProxy{p: p}).Add(-1, 2)
	assert.ErrorIs(t, err, errNegative)
	assert.ErrorIs(t, seen, errNegative)
	assert.False(t, returned)
}

// 测试 after 通知在 panic 时也执行，panic 继续向上传播
func TestProxy_AfterRunsOnPanic(t *testing.T) {
	var seen error
	p, err := NewProxy("calc", &calculator{}, []*Advisor{
		NewAfter(nil, func(inv *Invocation, results []any, err error) { seen = err }),
		NewAround(nil, func(inv *Invocation) ([]any, error) { panic("boom") }),
	})
	require.NoError(t, err)

	assert.PanicsWithValue(t, "boom", func() {
		_, _ = (&calculatorProxy{p: p}).Add(1, 2)
	})
	require.Error(t, seen)
	assert.Contains(t, seen.Error(), "boom")
}

// 测试通知修改参数
func TestProxy_SetArgument(t *testing.T) {
	p, err := NewProxy("calc", &calculator{}, []*Advisor{
		NewBefore(nil, func(inv *Invocation) error {
			if inv.Method().Name == "Add" {
				inv.SetArgument(1, 10)
			}
			return nil
		}),
	})
	require.NoError(t, err)

	sum, err := (&calculatorProxy{p: p}).Add(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 11, sum)
}

// 测试通过 SetContext 向目标传递上下文
func TestProxy_Context(t *testing.T) {
	p, err := NewProxy("svc", &contextService{}, []*Advisor{
		NewAround(nil, func(inv *Invocation) ([]any, error) {
			ctx := context.WithValue(inv.Context(), ctxKey{}, "tx")
			if !inv.SetContext(ctx) {
				return nil, errors.New("no context parameter")
			}
			return inv.Proceed()
		}),
	})
	require.NoError(t, err)

	out, err := Call2[string, error](p, "Do", context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "tx:x", out)
}

// 测试可变参数方法
func TestProxy_Variadic(t *testing.T) {
	p, err := NewProxy("joiner", &joiner{}, []*Advisor{
		NewBefore(nil, func(inv *Invocation) error { return nil }),
	})
	require.NoError(t, err)

	out := Call1[string](p, "Join", "-", []string{"a", "b", "c"})
	assert.Equal(t, "a-b-c", out)
}

// 测试未知方法与无法返回错误的方法
func TestProxy_InvalidCalls(t *testing.T) {
	p, err := NewProxy("calc", &calculator{}, []*Advisor{
		NewBefore(nil, func(inv *Invocation) error { return errors.New("nope") }),
	})
	require.NoError(t, err)

	assert.Panics(t, func() { p.Invoke("Missing") })
	// Name 没有 error 返回值，链上的错误只能以 panic 形式暴露
	assert.Panics(t, func() { _ = Call1[string](p, "Name") })
}

// 测试空拦截器链
func TestNewInvocation_EmptyChain(t *testing.T) {
	target := &calculator{}
	fn := reflect.ValueOf(target).MethodByName("Add")
	m := Method{Name: "Add", Type: fn.Type(), Owner: reflect.TypeOf(target)}

	_, err := NewInvocation(target, m, fn, []any{1, 2}, nil)
	assert.ErrorIs(t, err, ErrEmptyInterceptorChain)
}

// 测试在目标之后再次 Proceed 会重新调用目标
func TestInvocation_ProceedTwice(t *testing.T) {
	target := &calculator{}
	p, err := NewProxy("calc", target, []*Advisor{
		NewAround(nil, func(inv *Invocation) ([]any, error) {
			if _, err := inv.Proceed(); err != nil {
				return nil, err
			}
			return inv.Proceed()
		}),
	})
	require.NoError(t, err)

	sum, err := (&calculatorProxy{p: p}).Add(2, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, sum)
	assert.Equal(t, 2, target.calls)
}

// 测试通知类型与函数不匹配
func TestAdvisor_InvalidAdvice(t *testing.T) {
	a := &Advisor{Kind: Before, Advice: func() {}}
	_, err := NewProxy("calc", &calculator{}, []*Advisor{a})
	assert.Error(t, err)
}

// 测试排序：同类按注册顺序，after 类倒排
func TestSortAdvisors(t *testing.T) {
	b1 := NewBefore(nil, func(*Invocation) error { return nil }).Named("b1")
	b2 := NewBefore(nil, func(*Invocation) error { return nil }).Named("b2")
	a1 := NewAfter(nil, func(*Invocation, []any, error) {}).Named("a1")
	a2 := NewAfterReturning(nil, func(*Invocation, []any) {}).Named("a2")
	r1 := NewAround(nil, func(inv *Invocation) ([]any, error) { return inv.Proceed() }).Named("r1")

	sorted := SortAdvisors([]*Advisor{r1, a1, b1, a2, b2})

	names := make([]string, len(sorted))
	for i, a := range sorted {
		names[i] = a.Aspect
	}
	assert.Equal(t, []string{"a2", "a1", "b1", "b2", "r1"}, names)
}
