package aop

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/gocrud/ioc/bean"
	"github.com/gocrud/ioc/logging"
)

// ErrNoProxyFactory bean 命中了通知，但没有为它实现的任何接口注册装饰器。
var ErrNoProxyFactory = errors.New("aop: no proxy factory registered")

// Aspect 由切面 bean 实现，提供其通知。切面自身永远不会被代理。
type Aspect interface {
	Advisors() []*Advisor
}

var aspectType = reflect.TypeOf((*Aspect)(nil)).Elem()

// AspectType 返回 Aspect 接口类型，供容器在刷新时提前创建切面。
func AspectType() reflect.Type {
	return aspectType
}

type proxyBinding struct {
	iface  reflect.Type
	create func(p *Proxy) any
}

// AutoProxyCreator 在初始化后阶段把命中通知的 bean 替换为装饰器代理。
// 通知来自 AddAdvisor 注册的静态通知，以及容器中已初始化的 Aspect bean。
type AutoProxyCreator struct {
	mu             sync.Mutex
	factory        bean.ListableBeanFactory
	logger         logging.Logger
	advisors       []*Advisor
	aspectAdvisors map[string][]*Advisor
	bindings       []proxyBinding
	seq            int
}

var (
	_ bean.PostProcessor = (*AutoProxyCreator)(nil)
	_ bean.FactoryAware  = (*AutoProxyCreator)(nil)
)

// NewAutoProxyCreator 创建自动代理后置处理器。
func NewAutoProxyCreator(logger logging.Logger) *AutoProxyCreator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &AutoProxyCreator{
		logger:         logger.WithCategory("aop"),
		aspectAdvisors: make(map[string][]*Advisor),
	}
}

// AddAdvisor 注册静态通知，注册顺序决定同类通知的执行顺序。
func (c *AutoProxyCreator) AddAdvisor(advisors ...*Advisor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range advisors {
		c.seq++
		a.seq = c.seq
		c.advisors = append(c.advisors, a)
	}
}

// RegisterProxy 为接口 I 注册装饰器构造函数。
// 实现了 I 的 bean 命中通知时，以 create 的返回值替换该 bean。
func RegisterProxy[I any](c *AutoProxyCreator, create func(p *Proxy) I) {
	iface := reflect.TypeOf((*I)(nil)).Elem()
	if iface.Kind() != reflect.Interface {
		panic(fmt.Sprintf("aop.RegisterProxy: %v is not an interface", iface))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings = append(c.bindings, proxyBinding{
		iface:  iface,
		create: func(p *Proxy) any { return create(p) },
	})
}

// SetBeanFactory 由容器注入，用于发现 Aspect bean。
func (c *AutoProxyCreator) SetBeanFactory(factory bean.BeanFactory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lf, ok := factory.(bean.ListableBeanFactory)
	if !ok {
		return
	}
	// 换了工厂（重新刷新）时，旧切面实例的通知作废
	if c.factory != lf {
		c.aspectAdvisors = make(map[string][]*Advisor)
	}
	c.factory = lf
}

func (c *AutoProxyCreator) PostProcessBeforeInitialization(b any, name string) (any, error) {
	return b, nil
}

func (c *AutoProxyCreator) PostProcessAfterInitialization(b any, name string) (any, error) {
	return c.wrapIfNecessary(b, name)
}

// MatchAdvisors 返回作用于 t 的通知，按调用链顺序排列。
// 只有类型谓词命中且至少一个方法命中的通知才算匹配。
func (c *AutoProxyCreator) MatchAdvisors(t reflect.Type) []*Advisor {
	var matched []*Advisor
	for _, a := range c.Advisors() {
		if a.pointcut().MatchesType(t) && anyMethodMatches(a.pointcut(), t) {
			matched = append(matched, a)
		}
	}
	return SortAdvisors(matched)
}

// Advisors 返回所有候选通知（静态通知与已初始化切面的通知），按注册顺序。
func (c *AutoProxyCreator) Advisors() []*Advisor {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.collectAspects()

	out := make([]*Advisor, 0, len(c.advisors))
	out = append(out, c.advisors...)
	for _, list := range c.aspectAdvisors {
		out = append(out, list...)
	}
	// map 遍历无序，按 seq 恢复注册顺序
	return sortBySeq(out)
}

// collectAspects 只读取已完全初始化的切面单例，不触发创建，避免递归进入容器。
// 调用方持有 c.mu
func (c *AutoProxyCreator) collectAspects() {
	if c.factory == nil {
		return
	}
	for _, name := range c.factory.BeanNamesForType(aspectType) {
		if _, done := c.aspectAdvisors[name]; done {
			continue
		}
		inst, ok := c.factory.InitializedSingleton(name)
		if !ok {
			continue
		}
		aspect, ok := inst.(Aspect)
		if !ok {
			continue
		}

		var list []*Advisor
		for _, a := range aspect.Advisors() {
			copied := *a
			if copied.Aspect == "" {
				copied.Aspect = name
			}
			c.seq++
			copied.seq = c.seq
			list = append(list, &copied)
		}
		c.aspectAdvisors[name] = list
		c.logger.Debug("Registered aspect",
			logging.Field{Key: "aspect", Value: name},
			logging.Field{Key: "advisors", Value: len(list)})
	}
}

func (c *AutoProxyCreator) wrapIfNecessary(b any, name string) (any, error) {
	if b == nil || isInfrastructure(b) {
		return b, nil
	}

	t := reflect.TypeOf(b)
	advisors := c.MatchAdvisors(t)
	if len(advisors) == 0 {
		return b, nil
	}

	create := c.bindingFor(t)
	if create == nil {
		return nil, fmt.Errorf("%w: bean %q (%v) matches %d advisor(s)", ErrNoProxyFactory, name, t, len(advisors))
	}

	p, err := NewProxy(name, b, advisors)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Created proxy",
		logging.Field{Key: "bean", Value: name},
		logging.Field{Key: "type", Value: t.String()},
		logging.Field{Key: "advisors", Value: len(advisors)})
	return create(p), nil
}

func (c *AutoProxyCreator) bindingFor(t reflect.Type) func(p *Proxy) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.bindings {
		if t.Implements(b.iface) {
			return b.create
		}
	}
	return nil
}

// isInfrastructure 切面、后置处理器与已经是代理的实例不被代理
func isInfrastructure(b any) bool {
	switch b.(type) {
	case Aspect, bean.PostProcessor, bean.FactoryPostProcessor, *Proxy:
		return true
	}
	return false
}

func anyMethodMatches(pc Pointcut, t reflect.Type) bool {
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		// 方法值的签名不含接收者
		sig := m.Type
		in := make([]reflect.Type, 0, sig.NumIn()-1)
		for j := 1; j < sig.NumIn(); j++ {
			in = append(in, sig.In(j))
		}
		out := make([]reflect.Type, sig.NumOut())
		for j := range out {
			out[j] = sig.Out(j)
		}
		if pc.MatchesMethod(Method{Name: m.Name, Type: reflect.FuncOf(in, out, sig.IsVariadic()), Owner: t}) {
			return true
		}
	}
	return false
}

func sortBySeq(advisors []*Advisor) []*Advisor {
	for i := 1; i < len(advisors); i++ {
		for j := i; j > 0 && advisors[j].seq < advisors[j-1].seq; j-- {
			advisors[j], advisors[j-1] = advisors[j-1], advisors[j]
		}
	}
	return advisors
}
