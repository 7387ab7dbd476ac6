package bean

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------- 测试用类型 ----------

type plainBean struct {
	Name string
}

type nodeA struct {
	B *nodeB
}

type nodeB struct {
	A *nodeA
}

type ctorA struct{ b *ctorB }
type ctorB struct{ a *ctorA }

func newCtorA(b *ctorB) *ctorA { return &ctorA{b: b} }
func newCtorB(a *ctorA) *ctorB { return &ctorB{a: a} }

type Greeter interface {
	Greet(name string) string
}

type englishGreeter struct {
	Prefix string
}

func (g *englishGreeter) Greet(name string) string { return g.Prefix + " " + name }

type frenchGreeter struct{}

func (g *frenchGreeter) Greet(name string) string { return "bonjour " + name }

type lifecycleBean struct {
	Name     string
	events   []string
	factory  BeanFactory
	env      Environment
	beanName string
}

func (b *lifecycleBean) SetEnvironment(env Environment) {
	b.env = env
	b.events = append(b.events, "env")
}

func (b *lifecycleBean) SetBeanName(name string) {
	b.beanName = name
	b.events = append(b.events, "name")
}

func (b *lifecycleBean) SetBeanFactory(f BeanFactory) {
	b.factory = f
	b.events = append(b.events, "factory")
}

func (b *lifecycleBean) AfterPropertiesSet() error {
	b.events = append(b.events, "afterPropertiesSet:"+b.Name)
	return nil
}

func (b *lifecycleBean) Init() {
	b.events = append(b.events, "init")
}

type closer struct {
	destroyed *int32
	closed    *int32
}

func (c *closer) Destroy() error {
	atomic.AddInt32(c.destroyed, 1)
	return nil
}

func (c *closer) Close() error {
	atomic.AddInt32(c.closed, 1)
	return nil
}

type staticEnv struct{}

func (staticEnv) Name() string { return "test" }
func (staticEnv) Property(key string) (string, bool) {
	return "", false
}

type settings struct {
	Port    int
	Timeout time.Duration
	Ratio   float64
	Debug   bool
	Tags    []string
	label   string
}

func (s *settings) SetLabel(label string) error {
	if label == "" {
		return errors.New("empty label")
	}
	s.label = label
	return nil
}

type autowired struct {
	Greeter  Greeter    `di:""`
	Named    *plainBean `di:"plain"`
	Optional *nodeA     `di:"?"`
	Missing  *nodeB     `di:"missing,optional"`
}

type greeterFactory struct {
	Prefix string
}

func (f *greeterFactory) NewGreeter() *englishGreeter {
	return &englishGreeter{Prefix: f.Prefix}
}

// lookupChild 初始化时经工厂句柄查找上层仍在创建中的 parent
type lookupParent struct {
	Child *lookupChild
}

type lookupChild struct {
	factory BeanFactory
	parent  *lookupParent
}

func (c *lookupChild) SetBeanFactory(f BeanFactory) {
	c.factory = f
}

func (c *lookupChild) AfterPropertiesSet() error {
	p, err := c.factory.GetBean("parent")
	if err != nil {
		return err
	}
	c.parent = p.(*lookupParent)
	return nil
}

type gate struct{}

type relayB struct {
	Gate *gate
	A    *relayA
}

type relayA struct {
	b *relayB
}

func newRelayA(b *relayB) *relayA { return &relayA{b: b} }

func mustRegister(t *testing.T, f *Factory, defs ...*Definition) {
	t.Helper()
	for _, def := range defs {
		require.NoError(t, f.RegisterDefinition(def))
	}
}

// ---------- 循环引用 ----------

// 测试属性之间的循环引用通过提前暴露解析
func TestMutualFieldInjection(t *testing.T) {
	f := NewFactory()
	mustRegister(t, f,
		Define[*nodeA]("a", WithRef("B", "b")),
		Define[*nodeB]("b", WithRef("A", "a")),
	)

	got, err := f.GetBean("a")
	require.NoError(t, err)
	a := got.(*nodeA)

	require.NotNil(t, a.B)
	assert.Same(t, a, a.B.A)

	b, err := f.GetBean("b")
	require.NoError(t, err)
	assert.Same(t, a.B, b)
	assert.Equal(t, StateFullyInitialized, f.Singletons().State("a"))
	assert.Equal(t, StateFullyInitialized, f.Singletons().State("b"))
}

// 测试后置处理器替换实例后，提前拿到的引用仍指向原始实例
func TestEarlyReferenceKeepsRawInstance(t *testing.T) {
	f := NewFactory()
	replacement := &nodeA{}
	f.AddPostProcessor(&PostProcessorFuncs{
		After: func(b any, name string) (any, error) {
			if name == "a" {
				return replacement, nil
			}
			return b, nil
		},
	})
	mustRegister(t, f,
		Define[*nodeA]("a", WithRef("B", "b")),
		Define[*nodeB]("b", WithRef("A", "a")),
	)

	got, err := f.GetBean("a")
	require.NoError(t, err)
	assert.Same(t, replacement, got)

	b := MustGet[*nodeB](f, "b")
	require.NotNil(t, b.A)
	assert.NotSame(t, replacement, b.A)
	assert.Same(t, b, b.A.B)
}

// 测试初始化代码经工厂句柄重入上层创建中的 bean，拿到早期引用
func TestInitLookupOfBeanInCreation(t *testing.T) {
	f := NewFactory()
	mustRegister(t, f,
		Define[*lookupParent]("parent", WithRef("Child", "child")),
		Define[*lookupChild]("child"),
	)

	done := make(chan error, 1)
	var parent *lookupParent
	go func() {
		got, err := f.GetBean("parent")
		if err == nil {
			parent = got.(*lookupParent)
		}
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("GetBean(parent) blocked")
	}
	assert.Same(t, parent, parent.Child.parent)

	// 创建结束后句柄照常工作
	got, err := parent.Child.factory.GetBean("child")
	require.NoError(t, err)
	assert.Same(t, parent.Child, got)
}

// 测试构造参数之间的循环引用无法解析
func TestMutualConstructorInjection(t *testing.T) {
	f := NewFactory()
	mustRegister(t, f,
		Define[*ctorA]("a", WithConstructor(newCtorA), WithArgs(Reference("b"))),
		Define[*ctorB]("b", WithConstructor(newCtorB), WithArgs(Reference("a"))),
	)

	_, err := f.GetBean("a")
	var circ *CircularConstructorDependencyError
	require.ErrorAs(t, err, &circ)
	assert.Equal(t, "a", circ.Bean)
	assert.Equal(t, []string{"a", "b", "a"}, circ.Chain)

	// 失败后条目被清理
	assert.Equal(t, StateAbsent, f.Singletons().State("a"))
	assert.Equal(t, StateAbsent, f.Singletons().State("b"))
}

func TestPrototypeCycleFails(t *testing.T) {
	f := NewFactory()
	mustRegister(t, f,
		Define[*nodeA]("a", WithPrototype(), WithRef("B", "b")),
		Define[*nodeB]("b", WithPrototype(), WithRef("A", "a")),
	)

	_, err := f.GetBean("a")
	var circ *CircularConstructorDependencyError
	assert.ErrorAs(t, err, &circ)
}

func TestDependsOnCycleFails(t *testing.T) {
	f := NewFactory()
	mustRegister(t, f,
		Define[*plainBean]("a", WithDependsOn("b")),
		Define[*plainBean]("b", WithDependsOn("a")),
	)

	_, err := f.GetBean("a")
	var circ *CircularConstructorDependencyError
	assert.ErrorAs(t, err, &circ)
}

// ---------- 作用域 ----------

func TestScopes(t *testing.T) {
	f := NewFactory()
	mustRegister(t, f,
		Define[*plainBean]("single"),
		Define[*plainBean]("proto", WithPrototype()),
	)

	s1, _ := f.GetBean("single")
	s2, _ := f.GetBean("single")
	assert.Same(t, s1, s2)

	p1, _ := f.GetBean("proto")
	p2, _ := f.GetBean("proto")
	assert.NotSame(t, p1, p2)
	assert.Equal(t, StateAbsent, f.Singletons().State("proto"))

	ok, err := f.IsSingleton("proto")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPrototypeExplicitArgs(t *testing.T) {
	f := NewFactory()
	mustRegister(t, f, Define[*plainBean]("p",
		WithPrototype(),
		WithConstructor(func(name string) *plainBean { return &plainBean{Name: name} }),
		WithArgs("default"),
	))

	p, err := f.GetBean("p", "custom")
	require.NoError(t, err)
	assert.Equal(t, "custom", p.(*plainBean).Name)

	p, err = f.GetBean("p")
	require.NoError(t, err)
	assert.Equal(t, "default", p.(*plainBean).Name)
}

// ---------- 销毁 ----------

func TestDestroyRunsOnce(t *testing.T) {
	var destroyed, closed int32
	f := NewFactory()
	mustRegister(t, f, Define[*closer]("c",
		WithConstructor(func() *closer { return &closer{destroyed: &destroyed, closed: &closed} }),
		WithDestroyMethod("Close"),
	))

	_, err := f.GetBean("c")
	require.NoError(t, err)

	require.NoError(t, f.DestroySingletons())
	require.NoError(t, f.DestroySingletons())
	assert.EqualValues(t, 1, destroyed)
	assert.EqualValues(t, 1, closed)

	_, err = f.GetBean("c")
	assert.ErrorIs(t, err, ErrBeanDestroyed)
}

func TestPrototypeNotDestroyed(t *testing.T) {
	var destroyed, closed int32
	f := NewFactory()
	mustRegister(t, f, Define[*closer]("c",
		WithPrototype(),
		WithConstructor(func() *closer { return &closer{destroyed: &destroyed, closed: &closed} }),
	))

	_, err := f.GetBean("c")
	require.NoError(t, err)
	require.NoError(t, f.DestroySingletons())
	assert.EqualValues(t, 0, destroyed)
}

// ---------- 覆盖定义 ----------

func TestOverrideUsesLatestDefinition(t *testing.T) {
	f := NewFactory()
	mustRegister(t, f, Define[*plainBean]("p", WithProperty("Name", "first")))

	first, err := f.GetBean("p")
	require.NoError(t, err)
	assert.Equal(t, "first", first.(*plainBean).Name)

	mustRegister(t, f, Define[*plainBean]("p", WithProperty("Name", "second")))
	second, err := f.GetBean("p")
	require.NoError(t, err)
	assert.Equal(t, "second", second.(*plainBean).Name)
	assert.Equal(t, []string{"p"}, f.BeanNames())
}

// 测试覆盖定义时旧单例先被销毁，之后按新定义创建
func TestOverrideDestroysStaleSingleton(t *testing.T) {
	var destroyed, closed int32
	newCloser := func() *closer { return &closer{destroyed: &destroyed, closed: &closed} }
	f := NewFactory()
	mustRegister(t, f, Define[*closer]("c", WithConstructor(newCloser)))

	first := MustGet[*closer](f, "c")
	mustRegister(t, f, Define[*closer]("c", WithConstructor(newCloser)))
	assert.EqualValues(t, 1, destroyed)

	second := MustGet[*closer](f, "c")
	assert.NotSame(t, first, second)
}

// ---------- 生命周期 ----------

func TestAwarenessAndInitOrder(t *testing.T) {
	f := NewFactory(WithEnvironment(staticEnv{}))
	var hooks []string
	f.AddPostProcessor(&PostProcessorFuncs{
		Before: func(b any, name string) (any, error) {
			hooks = append(hooks, "before:"+name)
			return b, nil
		},
		After: func(b any, name string) (any, error) {
			hooks = append(hooks, "after:"+name)
			return nil, nil
		},
	})
	mustRegister(t, f, Define[*lifecycleBean]("life",
		WithProperty("Name", "x"),
		WithInitMethod("Init"),
	))

	got, err := f.GetBean("life")
	require.NoError(t, err)
	b := got.(*lifecycleBean)

	assert.Equal(t, []string{"env", "name", "factory", "afterPropertiesSet:x", "init"}, b.events)
	assert.Equal(t, "life", b.beanName)
	handle, ok := b.factory.(*boundFactory)
	require.True(t, ok)
	assert.Same(t, f, handle.Factory)
	assert.Equal(t, "test", b.env.Name())
	assert.Equal(t, []string{"before:life", "after:life"}, hooks)
}

func TestPostProcessorSubstitution(t *testing.T) {
	f := NewFactory()
	replacement := &frenchGreeter{}
	f.AddPostProcessor(&PostProcessorFuncs{
		After: func(b any, name string) (any, error) {
			if name == "greeter" {
				return replacement, nil
			}
			return b, nil
		},
	})
	mustRegister(t, f,
		Define[*englishGreeter]("greeter"),
		Define[*plainBean]("plain"),
	)

	g, err := f.GetBeanAs("greeter", TypeOf[Greeter]())
	require.NoError(t, err)
	assert.Same(t, replacement, g)

	_, err = f.GetBeanAs("greeter", TypeOf[*englishGreeter]())
	var mismatch *TypeMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestInitFailureReleasesEntry(t *testing.T) {
	f := NewFactory()
	fail := true
	f.AddPostProcessor(&PostProcessorFuncs{
		Before: func(b any, name string) (any, error) {
			if fail {
				return nil, errors.New("not yet")
			}
			return b, nil
		},
	})
	mustRegister(t, f, Define[*plainBean]("p"))

	_, err := f.GetBean("p")
	var initErr *InitializationError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, StateAbsent, f.Singletons().State("p"))

	fail = false
	_, err = f.GetBean("p")
	assert.NoError(t, err)
}

// ---------- 实例化 ----------

func TestConstructorSelectionByArity(t *testing.T) {
	f := NewFactory()
	ctors := WithConstructor(
		func() *plainBean { return &plainBean{Name: "none"} },
		func(name string) *plainBean { return &plainBean{Name: name} },
		func(a, b string) (*plainBean, error) { return &plainBean{Name: a + b}, nil },
	)
	mustRegister(t, f,
		Define[*plainBean]("zero", ctors),
		Define[*plainBean]("one", ctors, WithArgs("x")),
		Define[*plainBean]("two", ctors, WithArgs("x", "y")),
		Define[*plainBean]("three", ctors, WithArgs("x", "y", "z")),
	)

	for name, want := range map[string]string{"zero": "none", "one": "x", "two": "xy"} {
		got, err := f.GetBean(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got.(*plainBean).Name, name)
	}

	_, err := f.GetBean("three")
	var inst *InstantiationError
	assert.ErrorAs(t, err, &inst)
}

func TestConstructorError(t *testing.T) {
	f := NewFactory()
	boom := errors.New("boom")
	mustRegister(t, f, Define[*plainBean]("p",
		WithConstructor(func() (*plainBean, error) { return nil, boom }),
	))

	_, err := f.GetBean("p")
	var inst *InstantiationError
	require.ErrorAs(t, err, &inst)
	assert.ErrorIs(t, err, boom)
}

func TestFactoryMethods(t *testing.T) {
	f := NewFactory()
	mustRegister(t, f,
		Define[*greeterFactory]("greeterFactory", WithProperty("Prefix", "hi")),
		NewDefinition("fromMethod", nil, WithFactoryMethod("greeterFactory", "NewGreeter")),
		NewDefinition("fromFunc", nil, WithFactory(func(p string) Greeter {
			return &englishGreeter{Prefix: p}
		}), WithArgs("hey")),
	)

	g, err := Get[Greeter](f, "fromMethod")
	require.NoError(t, err)
	assert.Equal(t, "hi bob", g.Greet("bob"))

	g, err = Get[Greeter](f, "fromFunc")
	require.NoError(t, err)
	assert.Equal(t, "hey bob", g.Greet("bob"))

	// 工厂方法的返回类型可以被推断
	assert.Equal(t, []string{"fromMethod", "fromFunc"}, NamesOf[Greeter](f))
}

func TestNotFoundIsNotWrapped(t *testing.T) {
	f := NewFactory()
	mustRegister(t, f, Define[*nodeA]("a", WithRef("B", "ghost")))

	_, err := f.GetBean("a")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "ghost", nf.Name)
	assert.Same(t, nf, err)
}

func TestDefinitionValidation(t *testing.T) {
	f := NewFactory()
	assert.Error(t, f.RegisterDefinition(NewDefinition("empty", nil)))
	assert.Error(t, f.RegisterDefinition(NewDefinition("bad", nil, WithFactory("nope"))))
	assert.Error(t, f.RegisterDefinition(&Definition{Name: "half", FactoryBean: "x"}))
}

// ---------- 属性注入 ----------

func TestPropertyConversion(t *testing.T) {
	f := NewFactory()
	mustRegister(t, f, Define[*settings]("s",
		WithProperty("port", "8080"),
		WithProperty("Timeout", "1m"),
		WithProperty("Ratio", 2),
		WithProperty("Debug", "true"),
		WithProperty("Tags", []any{"a", "b"}),
		WithProperty("Label", "setter"),
	))

	got, err := f.GetBean("s")
	require.NoError(t, err)
	s := got.(*settings)
	assert.Equal(t, 8080, s.Port)
	assert.Equal(t, time.Minute, s.Timeout)
	assert.Equal(t, 2.0, s.Ratio)
	assert.True(t, s.Debug)
	assert.Equal(t, []string{"a", "b"}, s.Tags)
	assert.Equal(t, "setter", s.label)
}

func TestPropertyAssignmentErrors(t *testing.T) {
	cases := map[string]Option{
		"unknown":      WithProperty("Nope", 1),
		"unexported":   WithProperty("label2", 1),
		"incompatible": WithProperty("Port", "eighty"),
		"setterError":  WithProperty("Label", ""),
	}
	for name, opt := range cases {
		t.Run(name, func(t *testing.T) {
			f := NewFactory()
			mustRegister(t, f, Define[*settings]("s", opt))
			_, err := f.GetBean("s")
			var pe *PropertyAssignmentError
			assert.ErrorAs(t, err, &pe)
		})
	}
}

func TestTagAutowiring(t *testing.T) {
	f := NewFactory()
	mustRegister(t, f,
		Define[*englishGreeter]("greeter", WithProperty("Prefix", "hello")),
		Define[*plainBean]("plain"),
		Define[*autowired]("target"),
	)

	got, err := f.GetBean("target")
	require.NoError(t, err)
	a := got.(*autowired)
	assert.Equal(t, "hello you", a.Greeter.Greet("you"))
	assert.NotNil(t, a.Named)
	assert.Nil(t, a.Optional)
	assert.Nil(t, a.Missing)
}

func TestTagAutowiringPrimaryAndAmbiguity(t *testing.T) {
	f := NewFactory()
	mustRegister(t, f,
		Define[*englishGreeter]("english"),
		Define[*frenchGreeter]("french"),
		Define[*plainBean]("plain"),
		Define[*autowired]("target"),
	)

	_, err := f.GetBean("target")
	var amb *AmbiguousBeanError
	require.ErrorAs(t, err, &amb)
	assert.Equal(t, []string{"english", "french"}, amb.Candidates)

	mustRegister(t, f, Define[*frenchGreeter]("french", WithPrimary()))
	got, err := f.GetBean("target")
	require.NoError(t, err)
	assert.IsType(t, &frenchGreeter{}, got.(*autowired).Greeter)
}

func TestDeclaredPropertyWinsOverTag(t *testing.T) {
	f := NewFactory()
	mustRegister(t, f,
		Define[*englishGreeter]("english"),
		Define[*frenchGreeter]("french"),
		Define[*plainBean]("plain"),
		Define[*autowired]("target", WithRef("greeter", "english")),
	)

	got, err := f.GetBean("target")
	require.NoError(t, err)
	assert.IsType(t, &englishGreeter{}, got.(*autowired).Greeter)
}

// ---------- 按类型查询 ----------

func TestGetBeansOfType(t *testing.T) {
	f := NewFactory()
	mustRegister(t, f,
		Define[*englishGreeter]("english"),
		Define[*plainBean]("plain"),
		Define[*frenchGreeter]("french", WithPrototype()),
	)

	beans, err := OfType[Greeter](f)
	require.NoError(t, err)
	assert.Len(t, beans, 2)
	assert.Contains(t, beans, "english")
	assert.Contains(t, beans, "french")

	assert.Equal(t, []string{"english", "french"}, f.BeanNamesForType(reflect.TypeOf((*Greeter)(nil)).Elem()))
}

// ---------- 并发 ----------

func TestConcurrentSingletonCreation(t *testing.T) {
	var created int32
	f := NewFactory()
	mustRegister(t, f,
		Define[*nodeA]("a", WithConstructor(func() *nodeA {
			atomic.AddInt32(&created, 1)
			time.Sleep(5 * time.Millisecond)
			return &nodeA{}
		}), WithRef("B", "b")),
		Define[*nodeB]("b", WithRef("A", "a")),
	)

	var wg sync.WaitGroup
	results := make([]any, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := "a"
			if i%2 == 1 {
				name = "b"
			}
			v, err := f.GetBean(name)
			assert.NoError(t, err)
			if b, ok := v.(*nodeB); ok {
				v = b.A
			}
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, created)
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

// 测试两个创建过程交错时不产生虚假的循环依赖：
// 一个持有已暴露的 b 并需要 a，另一个持有 a 并在解析构造参数 b 时等待
func TestConcurrentCreationTakeover(t *testing.T) {
	started := make(chan struct{})
	proceed := make(chan struct{})
	f := NewFactory()
	mustRegister(t, f,
		Define[*gate]("gate", WithFactory(func() *gate {
			close(started)
			<-proceed
			return &gate{}
		})),
		Define[*relayB]("b", WithRef("Gate", "gate"), WithRef("A", "a")),
		Define[*relayA]("a", WithConstructor(newRelayA), WithArgs(Reference("b"))),
	)

	type result struct {
		inst any
		err  error
	}
	bDone := make(chan result, 1)
	aDone := make(chan result, 1)

	go func() {
		inst, err := f.GetBean("b")
		bDone <- result{inst, err}
	}()
	<-started

	go func() {
		inst, err := f.GetBean("a")
		aDone <- result{inst, err}
	}()
	// a 的创建过程开始等待 b
	require.Eventually(t, func() bool {
		f.singletons.mu.RLock()
		defer f.singletons.mu.RUnlock()
		e, ok := f.singletons.entries["a"]
		return ok && e.owner != nil && e.owner.waiting != nil
	}, 2*time.Second, 5*time.Millisecond)
	close(proceed)

	rb := <-bDone
	ra := <-aDone
	require.NoError(t, rb.err)
	require.NoError(t, ra.err)

	b := rb.inst.(*relayB)
	a := ra.inst.(*relayA)
	assert.Same(t, a, b.A)
	assert.Same(t, b, a.b)
	assert.Same(t, a, MustGet[*relayA](f, "a"))
}

// 测试没有显式参数时按类型装配构造函数参数
func TestConstructorAutowiring(t *testing.T) {
	f := NewFactory()
	mustRegister(t, f,
		Define[*englishGreeter]("greeter", WithProperty("Prefix", "hello")),
		NewDefinition("welcome", nil, WithConstructor(func(g Greeter) *plainBean {
			return &plainBean{Name: g.Greet("world")}
		})),
	)

	got, err := f.GetBean("welcome")
	require.NoError(t, err)
	assert.Equal(t, "hello world", got.(*plainBean).Name)
}

// 测试按类型装配的构造函数之间的环
func TestConstructorAutowiringCycle(t *testing.T) {
	f := NewFactory()
	mustRegister(t, f,
		Define[*ctorA]("a", WithConstructor(newCtorA)),
		Define[*ctorB]("b", WithConstructor(newCtorB)),
	)

	_, err := f.GetBean("a")
	var circular *CircularConstructorDependencyError
	require.ErrorAs(t, err, &circular)
	assert.Equal(t, []string{"a", "b", "a"}, circular.Chain)
}
