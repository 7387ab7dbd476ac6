package bean

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
)

// EntryState 单例缓存条目的状态，单调推进。
type EntryState int

const (
	StateAbsent EntryState = iota
	StateEarlyExposed
	StateFullyInitialized
	StateDestroyed
)

func (s EntryState) String() string {
	switch s {
	case StateAbsent:
		return "ABSENT"
	case StateEarlyExposed:
		return "EARLY_EXPOSED"
	case StateFullyInitialized:
		return "FULLY_INITIALIZED"
	case StateDestroyed:
		return "DESTROYED"
	default:
		return fmt.Sprintf("EntryState(%d)", int(s))
	}
}

type singletonEntry struct {
	state    EntryState
	instance any
	destroy  func() error

	// 正在创建该条目的创建过程，完成或失败时关闭 done
	owner *creation
	done  chan struct{}
}

// SingletonCache 保存单例及其生命周期状态。
// 条目同时充当按名称的构造锁：同一时刻只有一个创建过程拥有某个名称。
type SingletonCache struct {
	mu      sync.RWMutex
	entries map[string]*singletonEntry
	order   []string // Finalize 的顺序，即销毁顺序
}

// NewSingletonCache 创建空缓存。
func NewSingletonCache() *SingletonCache {
	return &SingletonCache{
		entries: make(map[string]*singletonEntry),
	}
}

// State 返回 name 的当前状态。
func (c *SingletonCache) State(name string) EntryState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[name]; ok {
		return e.state
	}
	return StateAbsent
}

// Get 只返回完全初始化的单例。
func (c *SingletonCache) Get(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[name]; ok && e.state == StateFullyInitialized {
		return e.instance, true
	}
	return nil, false
}

// ExposeEarly 在原始实例创建后、属性注入前登记早期引用。
func (c *SingletonCache) ExposeEarly(name string, raw any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entry(name)
	if e.state != StateAbsent {
		return fmt.Errorf("bean: cannot expose %q early in state %v", name, e.state)
	}
	e.state = StateEarlyExposed
	e.instance = raw
	return nil
}

// Finalize 登记最终实例（可能是代理，与早期引用不同）以及销毁回调。
func (c *SingletonCache) Finalize(name string, instance any, destroy func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entry(name)
	switch e.state {
	case StateAbsent, StateEarlyExposed:
	default:
		return fmt.Errorf("bean: cannot finalize %q in state %v", name, e.state)
	}

	e.state = StateFullyInitialized
	e.instance = instance
	e.destroy = destroy
	c.order = append(c.order, name)
	c.wake(e)
	return nil
}

// Remove 删除条目，已初始化的条目会先执行销毁回调。
// 用于定义被覆盖时丢弃旧单例。
func (c *SingletonCache) Remove(name string) error {
	c.mu.Lock()
	e, ok := c.entries[name]
	if !ok || e.owner != nil {
		// 正在创建的条目交给其创建过程处理
		c.mu.Unlock()
		return nil
	}
	delete(c.entries, name)
	c.order = removeName(c.order, name)
	c.mu.Unlock()

	if e.state == StateFullyInitialized && e.destroy != nil {
		return runDestroy(name, e.destroy)
	}
	return nil
}

// DestroyAll 按 Finalize 顺序执行销毁回调，尽力而为。
// 返回所有失败的合并错误；无论成败，所有条目最终都处于 DESTROYED。
func (c *SingletonCache) DestroyAll() error {
	c.mu.Lock()
	order := c.order
	callbacks := make([]func() error, len(order))
	for i, name := range order {
		callbacks[i] = c.entries[name].destroy
	}
	c.order = nil
	c.mu.Unlock()

	var errs error
	for i, name := range order {
		if callbacks[i] == nil {
			continue
		}
		errs = multierr.Append(errs, runDestroy(name, callbacks[i]))
	}

	c.mu.Lock()
	for _, e := range c.entries {
		e.state = StateDestroyed
		e.instance = nil
		e.destroy = nil
	}
	c.mu.Unlock()

	return errs
}

// Names 按 Finalize 顺序返回已初始化的单例名称。
func (c *SingletonCache) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.order))
	copy(names, c.order)
	return names
}

// errTakenOver 等待期间条目被另一个创建过程接手
var errTakenOver = errors.New("bean: singleton taken over by another creation")

type acquireResult int

const (
	acquireOwned acquireResult = iota // 调用方负责创建
	acquireReady                      // 已完全初始化
	acquireEarly                      // 循环引用，返回早期引用
)

// acquire 为 run 获取 name 的创建权。
// 被其他创建过程占用时等待其完成。若对方正在等待 run（继续等待会互相阻塞）：
// 条目已提前暴露则返回早期引用；仍处于 ABSENT 说明对方还在解析构造参数，
// 由 run 接手创建，对方醒来后发现创建权已转移，丢弃自己的实例并重新获取。
func (c *SingletonCache) acquire(name string, run *creation) (any, acquireResult, error) {
	c.mu.Lock()
	for {
		e := c.entry(name)

		switch {
		case e.state == StateFullyInitialized:
			c.mu.Unlock()
			return e.instance, acquireReady, nil

		case e.state == StateDestroyed:
			c.mu.Unlock()
			return nil, acquireReady, fmt.Errorf("%w: %q", ErrBeanDestroyed, name)

		case e.owner == nil:
			e.owner = run
			e.done = make(chan struct{})
			c.mu.Unlock()
			return nil, acquireOwned, nil

		case e.state == StateEarlyExposed && (e.owner == run || e.owner.waitsFor(run)):
			inst := e.instance
			c.mu.Unlock()
			return inst, acquireEarly, nil

		case e.owner == run:
			c.mu.Unlock()
			return nil, acquireOwned, run.circular(name)

		case e.owner.waitsFor(run):
			e.owner = run
			c.mu.Unlock()
			return nil, acquireOwned, nil

		default:
			owner, done := e.owner, e.done
			run.waiting = owner
			c.mu.Unlock()
			<-done
			c.mu.Lock()
			run.waiting = nil
		}
	}
}

// ownedBy 报告 run 是否仍持有 name 的创建权
func (c *SingletonCache) ownedBy(name string, run *creation) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	return ok && e.owner == run
}

// release 创建失败时放弃创建权，条目回到 ABSENT。
func (c *SingletonCache) release(name string, run *creation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[name]
	if !ok || e.owner != run {
		return
	}
	if e.state == StateEarlyExposed {
		e.state = StateAbsent
		e.instance = nil
	}
	c.wake(e)
	if e.state == StateAbsent {
		delete(c.entries, name)
	}
}

func (c *SingletonCache) entry(name string) *singletonEntry {
	e, ok := c.entries[name]
	if !ok {
		e = &singletonEntry{}
		c.entries[name] = e
	}
	return e
}

// wake 调用方持有 c.mu
func (c *SingletonCache) wake(e *singletonEntry) {
	if e.done != nil {
		close(e.done)
		e.done = nil
	}
	e.owner = nil
}

func runDestroy(name string, destroy func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bean: destroy %q panicked: %v", name, r)
		}
	}()
	if err := destroy(); err != nil {
		return fmt.Errorf("bean: destroy %q: %w", name, err)
	}
	return nil
}

func removeName(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}
